package syncable

import (
	"github.com/google/uuid"
)

// Field accessors for the record's typed bag. Required accessors return
// MissingFieldError when the field is absent or mistyped; optional
// accessors report presence so callers can keep prior local values.

func (r Record) stringField(name string) (string, error) {
	v, ok := r.Fields[name].(string)
	if !ok {
		return "", missingField(r.Type, name)
	}
	return v, nil
}

func (r Record) optionalString(name string) (string, bool) {
	v, ok := r.Fields[name].(string)
	return v, ok
}

func (r Record) optionalBool(name string) (bool, bool) {
	v, ok := r.Fields[name].(bool)
	return v, ok
}

func (r Record) uuidField(name string) (uuid.UUID, error) {
	s, err := r.stringField(name)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, missingField(r.Type, name)
	}
	return id, nil
}

// vectorField extracts a 3-component position. Drivers may decode the
// slice as []float64 or []any, so both shapes are accepted.
func (r Record) vectorField(name string) (Vector3, error) {
	switch v := r.Fields[name].(type) {
	case []float64:
		if len(v) != 3 {
			return Vector3{}, missingField(r.Type, name)
		}
		return Vector3{X: v[0], Y: v[1], Z: v[2]}, nil
	case []any:
		if len(v) != 3 {
			return Vector3{}, missingField(r.Type, name)
		}
		var out [3]float64
		for i, c := range v {
			f, ok := c.(float64)
			if !ok {
				return Vector3{}, missingField(r.Type, name)
			}
			out[i] = f
		}
		return Vector3{X: out[0], Y: out[1], Z: out[2]}, nil
	default:
		return Vector3{}, missingField(r.Type, name)
	}
}
