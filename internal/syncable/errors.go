package syncable

import (
	"errors"
	"fmt"
)

// MissingFieldError reports a required field absent from a record or
// from the local entity being serialized. It belongs to the fatal error
// class: retrying will not change the outcome.
type MissingFieldError struct {
	Type  RecordType
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record type %s: missing required field %q", e.Type, e.Field)
}

// RecordTypeError reports a record dispatched to an entity of a
// different kind. Fatal: indicates a schema or routing bug.
type RecordTypeError struct {
	Want RecordType
	Got  RecordType
}

func (e *RecordTypeError) Error() string {
	return fmt.Sprintf("invalid record type %q (want %q)", e.Got, e.Want)
}

// IsFatal reports whether err is a non-recoverable contract violation
// (schema/type mismatch). Fatal errors are surfaced rather than retried,
// since the next cycle would fail identically.
func IsFatal(err error) bool {
	var mf *MissingFieldError
	var rt *RecordTypeError
	return errors.As(err, &mf) || errors.As(err, &rt)
}

// missingField is a construction helper for ToRecord/ApplyRecord.
func missingField(t RecordType, field string) error {
	return &MissingFieldError{Type: t, Field: field}
}
