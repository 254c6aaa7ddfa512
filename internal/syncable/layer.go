package syncable

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Layer groups annotations. Layers sync before annotations so a child's
// layerID reference points at a record the remote store has seen.
type Layer struct {
	Sync Meta

	Name      string
	ColorHex  string
	Shared    bool
	OwnerID   string
	CreatedAt time.Time
}

// NewLayer creates a locally-authored layer, marked pending for the
// next upload pass.
func NewLayer(name, colorHex, ownerID string, now time.Time) *Layer {
	return &Layer{
		Sync: Meta{
			ID:          uuid.New(),
			UpdatedAt:   now,
			PendingSync: true,
		},
		Name:      name,
		ColorHex:  colorHex,
		OwnerID:   ownerID,
		CreatedAt: now,
	}
}

// Meta implements Entity.
func (l *Layer) Meta() *Meta { return &l.Sync }

// ToRecord implements Entity.
func (l *Layer) ToRecord() (Record, error) {
	if l.Name == "" {
		return Record{}, missingField(RecordTypeLayer, "name")
	}
	if l.ColorHex == "" {
		return Record{}, missingField(RecordTypeLayer, "colorHex")
	}
	if l.OwnerID == "" {
		return Record{}, missingField(RecordTypeLayer, "ownerID")
	}

	return Record{
		ID:   l.Sync.ID,
		Type: RecordTypeLayer,
		Fields: map[string]any{
			"name":      norm.NFC.String(l.Name),
			"colorHex":  l.ColorHex,
			"isShared":  l.Shared,
			"ownerID":   l.OwnerID,
			"createdAt": l.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// ApplyRecord implements Entity.
func (l *Layer) ApplyRecord(r Record) error {
	if r.Type != RecordTypeLayer {
		return &RecordTypeError{Want: RecordTypeLayer, Got: r.Type}
	}

	name, err := r.stringField("name")
	if err != nil {
		return err
	}
	colorHex, err := r.stringField("colorHex")
	if err != nil {
		return err
	}
	ownerID, err := r.stringField("ownerID")
	if err != nil {
		return err
	}

	l.Sync.ID = r.ID
	l.Sync.UpdatedAt = r.ModificationDate
	l.Name = name
	l.ColorHex = colorHex
	l.OwnerID = ownerID

	if shared, ok := r.optionalBool("isShared"); ok {
		l.Shared = shared
	}
	if created, ok := r.optionalString("createdAt"); ok {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			l.CreatedAt = t
		}
	}

	return nil
}
