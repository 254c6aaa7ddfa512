package syncable

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// AnnotationKind is the content type of an annotation.
type AnnotationKind string

const (
	AnnotationText    AnnotationKind = "text"
	AnnotationVoice   AnnotationKind = "voice"
	AnnotationDrawing AnnotationKind = "drawing"
)

// Vector3 is a position in the annotated space.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Annotation is a positioned note inside a layer.
type Annotation struct {
	Sync Meta

	Kind        AnnotationKind
	Title       string // optional; empty means untitled
	ContentText string
	Position    Vector3
	LayerID     uuid.UUID
	OwnerID     string
	CreatedAt   time.Time
}

// NewAnnotation creates a locally-authored annotation, marked pending
// for the next upload pass.
func NewAnnotation(kind AnnotationKind, contentText string, pos Vector3, layerID uuid.UUID, ownerID string, now time.Time) *Annotation {
	return &Annotation{
		Sync: Meta{
			ID:          uuid.New(),
			UpdatedAt:   now,
			PendingSync: true,
		},
		Kind:        kind,
		ContentText: contentText,
		Position:    pos,
		LayerID:     layerID,
		OwnerID:     ownerID,
		CreatedAt:   now,
	}
}

// Meta implements Entity.
func (a *Annotation) Meta() *Meta { return &a.Sync }

// ToRecord implements Entity.
//
// Titles are NFC-normalized so devices with different input methods
// produce identical records for the same visible text.
func (a *Annotation) ToRecord() (Record, error) {
	if a.Kind == "" {
		return Record{}, missingField(RecordTypeAnnotation, "kind")
	}
	if a.LayerID == uuid.Nil {
		return Record{}, missingField(RecordTypeAnnotation, "layerID")
	}
	if a.OwnerID == "" {
		return Record{}, missingField(RecordTypeAnnotation, "ownerID")
	}

	fields := map[string]any{
		"kind":        string(a.Kind),
		"contentText": a.ContentText,
		"position":    []float64{a.Position.X, a.Position.Y, a.Position.Z},
		"layerID":     a.LayerID.String(),
		"ownerID":     a.OwnerID,
		"createdAt":   a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.Title != "" {
		fields["title"] = norm.NFC.String(a.Title)
	}

	return Record{
		ID:     a.Sync.ID,
		Type:   RecordTypeAnnotation,
		Fields: fields,
	}, nil
}

// ApplyRecord implements Entity. The record's modification date becomes
// the entity's UpdatedAt so later conflict comparisons see the accepted
// remote version as current.
func (a *Annotation) ApplyRecord(r Record) error {
	if r.Type != RecordTypeAnnotation {
		return &RecordTypeError{Want: RecordTypeAnnotation, Got: r.Type}
	}

	kind, err := r.stringField("kind")
	if err != nil {
		return err
	}
	contentText, err := r.stringField("contentText")
	if err != nil {
		return err
	}
	pos, err := r.vectorField("position")
	if err != nil {
		return err
	}
	layerID, err := r.uuidField("layerID")
	if err != nil {
		return err
	}
	ownerID, err := r.stringField("ownerID")
	if err != nil {
		return err
	}

	a.Sync.ID = r.ID
	a.Sync.UpdatedAt = r.ModificationDate
	a.Kind = AnnotationKind(kind)
	a.ContentText = contentText
	a.Position = pos
	a.LayerID = layerID
	a.OwnerID = ownerID

	// Optional fields keep their prior local value when absent.
	if title, ok := r.optionalString("title"); ok {
		a.Title = title
	}
	if created, ok := r.optionalString("createdAt"); ok {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			a.CreatedAt = t
		}
	}

	return nil
}
