package syncable

import (
	"time"

	"github.com/google/uuid"
)

// RecordType discriminates remote record schemas. One record type exists
// per entity kind.
type RecordType string

const (
	RecordTypeLayer      RecordType = "Layer"
	RecordTypeAnnotation RecordType = "Annotation"
)

// Meta is the sync metadata embedded in every syncable entity.
//
// Invariants:
//   - UpdatedAt is monotonically non-decreasing per entity.
//   - PendingSync is cleared only after a confirmed round-trip with the
//     remote store, never optimistically.
//   - A Deleted entity is never uploaded as a creation/update; only its
//     deletion is propagated.
type Meta struct {
	// ID is stable across local and remote representations and is used
	// as the remote record's primary key.
	ID uuid.UUID

	// UpdatedAt is the timestamp of the last local mutation.
	UpdatedAt time.Time

	// PendingSync is true whenever a local mutation has not yet been
	// confirmed uploaded.
	PendingSync bool

	// LastSyncedAt is the time of the last confirmed successful upload
	// or accepted download. Nil means never synced.
	LastSyncedAt *time.Time

	// Deleted marks the entity as a tombstone: logically deleted but
	// retained locally until the deletion is propagated.
	Deleted bool
}

// MarkSynced clears the pending flag and stamps the last-synced time.
// Call only after the remote store has confirmed the round-trip.
func (m *Meta) MarkSynced(at time.Time) {
	m.PendingSync = false
	m.LastSyncedAt = &at
}

// Record is the remote-side serialization of an entity: a typed bag of
// named fields plus server-assigned timestamps and a type discriminator.
type Record struct {
	ID   uuid.UUID
	Type RecordType

	// Fields holds the per-kind schema values. Keys are schema field
	// names; values are strings, bools, float64s, or []float64.
	Fields map[string]any

	// CreationDate is when the record first appeared remotely.
	CreationDate time.Time

	// ModificationDate is server-assigned and may differ from the
	// client's UpdatedAt for the same mutation.
	ModificationDate time.Time
}

// ChangeKind tags a remote change.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one entry in the remote change feed. Record is populated for
// created/updated changes; deletions carry only the record identifier.
type Change struct {
	Kind     ChangeKind
	Record   Record
	RecordID uuid.UUID
}

// Entity is the capability a domain entity must expose to participate
// in sync.
type Entity interface {
	// Meta returns the entity's mutable sync metadata.
	Meta() *Meta

	// ToRecord serializes the entity for upload. It must populate every
	// field the remote schema requires and fails with a
	// MissingFieldError if a required local value is absent.
	ToRecord() (Record, error)

	// ApplyRecord overwrites the entity's domain fields from a remote
	// record. It validates the record type and required fields; optional
	// fields absent from the record keep their prior local values.
	ApplyRecord(Record) error
}
