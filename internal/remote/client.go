package remote

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/annosync/internal/syncable"
)

// DefaultBatchLimit is the maximum number of records per batch request,
// matching the strictest provider limit observed (400 items/request).
const DefaultBatchLimit = 400

// Availability is the result of a pre-sync availability check.
type Availability int

const (
	// Available means the remote store accepted the check and a sync
	// cycle may proceed.
	Available Availability = iota

	// Unavailable means the backend cannot be reached or refused the
	// check. The coordinator short-circuits into the offline state
	// without attempting any further network call.
	Unavailable
)

func (a Availability) String() string {
	if a == Available {
		return "available"
	}
	return "unavailable"
}

// Client is the remote store abstraction consumed by the coordinator.
// All operations may fail with a classified *Error.
type Client interface {
	// Upload serializes and persists one entity, returning the
	// server-confirmed record. The returned record's ModificationDate
	// is server-assigned and may differ from the client's timestamp.
	Upload(ctx context.Context, e syncable.Entity) (syncable.Record, error)

	// UploadBatch persists entities in chunks of at most the provider's
	// per-request limit. It returns every record that did succeed;
	// fewer returned records than inputs is a partial success. A
	// non-nil error alongside results reports the chunks or items that
	// failed; unsaved entities simply stay pending and retry next cycle.
	UploadBatch(ctx context.Context, entities []syncable.Entity) ([]syncable.Record, error)

	// FetchChanges returns all records of the given type modified after
	// since, or all records when since is nil (first sync). Records are
	// classified as created when their creation time is at or after
	// since; deletions are reported keyed by identifier only.
	FetchChanges(ctx context.Context, t syncable.RecordType, since *time.Time) ([]syncable.Change, error)

	// Delete propagates a deletion for the given record identifier.
	Delete(ctx context.Context, id uuid.UUID) error

	// Fetch retrieves a single record. Returns ErrNotFound if absent.
	Fetch(ctx context.Context, id uuid.UUID) (syncable.Record, error)

	// CheckAvailability must be consulted before starting a sync cycle.
	CheckAvailability(ctx context.Context) (Availability, error)
}

// Chunk partitions items into groups of at most size. The final group
// holds the remainder. Chunk(401 items, 400) yields groups of 400 and 1.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
