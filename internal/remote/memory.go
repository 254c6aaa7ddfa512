package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/annosync/internal/syncable"
)

// InMemory is a Client backed by process memory. It implements the full
// contract, including chunked batches, server-assigned modification
// dates, and a tombstone-based change feed, so coordinator behavior can
// be exercised without a live backend. Tests and local development only.
type InMemory struct {
	mu            sync.Mutex
	records       map[uuid.UUID]memRecord
	avail         Availability
	now           func() time.Time
	batchLimit    int
	requests      []string
	chunkFailures map[int]error
	uploadErrs    map[uuid.UUID]error
}

type memRecord struct {
	rec     syncable.Record
	deleted bool
}

// MemoryOption configures an InMemory client.
type MemoryOption func(*InMemory)

// WithClock overrides the server clock used for modification dates.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *InMemory) { m.now = now }
}

// WithBatchLimit overrides the per-request chunk size.
func WithBatchLimit(n int) MemoryOption {
	return func(m *InMemory) { m.batchLimit = n }
}

// NewInMemory creates an available in-memory client.
func NewInMemory(opts ...MemoryOption) *InMemory {
	m := &InMemory{
		records:       make(map[uuid.UUID]memRecord),
		avail:         Available,
		now:           time.Now,
		batchLimit:    DefaultBatchLimit,
		chunkFailures: make(map[int]error),
		uploadErrs:    make(map[uuid.UUID]error),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetAvailability controls the result of CheckAvailability.
func (m *InMemory) SetAvailability(a Availability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avail = a
}

// Seed installs a record as if another writer had uploaded it. The
// record's timestamps are taken as given, not server-assigned.
func (m *InMemory) Seed(rec syncable.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = memRecord{rec: rec}
}

// SeedDeleted installs a remote tombstone modified at the given time.
func (m *InMemory) SeedDeleted(id uuid.UUID, t syncable.RecordType, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = memRecord{
		rec:     syncable.Record{ID: id, Type: t, ModificationDate: at},
		deleted: true,
	}
}

// FailChunk makes chunk i of the next UploadBatch fail entirely,
// simulating a whole-request network failure.
func (m *InMemory) FailChunk(i int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkFailures[i] = err
}

// FailUpload makes uploads of the given record fail, simulating a
// per-item rejection inside an otherwise successful chunk.
func (m *InMemory) FailUpload(id uuid.UUID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErrs[id] = err
}

// Requests returns the log of remote requests issued, in order. Batch
// uploads log one entry per chunk request.
func (m *InMemory) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// Record returns the stored record for id, if present and not deleted.
func (m *InMemory) Record(id uuid.UUID) (syncable.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.records[id]
	if !ok || mr.deleted {
		return syncable.Record{}, false
	}
	return mr.rec, true
}

// Upload implements Client.
func (m *InMemory) Upload(ctx context.Context, e syncable.Entity) (syncable.Record, error) {
	rec, err := e.ToRecord()
	if err != nil {
		return syncable.Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "upload")
	if err := m.uploadErrs[rec.ID]; err != nil {
		return syncable.Record{}, err
	}
	return m.put(rec), nil
}

// UploadBatch implements Client. Chunk-level and item-level failures are
// collected into the returned error while saved records are returned.
func (m *InMemory) UploadBatch(ctx context.Context, entities []syncable.Entity) ([]syncable.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		saved []syncable.Record
		errs  []error
	)
	for i, chunk := range Chunk(entities, m.batchLimit) {
		m.requests = append(m.requests, fmt.Sprintf("upload_batch[%d]", len(chunk)))
		if err := m.chunkFailures[i]; err != nil {
			delete(m.chunkFailures, i)
			errs = append(errs, Transient("upload_batch", err))
			continue
		}
		for _, e := range chunk {
			rec, err := e.ToRecord()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := m.uploadErrs[rec.ID]; err != nil {
				errs = append(errs, err)
				continue
			}
			saved = append(saved, m.put(rec))
		}
	}
	return saved, errors.Join(errs...)
}

// FetchChanges implements Client.
func (m *InMemory) FetchChanges(ctx context.Context, t syncable.RecordType, since *time.Time) ([]syncable.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "fetch_changes:"+string(t))

	type stamped struct {
		ch syncable.Change
		at time.Time
	}
	var found []stamped
	for id, mr := range m.records {
		if mr.rec.Type != t {
			continue
		}
		if since != nil && !mr.rec.ModificationDate.After(*since) {
			continue
		}
		if mr.deleted {
			found = append(found, stamped{
				ch: syncable.Change{Kind: syncable.ChangeDeleted, RecordID: id},
				at: mr.rec.ModificationDate,
			})
			continue
		}
		kind := syncable.ChangeUpdated
		if since == nil || !mr.rec.CreationDate.Before(*since) {
			kind = syncable.ChangeCreated
		}
		found = append(found, stamped{
			ch: syncable.Change{Kind: kind, Record: mr.rec},
			at: mr.rec.ModificationDate,
		})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	changes := make([]syncable.Change, len(found))
	for i, s := range found {
		changes[i] = s.ch
	}
	return changes, nil
}

// Delete implements Client. The record becomes a tombstone so other
// clients observe the deletion through the change feed.
func (m *InMemory) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "delete")

	mr := m.records[id]
	mr.deleted = true
	mr.rec.ID = id
	mr.rec.Fields = nil // tombstones keep identity and type only
	mr.rec.ModificationDate = m.now()
	m.records[id] = mr
	return nil
}

// Fetch implements Client.
func (m *InMemory) Fetch(ctx context.Context, id uuid.UUID) (syncable.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "fetch")

	mr, ok := m.records[id]
	if !ok || mr.deleted {
		return syncable.Record{}, ErrNotFound
	}
	return mr.rec, nil
}

// CheckAvailability implements Client.
func (m *InMemory) CheckAvailability(ctx context.Context) (Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, "check_availability")
	return m.avail, nil
}

// put stores rec with server-assigned dates. Caller holds mu.
func (m *InMemory) put(rec syncable.Record) syncable.Record {
	now := m.now()
	if existing, ok := m.records[rec.ID]; ok && !existing.deleted {
		rec.CreationDate = existing.rec.CreationDate
	} else {
		rec.CreationDate = now
	}
	rec.ModificationDate = now
	m.records[rec.ID] = memRecord{rec: rec}
	return rec
}
