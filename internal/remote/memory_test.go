package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/annosync/internal/syncable"
	"github.com/roach88/annosync/internal/testutil"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newMemory(t *testing.T) (*InMemory, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(t0)
	return NewInMemory(WithClock(clock.Now)), clock
}

func pendingAnnotations(n int) []syncable.Entity {
	layerID := uuid.New()
	out := make([]syncable.Entity, n)
	for i := range out {
		out[i] = syncable.NewAnnotation(syncable.AnnotationText,
			fmt.Sprintf("note %d", i), syncable.Vector3{}, layerID, "user-1", t0)
	}
	return out
}

func TestUploadAssignsServerDates(t *testing.T) {
	m, clock := newMemory(t)
	a := pendingAnnotations(1)[0]

	rec, err := m.Upload(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, rec.CreationDate.Equal(t0))
	assert.True(t, rec.ModificationDate.Equal(t0))

	// A re-upload keeps the creation date but moves the modification date.
	later := clock.Advance(time.Minute)
	rec, err = m.Upload(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, rec.CreationDate.Equal(t0))
	assert.True(t, rec.ModificationDate.Equal(later))
}

func TestUploadBatchChunks(t *testing.T) {
	m, _ := newMemory(t)
	entities := pendingAnnotations(401)

	saved, err := m.UploadBatch(context.Background(), entities)
	require.NoError(t, err)

	// 401 entities issue exactly two requests: 400 + 1.
	assert.Equal(t, []string{"upload_batch[400]", "upload_batch[1]"}, m.Requests())
	assert.Len(t, saved, 401)
}

func TestUploadBatchChunkFailureIsPartial(t *testing.T) {
	m, _ := newMemory(t)
	entities := pendingAnnotations(450)
	m.FailChunk(1, errors.New("network down"))

	saved, err := m.UploadBatch(context.Background(), entities)

	// The failed chunk's 50 entities are simply absent from the result.
	assert.Len(t, saved, 400)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestUploadBatchItemFailureDoesNotAbortChunk(t *testing.T) {
	m, _ := newMemory(t)
	entities := pendingAnnotations(5)
	bad := entities[2].Meta().ID
	m.FailUpload(bad, errors.New("rejected"))

	saved, err := m.UploadBatch(context.Background(), entities)

	assert.Len(t, saved, 4)
	require.Error(t, err)
	for _, rec := range saved {
		assert.NotEqual(t, bad, rec.ID)
	}
}

func TestFetchChangesClassification(t *testing.T) {
	m, _ := newMemory(t)
	since := t0.Add(time.Hour)

	old := uuid.New()
	m.Seed(syncable.Record{
		ID: old, Type: syncable.RecordTypeAnnotation,
		CreationDate:     t0,
		ModificationDate: since.Add(time.Minute),
	})
	fresh := uuid.New()
	m.Seed(syncable.Record{
		ID: fresh, Type: syncable.RecordTypeAnnotation,
		CreationDate:     since.Add(2 * time.Minute),
		ModificationDate: since.Add(2 * time.Minute),
	})
	gone := uuid.New()
	m.SeedDeleted(gone, syncable.RecordTypeAnnotation, since.Add(3*time.Minute))
	unchanged := uuid.New()
	m.Seed(syncable.Record{
		ID: unchanged, Type: syncable.RecordTypeAnnotation,
		CreationDate:     t0,
		ModificationDate: t0,
	})

	changes, err := m.FetchChanges(context.Background(), syncable.RecordTypeAnnotation, &since)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, syncable.ChangeUpdated, changes[0].Kind)
	assert.Equal(t, old, changes[0].Record.ID)
	assert.Equal(t, syncable.ChangeCreated, changes[1].Kind)
	assert.Equal(t, fresh, changes[1].Record.ID)
	assert.Equal(t, syncable.ChangeDeleted, changes[2].Kind)
	assert.Equal(t, gone, changes[2].RecordID)
}

func TestFetchChangesFirstSyncReturnsEverythingAsCreated(t *testing.T) {
	m, _ := newMemory(t)
	m.Seed(syncable.Record{
		ID: uuid.New(), Type: syncable.RecordTypeLayer,
		CreationDate:     t0,
		ModificationDate: t0,
	})

	changes, err := m.FetchChanges(context.Background(), syncable.RecordTypeLayer, nil)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, syncable.ChangeCreated, changes[0].Kind)
}

func TestFetchChangesFiltersByType(t *testing.T) {
	m, _ := newMemory(t)
	m.Seed(syncable.Record{ID: uuid.New(), Type: syncable.RecordTypeLayer, ModificationDate: t0})

	changes, err := m.FetchChanges(context.Background(), syncable.RecordTypeAnnotation, nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDeleteTombstonesRecord(t *testing.T) {
	m, clock := newMemory(t)
	a := pendingAnnotations(1)[0]
	_, err := m.Upload(context.Background(), a)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, m.Delete(context.Background(), a.Meta().ID))

	_, err = m.Fetch(context.Background(), a.Meta().ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The tombstone is visible through the change feed.
	since := t0.Add(time.Second)
	changes, err := m.FetchChanges(context.Background(), syncable.RecordTypeAnnotation, &since)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, syncable.ChangeDeleted, changes[0].Kind)
	assert.Equal(t, a.Meta().ID, changes[0].RecordID)
}

func TestCheckAvailability(t *testing.T) {
	m, _ := newMemory(t)

	avail, err := m.CheckAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Available, avail)

	m.SetAvailability(Unavailable)
	avail, err = m.CheckAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unavailable, avail)
}
