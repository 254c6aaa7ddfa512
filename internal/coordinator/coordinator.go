// Package coordinator orchestrates bidirectional sync between the local
// store and the remote record store.
//
// One cooperative background loop runs per Coordinator. Within a cycle
// the upload phase completes for all entity kinds strictly before the
// download phase begins, so local changes get a chance to win visibility
// before remote changes are pulled in. Entity kinds are processed in the
// fixed order returned by Sets.
//
// Cancellation is cooperative: it is observed between phases and loop
// iterations, never mid-network-call.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/annosync/internal/events"
	"github.com/roach88/annosync/internal/remote"
	"github.com/roach88/annosync/internal/syncable"
)

// DefaultInterval is the sleep between scheduled sync cycles.
const DefaultInterval = 60 * time.Second

// Coordinator drives the sync loop. It is the sole writer of its own
// status and last-sync time; SyncNow is non-reentrant so manual and
// scheduled invocations can never overlap on the local store.
type Coordinator struct {
	remote   remote.Client
	sets     []EntitySet
	pub      events.Publisher
	interval time.Duration
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time

	mu       sync.Mutex // guards status, lastSync, cancel, done
	status   Status
	lastSync time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	syncMu sync.Mutex // serializes SyncNow
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval overrides the inter-cycle sleep.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTimer overrides the inter-cycle timer, for tests.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Coordinator) { c.after = after }
}

// WithPublisher installs an event sink for sync observability events.
func WithPublisher(pub events.Publisher) Option {
	return func(c *Coordinator) { c.pub = pub }
}

// New constructs a Coordinator with injected collaborators. The sets
// slice fixes the per-kind processing order for both phases.
func New(client remote.Client, sets []EntitySet, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:   client,
		sets:     sets,
		pub:      events.Nop{},
		interval: DefaultInterval,
		now:      time.Now,
		after:    time.After,
		status:   Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current sync status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastSyncTime returns the completion time of the last successful cycle,
// or the zero time if no cycle has completed.
func (c *Coordinator) LastSyncTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// StartSync checks remote availability and, if available, starts the
// background sync loop. An unavailable remote short-circuits into the
// offline state without scheduling any work; call StartSync again once
// conditions change. A loop already running is replaced.
func (c *Coordinator) StartSync(ctx context.Context) {
	slog.Info("starting automatic sync")

	avail, err := c.remote.CheckAvailability(ctx)
	if err != nil || avail != remote.Available {
		slog.Warn("remote store unavailable", "availability", avail, "err", err)
		c.setStatus(Status{State: StateOffline})
		return
	}

	c.StopSync()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.loop(loopCtx, done)
}

// StopSync cancels the background loop. Cancellation is cooperative: a
// cycle in flight completes its current phase first. The state resets to
// idle only if it was syncing.
func (c *Coordinator) StopSync() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	slog.Info("stopping automatic sync")
	cancel()
	<-done

	c.mu.Lock()
	if c.status.State == StateSyncing {
		c.status = Status{State: StateIdle}
	}
	c.mu.Unlock()
}

// loop runs cycles at the configured interval. A failed cycle lands in
// the error state and sleeps for double the interval before retrying;
// the escalation is a single level, not unbounded exponential backoff.
func (c *Coordinator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		delay := c.interval
		if err := c.SyncNow(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("sync cycle failed", "err", err)
			delay = 2 * c.interval
		}

		select {
		case <-ctx.Done():
			return
		case <-c.after(delay):
		}
	}
}

// SyncNow runs one sync cycle: upload phase for every entity kind, then
// download phase for every entity kind, then the last-sync timestamp
// advances. May be invoked manually; a mutex guarantees it never
// overlaps a scheduled cycle.
//
// Per-entity and per-change failures are logged and skipped; only
// phase-level failures abort the cycle and land in the error state.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Debug("sync cycle starting")
	c.setStatus(Status{State: StateSyncing})
	since := c.LastSyncTime()

	uploaded, err := c.uploadAll(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}
	downloaded, err := c.downloadAll(ctx, since)
	if err != nil {
		return c.fail(ctx, err)
	}

	completed := c.now()
	c.mu.Lock()
	c.lastSync = completed
	c.status = Status{State: StateIdle}
	c.mu.Unlock()

	c.publish(ctx, events.Event{
		Type:       events.TypeCycleCompleted,
		Uploaded:   uploaded,
		Downloaded: downloaded,
		At:         completed,
	})
	slog.Info("sync cycle completed", "uploaded", uploaded, "downloaded", downloaded)
	return nil
}

// fail records a cycle-level failure.
func (c *Coordinator) fail(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.setStatus(Status{State: StateError, Message: err.Error()})
	c.publish(ctx, events.Event{
		Type:  events.TypeCycleFailed,
		Error: err.Error(),
		At:    c.now(),
	})
	return err
}

// uploadAll pushes pending local changes for every entity kind, in
// order. Returns the number of entities confirmed synced.
func (c *Coordinator) uploadAll(ctx context.Context) (int, error) {
	total := 0
	for _, set := range c.sets {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := c.uploadSet(ctx, set)
		if err != nil {
			return total, fmt.Errorf("upload %s: %w", set.RecordType(), err)
		}
		total += n
	}
	return total, nil
}

// uploadSet uploads one kind's pending entities in a chunked batch and
// propagates its tombstones. Entities the batch did not save simply stay
// pending and retry next cycle.
func (c *Coordinator) uploadSet(ctx context.Context, set EntitySet) (int, error) {
	entities, err := set.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	var pending, tombstones []syncable.Entity
	for _, e := range entities {
		m := e.Meta()
		switch {
		case !m.PendingSync:
		case m.Deleted:
			tombstones = append(tombstones, e)
		default:
			pending = append(pending, e)
		}
	}

	synced := 0
	if len(pending) > 0 {
		slog.Debug("uploading pending entities",
			"record_type", set.RecordType(), "count", len(pending))

		records, err := c.remote.UploadBatch(ctx, pending)
		if err != nil {
			// Partial batch failure is normal operation, not an error.
			slog.Warn("batch upload incomplete",
				"record_type", set.RecordType(),
				"submitted", len(pending),
				"saved", len(records),
				"err", err)
		}

		saved := make(map[uuid.UUID]bool, len(records))
		for _, rec := range records {
			saved[rec.ID] = true
		}
		confirmedAt := c.now()
		for _, e := range pending {
			m := e.Meta()
			if !saved[m.ID] {
				continue
			}
			m.MarkSynced(confirmedAt)
			if err := set.Save(ctx, e); err != nil {
				slog.Error("failed to mark entity synced",
					"record_type", set.RecordType(), "id", m.ID, "err", err)
				continue
			}
			synced++
		}
	}

	for _, e := range tombstones {
		m := e.Meta()
		if err := c.remote.Delete(ctx, m.ID); err != nil {
			slog.Warn("failed to propagate deletion",
				"record_type", set.RecordType(), "id", m.ID, "err", err)
			continue
		}
		m.PendingSync = false
		if err := set.Save(ctx, e); err != nil {
			slog.Error("failed to clear tombstone pending flag",
				"record_type", set.RecordType(), "id", m.ID, "err", err)
			continue
		}
		synced++
	}

	return synced, nil
}

// downloadAll pulls the change feed for every entity kind since the
// previous cycle. Returns the number of changes applied.
func (c *Coordinator) downloadAll(ctx context.Context, since time.Time) (int, error) {
	var sincePtr *time.Time
	if !since.IsZero() {
		sincePtr = &since
	}

	total := 0
	for _, set := range c.sets {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		changes, err := c.remote.FetchChanges(ctx, set.RecordType(), sincePtr)
		if err != nil {
			return total, fmt.Errorf("fetch changes for %s: %w", set.RecordType(), err)
		}
		slog.Debug("processing remote changes",
			"record_type", set.RecordType(), "count", len(changes))

		for _, ch := range changes {
			if err := c.applyChange(ctx, set, ch); err != nil {
				if syncable.IsFatal(err) {
					slog.Error("failed to apply remote change",
						"record_type", set.RecordType(), "kind", ch.Kind, "err", err)
				} else {
					slog.Warn("failed to apply remote change",
						"record_type", set.RecordType(), "kind", ch.Kind, "err", err)
				}
				continue
			}
			total++
		}
	}
	return total, nil
}

// applyChange dispatches one remote change to the deletion path or the
// conflict-resolution path.
func (c *Coordinator) applyChange(ctx context.Context, set EntitySet, ch syncable.Change) error {
	if ch.Kind == syncable.ChangeDeleted {
		// Deletions always win, regardless of local modification time.
		if err := set.Delete(ctx, ch.RecordID); err != nil {
			return err
		}
		c.publish(ctx, events.Event{
			Type:       events.TypeEntityDeleted,
			RecordType: string(set.RecordType()),
			EntityID:   ch.RecordID.String(),
			At:         c.now(),
		})
		return nil
	}

	rec := ch.Record
	local, ok, err := set.Get(ctx, rec.ID)
	if err != nil {
		return err
	}

	if !ok {
		// Genuine new remote entity: construct and insert it locally.
		e := set.NewEntity()
		if err := e.ApplyRecord(rec); err != nil {
			return err
		}
		e.Meta().MarkSynced(c.now())
		slog.Debug("inserting new remote entity",
			"record_type", set.RecordType(), "id", rec.ID)
		return set.Save(ctx, e)
	}

	meta := local.Meta()
	hadPending := meta.PendingSync
	if Resolve(meta, rec) == LocalWins {
		// No local mutation; the next upload pass overwrites the stale
		// server copy.
		slog.Debug("local is newer, keeping local version",
			"record_type", set.RecordType(), "id", rec.ID)
		c.publishConflict(ctx, set, rec.ID, LocalWins)
		return nil
	}

	if err := local.ApplyRecord(rec); err != nil {
		return err
	}
	meta.MarkSynced(c.now())
	if err := set.Save(ctx, local); err != nil {
		return err
	}
	if hadPending {
		// The remote change overwrote an unconfirmed local mutation:
		// a genuine concurrent-writer conflict, resolved remote-wins.
		c.publishConflict(ctx, set, rec.ID, RemoteWins)
	}
	return nil
}

func (c *Coordinator) publishConflict(ctx context.Context, set EntitySet, id uuid.UUID, w Winner) {
	c.publish(ctx, events.Event{
		Type:       events.TypeConflictResolved,
		RecordType: string(set.RecordType()),
		EntityID:   id.String(),
		Winner:     w.String(),
		At:         c.now(),
	})
}

// publish delivers an event; failures never affect the cycle.
func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if err := c.pub.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish sync event", "type", ev.Type, "err", err)
	}
}

func (c *Coordinator) setStatus(st Status) {
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}
