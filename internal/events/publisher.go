// Package events publishes sync observability events so failures and
// conflicts are queryable rather than log-only.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// Event types emitted by the coordinator.
const (
	TypeCycleCompleted   = "cycle_completed"
	TypeCycleFailed      = "cycle_failed"
	TypeConflictResolved = "conflict_resolved"
	TypeEntityDeleted    = "entity_deleted"
)

// Event is one sync observability event.
type Event struct {
	Type       string    `json:"type"`
	RecordType string    `json:"record_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Winner     string    `json:"winner,omitempty"` // "local" or "remote" for conflicts
	Uploaded   int       `json:"uploaded,omitempty"`
	Downloaded int       `json:"downloaded,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers sync events. Publish failures must not affect the
// sync cycle; callers log and move on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards all events. The default when no event sink is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events as JSON to annosync.<event type>.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish("annosync."+ev.Type, data)
}
