package coordinator

import (
	"github.com/roach88/annosync/internal/syncable"
)

// Winner is the outcome of conflict resolution for an update change.
type Winner int

const (
	// LocalWins means the local entity is newer; no local mutation
	// occurs and the stale server copy is overwritten on the next
	// upload pass.
	LocalWins Winner = iota

	// RemoteWins means the remote record is applied to the local
	// entity.
	RemoteWins
)

func (w Winner) String() string {
	if w == LocalWins {
		return "local"
	}
	return "remote"
}

// Resolve implements last-write-wins between a locally-known entity and
// an incoming remote record for the same id. Remote wins ties.
//
// Deletion changes never reach this function: a remote deletion removes
// the local entity regardless of its modification time.
func Resolve(local *syncable.Meta, rec syncable.Record) Winner {
	if local.UpdatedAt.After(rec.ModificationDate) {
		return LocalWins
	}
	return RemoteWins
}
