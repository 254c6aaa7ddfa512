package coordinator

// State is the coordinator's externally visible sync state.
type State int

const (
	// StateIdle means no sync pass is in flight.
	StateIdle State = iota

	// StateSyncing means a sync pass is running.
	StateSyncing

	// StateError means the last cycle failed; the loop retries after
	// one level of backoff.
	StateError

	// StateOffline means the remote store was unavailable when the
	// loop was started. No further work is scheduled until StartSync
	// is called again.
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Status pairs the state with the failure message for StateError.
type Status struct {
	State   State
	Message string
}
