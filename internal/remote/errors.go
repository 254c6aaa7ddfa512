package remote

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound reports a Fetch for a record the remote store does not hold.
var ErrNotFound = errors.New("remote record not found")

// ErrorKind classifies a remote-store failure for retry policy.
type ErrorKind int

const (
	// KindTransient covers network unavailability and request timeouts.
	// The affected operation is skipped this cycle and retried on the
	// next scheduled one.
	KindTransient ErrorKind = iota

	// KindFatal covers failures retrying will not fix: authentication,
	// quota, schema mismatch. These are surfaced to the caller and
	// require external intervention, though the loop keeps running so
	// sync resumes once the condition clears.
	KindFatal
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "fatal"
}

// Error wraps a remote-store failure with its retry classification.
type Error struct {
	Op   string // failing operation, e.g. "upload", "fetch_changes"
	Kind ErrorKind
	ID   uuid.UUID // affected record, if any
	Err  error
}

func (e *Error) Error() string {
	if e.ID != uuid.Nil {
		return fmt.Sprintf("remote %s %s (%s): %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("remote %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a recoverable remote failure.
func Transient(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTransient, Err: err}
}

// Fatal wraps err as a non-recoverable remote failure.
func Fatal(op string, err error) *Error {
	return &Error{Op: op, Kind: KindFatal, Err: err}
}

// IsTransient reports whether err carries a transient classification.
// Unclassified errors are treated as transient so an unknown failure
// mode degrades to "retry next cycle" rather than a hard stop.
func IsTransient(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == KindTransient
	}
	return true
}
