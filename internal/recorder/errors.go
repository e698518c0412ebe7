package recorder

import (
	"errors"
	"fmt"
)

// ErrorKind classifies recorder failures.
type ErrorKind string

const (
	// KindConfig reports invalid options or an unserialisable config snapshot.
	KindConfig ErrorKind = "config"
	// KindStorage reports a failed document store operation.
	KindStorage ErrorKind = "storage"
	// KindIO reports an unwritable id file.
	KindIO ErrorKind = "io"
	// KindType reports epoch data rejected by the unknown-type policy.
	KindType ErrorKind = "type"
)

type Error struct {
	Kind  ErrorKind
	Op    string
	RunID string
	// Orphaned is set when the run document was inserted but the id file
	// could not be written; the document is only reachable through RunID.
	Orphaned bool
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("recorder %s: %s", e.Op, e.Err)
	if e.RunID != "" {
		msg += fmt.Sprintf(" (run %s)", e.RunID)
	}
	if e.Orphaned {
		msg += ": run document exists but id file was not written"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a recorder Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var recErr *Error
	return errors.As(err, &recErr) && recErr.Kind == kind
}

// OrphanedRunID returns the id of a run whose document was inserted while
// the id file write failed.
func OrphanedRunID(err error) (string, bool) {
	var recErr *Error
	if errors.As(err, &recErr) && recErr.Orphaned {
		return recErr.RunID, true
	}
	return "", false
}
