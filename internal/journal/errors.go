package journal

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a reactor id has no journal rows.
type NotFoundError struct {
	ReactorID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("journal: reactor %q not found", e.ReactorID)
}

// DigestMismatchError is returned by Verify when a stored payload no longer
// matches its digest.
type DigestMismatchError struct {
	EntryID  int64
	Expected string
	Actual   string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("journal: entry %d digest mismatch: stored %s, computed %s", e.EntryID, e.Expected, e.Actual)
}

// IsNotFound returns true if err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
