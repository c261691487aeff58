package lock

import (
	"errors"
	"fmt"
	"time"
)

// ContentionError is returned when the retry budget is exhausted while a
// live lease is held by someone else. It is expected in normal operation:
// callers retry the whole work unit later rather than treating it as fatal.
// It is distinguishable from "lock absent" and from genuine faults.
type ContentionError struct {
	Resource   string
	Attempts   int
	LastHolder string
	Waited     time.Duration
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock contention on %s after %d attempts (held by %s, waited %v)",
		e.Resource, e.Attempts, e.LastHolder, e.Waited)
}

// IsContention reports whether err is a lock contention error.
func IsContention(err error) bool {
	var ce *ContentionError
	return errors.As(err, &ce)
}

// NotHeldError is returned when releasing a lock that the caller no longer
// holds, typically because an expired lease was stolen.
type NotHeldError struct {
	Resource      string
	HolderID      string
	CurrentHolder string
}

func (e *NotHeldError) Error() string {
	if e.CurrentHolder == "" {
		return fmt.Sprintf("lock on %s not held by %s (no current holder)", e.Resource, e.HolderID)
	}
	return fmt.Sprintf("lock on %s not held by %s (current holder %s)", e.Resource, e.HolderID, e.CurrentHolder)
}

// IsNotHeld reports whether err signals a release by a non-holder.
func IsNotHeld(err error) bool {
	var ne *NotHeldError
	return errors.As(err, &ne)
}
