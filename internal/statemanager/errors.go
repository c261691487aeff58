package statemanager

import (
	"errors"
	"fmt"
	"strings"
)

// WatcherError reports watcher failures observed after a mutation committed.
// It always accompanies a valid result: the mutation stands and must not be
// retried; the failures belong to the watchers, not the caller.
type WatcherError struct {
	ProjectID string
	Errs      []error
}

func (e *WatcherError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d watcher(s) failed after committed mutation on %s: %s",
		len(e.Errs), e.ProjectID, strings.Join(msgs, "; "))
}

func (e *WatcherError) Unwrap() []error { return e.Errs }

// IsWatcherError reports whether err wraps a *WatcherError, letting callers
// separate non-fatal post-commit watcher failures from mutation failures.
func IsWatcherError(err error) bool {
	var we *WatcherError
	return errors.As(err, &we)
}
