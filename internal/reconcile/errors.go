package reconcile

import "errors"

var (
	// ErrNotFound means the chore, log, or member does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is surfaced after the bounded retry loop keeps
	// losing the optimistic version check. The caller should refresh and
	// retry; the losing write is never silently dropped or merged.
	ErrConcurrencyConflict = errors.New("modified concurrently, refresh and retry")
)
