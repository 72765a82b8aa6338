package memory

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable wraps failures of external collaborators (the
// embedding endpoint, the database). Callers may retry with backoff; the
// façade never retries internally.
var ErrUpstreamUnavailable = errors.New("memory: upstream unavailable")

// ValidationError reports malformed input. The message is safe to surface
// to callers; it never contains payload content.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("memory: invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
