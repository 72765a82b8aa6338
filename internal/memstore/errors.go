package memstore

import "errors"

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound covers both "no such id" and "id owned by another
	// tenant". The two must stay indistinguishable so ids cannot be used
	// as an existence oracle.
	ErrNotFound = errors.New("memstore: chunk not found")

	// ErrPolicyViolation marks an attempted cross-tenant access that was
	// detected above the row policy. Logged as a security anomaly, never
	// silently corrected.
	ErrPolicyViolation = errors.New("memstore: policy violation")

	// ErrUnavailable wraps transient storage failures. Callers may retry
	// with backoff; the store never retries internally.
	ErrUnavailable = errors.New("memstore: storage unavailable")

	// ErrDuplicateChunk is returned when an insert collides with an
	// existing (doc_id, chunk_index) pair for the same tenant. Retrying
	// the same payload cannot succeed, so this is not ErrUnavailable.
	ErrDuplicateChunk = errors.New("memstore: duplicate chunk")

	// ErrDimensionMismatch is returned when an embedding's length does not
	// match the configured model dimension. Vectors from different models
	// must not be compared.
	ErrDimensionMismatch = errors.New("memstore: embedding dimension mismatch")
)
