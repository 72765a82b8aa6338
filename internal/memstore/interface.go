package memstore

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract for memory chunks. Postgres is the
// production implementation; InMemory backs tests and local development.
//
// Every operation takes the raw caller identity, never a digest: the store
// derives the digest itself so a client can never supply one directly.
type Store interface {
	// Insert seals the chunk's payload fields under the tenant digest and
	// writes the row. The plaintext embedding is stored verbatim for ANN
	// indexing; an encrypted shadow copy is written alongside it.
	Insert(ctx context.Context, identity string, chunk NewChunk) (Receipt, error)

	// QuerySimilar returns up to k candidates ordered by ascending vector
	// distance, restricted by row policy to the caller's tenant. Payload
	// fields come back sealed. An empty tenant yields an empty list.
	QuerySimilar(ctx context.Context, identity string, embedding []float32, k int, filters Filters) ([]Candidate, error)

	// GetChunks fetches specific chunks by id for the caller's tenant.
	// Ids that do not exist or belong to another tenant are simply absent
	// from the result; callers compare lengths and map the gap to
	// ErrNotFound.
	GetChunks(ctx context.Context, identity string, ids []uuid.UUID) ([]Candidate, error)

	// Delete removes one chunk. Returns ErrNotFound when the id does not
	// exist or is owned by another tenant.
	Delete(ctx context.Context, identity string, id uuid.UUID) error
}
