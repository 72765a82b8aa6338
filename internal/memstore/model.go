package memstore

import (
	"time"

	"github.com/google/uuid"
)

// NewChunk carries the caller-supplied fields for an insert. The store
// derives everything else: id, tenant digest, ciphertexts, timestamps.
type NewChunk struct {
	DocID      string
	Source     string
	ChunkIndex int
	Text       string
	Metadata   map[string]string
	Embedding  []float32
	Tags       []string
	ExpiresAt  *time.Time
}

// Receipt is returned from a successful insert.
type Receipt struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// Candidate is one row returned by a similarity query or id lookup. The
// payload fields are still sealed; call Decryptor.Decrypt to open them.
type Candidate struct {
	ID                 uuid.UUID
	TenantHash         string
	DocID              string
	Source             string
	ChunkIndex         int
	Distance           float64
	Tags               []string
	CreatedAt          time.Time
	TextCiphertext     []byte
	MetadataCiphertext []byte
}

// Plain holds a candidate's decrypted payload.
type Plain struct {
	Text     string
	Metadata map[string]string
}

// Filters narrows a similarity query. Zero values mean "no constraint".
type Filters struct {
	Tags          []string
	Source        string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
