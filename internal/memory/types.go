package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/memoryd/internal/memstore"
)

// IndexRequest carries one chunk to persist. Embedding is optional; when
// absent the façade embeds Text itself.
type IndexRequest struct {
	DocID      string
	Source     string
	ChunkIndex int
	Text       string
	Metadata   map[string]string
	Embedding  []float32
	Tags       []string
	ExpiresAt  *time.Time
}

// IndexResult reports a successful index operation.
type IndexResult struct {
	ChunkID   uuid.UUID
	CreatedAt time.Time
	Status    string
}

// QueryRequest asks for the K most relevant chunks.
type QueryRequest struct {
	Text    string
	K       int
	Filters memstore.Filters
}

// Hit is one ranked query result, already decrypted.
type Hit struct {
	ChunkID  uuid.UUID
	DocID    string
	Text     string
	Metadata map[string]string
	Score    float64
	Rank     int
	Reranked bool
}

// Latency breaks a query down by stage.
type Latency struct {
	Embed   time.Duration
	Search  time.Duration
	Decrypt time.Duration
	Rerank  time.Duration
	Total   time.Duration
}

// QueryResult is the ranked hit list plus its latency breakdown.
type QueryResult struct {
	Hits    []Hit
	Latency Latency
}

// SummarizeRequest condenses a set of owned chunks.
type SummarizeRequest struct {
	ChunkIDs  []uuid.UUID
	Style     string
	MaxLength int
}

// SummarizeResult is the condensed output.
type SummarizeResult struct {
	Summary   string
	KeyPoints []string
	Entities  []Entity
}

// EntitiesRequest extracts typed entities from owned chunks.
type EntitiesRequest struct {
	ChunkIDs     []uuid.UUID
	Types        []string
	MinFrequency int
}

// Entity is one extracted entity with usage evidence.
type Entity struct {
	Text      string
	Type      string
	Frequency int
	Contexts  []string
}

// EntitiesResult is the ranked entity list.
type EntitiesResult struct {
	Entities []Entity
}
