package httpapi

import (
	"time"

	"github.com/google/uuid"
)

// IndexRequest is the body for POST /v1/memory/index.
type IndexRequest struct {
	DocID      string            `json:"doc_id"`
	Source     string            `json:"source"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// IndexResponse is the body returned from a successful index.
type IndexResponse struct {
	ChunkID   uuid.UUID `json:"chunk_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

// QueryFilters narrows a query.
type QueryFilters struct {
	Tags          []string   `json:"tags,omitempty"`
	Source        string     `json:"source,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

// QueryRequest is the body for POST /v1/memory/query.
type QueryRequest struct {
	Text    string       `json:"text"`
	K       int          `json:"k,omitempty"`
	Filters QueryFilters `json:"filters,omitempty"`
}

// QueryHit is one ranked result.
type QueryHit struct {
	ChunkID  uuid.UUID         `json:"chunk_id"`
	DocID    string            `json:"doc_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
	Rank     int               `json:"rank"`
	Reranked bool              `json:"reranked"`
}

// LatencyBreakdown reports per-stage query timing in milliseconds.
type LatencyBreakdown struct {
	EmbedMS   float64 `json:"embed_ms"`
	SearchMS  float64 `json:"search_ms"`
	DecryptMS float64 `json:"decrypt_ms"`
	RerankMS  float64 `json:"rerank_ms"`
	TotalMS   float64 `json:"total_ms"`
}

// QueryResponse is the body returned from a query.
type QueryResponse struct {
	Results []QueryHit       `json:"results"`
	Latency LatencyBreakdown `json:"latency"`
}

// SummarizeRequest is the body for POST /v1/memory/summarize.
type SummarizeRequest struct {
	ChunkIDs  []uuid.UUID `json:"chunk_ids"`
	Style     string      `json:"style,omitempty"`
	MaxLength int         `json:"max_length,omitempty"`
}

// EntityDTO is one extracted entity.
type EntityDTO struct {
	Text      string   `json:"text"`
	Type      string   `json:"type"`
	Frequency int      `json:"frequency"`
	Contexts  []string `json:"contexts,omitempty"`
}

// SummarizeResponse is the body returned from summarize.
type SummarizeResponse struct {
	Summary   string      `json:"summary"`
	KeyPoints []string    `json:"key_points,omitempty"`
	Entities  []EntityDTO `json:"entities,omitempty"`
}

// EntitiesRequest is the body for POST /v1/memory/entities.
type EntitiesRequest struct {
	ChunkIDs     []uuid.UUID `json:"chunk_ids"`
	Types        []string    `json:"types,omitempty"`
	MinFrequency int         `json:"min_frequency,omitempty"`
}

// EntitiesResponse is the body returned from entities.
type EntitiesResponse struct {
	Entities []EntityDTO `json:"entities"`
}

// HealthResponse is the body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
