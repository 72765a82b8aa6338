package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memstore"
	"github.com/fyrsmithlabs/memoryd/internal/reranker"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

const (
	maxQueryK    = 100
	maxChunkIDs  = 50
	defaultStyle = "concise"
)

// Embedder is the embedding surface the façade needs. Satisfied by
// *embeddings.Service; tests substitute fakes.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Service composes the store, crypto, embeddings, and reranking pipeline
// into the four externally visible operations.
type Service struct {
	store     memstore.Store
	decryptor *memstore.Decryptor
	hasher    *tenant.Hasher
	embedder  Embedder
	reranker  reranker.Reranker
	cfg       config.MemoryConfig
	defaultK  int
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewService wires the façade. reranker should already be wrapped in a
// Breaker; the façade treats it as infallible apart from cancellation.
func NewService(
	store memstore.Store,
	decryptor *memstore.Decryptor,
	hasher *tenant.Hasher,
	embedder Embedder,
	rr reranker.Reranker,
	cfg config.MemoryConfig,
	defaultK int,
	logger *logging.Logger,
) (*Service, error) {
	if store == nil || decryptor == nil || hasher == nil || embedder == nil || rr == nil {
		return nil, errors.New("memory: all collaborators are required")
	}
	if defaultK <= 0 {
		defaultK = 8
	}
	return &Service{
		store:     store,
		decryptor: decryptor,
		hasher:    hasher,
		embedder:  embedder,
		reranker:  rr,
		cfg:       cfg,
		defaultK:  defaultK,
		logger:    logger.Named("memory"),
		tracer:    otel.Tracer("memoryd/memory"),
	}, nil
}

// Index validates, embeds if needed, and persists one chunk.
func (s *Service) Index(ctx context.Context, identity string, req IndexRequest) (IndexResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.Index")
	defer span.End()

	if identity == "" {
		return IndexResult{}, invalid("identity", "must not be empty")
	}
	if req.DocID == "" {
		return IndexResult{}, invalid("doc_id", "must not be empty")
	}
	if !s.sourceAllowed(req.Source) {
		return IndexResult{}, invalid("source", fmt.Sprintf("%q is not an allowed source", req.Source))
	}
	if req.Text == "" {
		return IndexResult{}, invalid("text", "must not be empty")
	}
	if len(req.Text) > s.cfg.MaxTextBytes {
		return IndexResult{}, invalid("text", fmt.Sprintf("exceeds %d bytes", s.cfg.MaxTextBytes))
	}
	if size := metadataSize(req.Metadata); size > s.cfg.MaxMetadataBytes {
		return IndexResult{}, invalid("metadata", fmt.Sprintf("exceeds %d bytes", s.cfg.MaxMetadataBytes))
	}
	if req.ChunkIndex < 0 {
		return IndexResult{}, invalid("chunk_index", "must not be negative")
	}

	embedding := req.Embedding
	if embedding == nil {
		var err error
		embedding, err = s.embedder.EmbedQuery(ctx, req.Text)
		if err != nil {
			return IndexResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
	} else if len(embedding) != s.embedder.Dimension() {
		return IndexResult{}, invalid("embedding", fmt.Sprintf("dimension %d does not match model dimension %d", len(embedding), s.embedder.Dimension()))
	}

	receipt, err := s.store.Insert(ctx, identity, memstore.NewChunk{
		DocID:      req.DocID,
		Source:     req.Source,
		ChunkIndex: req.ChunkIndex,
		Text:       req.Text,
		Metadata:   req.Metadata,
		Embedding:  embedding,
		Tags:       req.Tags,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return IndexResult{}, err
	}

	span.SetAttributes(attribute.String("chunk.id", receipt.ID.String()))
	return IndexResult{ChunkID: receipt.ID, CreatedAt: receipt.CreatedAt, Status: "indexed"}, nil
}

// Query embeds the query text, gathers ANN candidates with fan-out beyond
// the requested k, decrypts them, and runs the reranking pipeline. A
// tripped or failing reranker degrades to ANN order; it never fails the
// query.
func (s *Service) Query(ctx context.Context, identity string, req QueryRequest) (QueryResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.Query")
	defer span.End()

	if identity == "" {
		return QueryResult{}, invalid("identity", "must not be empty")
	}
	if req.Text == "" {
		return QueryResult{}, invalid("query", "must not be empty")
	}
	k := req.K
	if k == 0 {
		k = s.defaultK
	}
	if k < 1 || k > maxQueryK {
		return QueryResult{}, invalid("k", fmt.Sprintf("must be between 1 and %d", maxQueryK))
	}

	total := time.Now()
	var lat Latency

	stage := time.Now()
	queryVec, err := s.embedder.EmbedQuery(ctx, req.Text)
	if err != nil {
		return QueryResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	lat.Embed = time.Since(stage)

	fanout := s.cfg.ANNFanout
	if fanout < k {
		fanout = k
	}
	stage = time.Now()
	candidates, err := s.store.QuerySimilar(ctx, identity, queryVec, fanout, req.Filters)
	if err != nil {
		return QueryResult{}, err
	}
	lat.Search = time.Since(stage)

	stage = time.Now()
	docs := make([]reranker.Document, 0, len(candidates))
	plains := make(map[string]memstore.Plain, len(candidates))
	byID := make(map[string]memstore.Candidate, len(candidates))
	for _, c := range candidates {
		plain, err := s.decryptor.Decrypt(ctx, c)
		if err != nil {
			if errors.Is(err, crypto.ErrAuthenticationFailure) {
				continue // anomaly already counted, drop the candidate
			}
			return QueryResult{}, err
		}
		id := c.ID.String()
		plains[id] = plain
		byID[id] = c
		docs = append(docs, reranker.Document{ID: id, Text: plain.Text, Distance: c.Distance})
	}
	lat.Decrypt = time.Since(stage)

	stage = time.Now()
	ranked, err := s.reranker.Rerank(ctx, req.Text, docs, k)
	if err != nil {
		return QueryResult{}, err
	}
	lat.Rerank = time.Since(stage)
	lat.Total = time.Since(total)

	hits := make([]Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = Hit{
			ChunkID:  uuid.MustParse(r.ID),
			DocID:    byID[r.ID].DocID,
			Text:     plains[r.ID].Text,
			Metadata: plains[r.ID].Metadata,
			Score:    r.Score,
			Rank:     i + 1,
			Reranked: r.Reranked,
		}
	}

	span.SetAttributes(
		attribute.Int("query.candidates", len(candidates)),
		attribute.Int("query.hits", len(hits)),
	)
	return QueryResult{Hits: hits, Latency: lat}, nil
}

// Summarize condenses the requested chunks. Ownership of every id is
// re-verified against the caller's digest before any decryption, on top of
// the row policy the store already applied.
func (s *Service) Summarize(ctx context.Context, identity string, req SummarizeRequest) (SummarizeResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.Summarize")
	defer span.End()

	style := req.Style
	if style == "" {
		style = defaultStyle
	}
	if !validStyle(style) {
		return SummarizeResult{}, invalid("style", fmt.Sprintf("%q is not a supported style", style))
	}

	texts, err := s.loadOwnedTexts(ctx, identity, req.ChunkIDs)
	if err != nil {
		return SummarizeResult{}, err
	}

	summary, keyPoints := summarize(texts, style, req.MaxLength)
	ents := extractEntities(texts, nil, 1, 3)
	return SummarizeResult{Summary: summary, KeyPoints: keyPoints, Entities: ents}, nil
}

// ExtractEntities returns typed entities from the caller's chunks, ranked
// by frequency. Ownership is re-verified the same way Summarize does.
func (s *Service) ExtractEntities(ctx context.Context, identity string, req EntitiesRequest) (EntitiesResult, error) {
	ctx, span := s.tracer.Start(ctx, "memory.ExtractEntities")
	defer span.End()

	for _, typ := range req.Types {
		if !validEntityType(typ) {
			return EntitiesResult{}, invalid("types", fmt.Sprintf("%q is not a supported entity type", typ))
		}
	}
	minFreq := req.MinFrequency
	if minFreq < 1 {
		minFreq = 1
	}

	texts, err := s.loadOwnedTexts(ctx, identity, req.ChunkIDs)
	if err != nil {
		return EntitiesResult{}, err
	}

	return EntitiesResult{Entities: extractEntities(texts, req.Types, minFreq, 0)}, nil
}

// Delete removes one chunk. The store reports a foreign id and a missing
// id identically.
func (s *Service) Delete(ctx context.Context, identity string, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "memory.Delete")
	defer span.End()

	if identity == "" {
		return invalid("identity", "must not be empty")
	}
	return s.store.Delete(ctx, identity, id)
}

// loadOwnedTexts fetches and decrypts chunks after proving every id is the
// caller's. The row policy already filters foreign rows; the digest
// comparison here is a second, independent check, and any mismatch is
// treated as a policy violation rather than quietly skipped.
func (s *Service) loadOwnedTexts(ctx context.Context, identity string, ids []uuid.UUID) ([]string, error) {
	if identity == "" {
		return nil, invalid("identity", "must not be empty")
	}
	if len(ids) == 0 {
		return nil, invalid("chunk_ids", "must not be empty")
	}
	if len(ids) > maxChunkIDs {
		return nil, invalid("chunk_ids", fmt.Sprintf("at most %d ids per request", maxChunkIDs))
	}

	// Repeated ids collapse to one lookup, matching ANY($1) semantics.
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	candidates, err := s.store.GetChunks(ctx, identity, unique)
	if err != nil {
		return nil, err
	}

	digest := s.hasher.Hash(identity)
	for _, c := range candidates {
		if c.TenantHash != digest {
			s.logger.Error(ctx, "chunk digest mismatch after policy filtering",
				zap.String("chunk.id", c.ID.String()))
			return nil, memstore.ErrPolicyViolation
		}
	}
	// Missing and foreign ids look identical to the caller.
	if len(candidates) != len(unique) {
		return nil, memstore.ErrNotFound
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		plain, err := s.decryptor.Decrypt(ctx, c)
		if err != nil {
			return nil, err
		}
		texts[i] = plain.Text
	}
	return texts, nil
}

func (s *Service) sourceAllowed(source string) bool {
	for _, allowed := range s.cfg.AllowedSources {
		if source == allowed {
			return true
		}
	}
	return false
}

func metadataSize(m map[string]string) int {
	size := 0
	for k, v := range m {
		size += len(k) + len(v)
	}
	return size
}
