// Package embeddings generates vector embeddings through an
// OpenAI-compatible endpoint (TEI or OpenAI itself) via langchaingo, with a
// ristretto cache in front so repeated texts cost one upstream call.
package embeddings

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("embeddings: empty input")

	// ErrDimensionMismatch means the provider returned vectors that do not
	// match the configured model dimension, usually a model misconfig.
	ErrDimensionMismatch = errors.New("embeddings: dimension mismatch")
)

// Embedder is the subset of langchaingo's embedder the service needs.
// Tests substitute fakes; production wires langchaingo's EmbedderImpl.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service generates embeddings with caching and dimension validation.
type Service struct {
	embedder Embedder
	cache    *cache
	model    string
	dim      int
}

// NewService builds the production service from configuration.
func NewService(cfg config.EmbeddingsConfig) (*Service, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("embeddings: base_url and model are required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embeddings: dimension must be positive, got %d", cfg.Dimension)
	}

	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		// langchaingo requires a token even for TEI endpoints.
		apiKey = "unused"
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("embeddings: creating client: %w", err)
	}
	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("embeddings: creating embedder: %w", err)
	}
	return NewServiceWith(embedder, cfg)
}

// NewServiceWith wires an explicit embedder, used by tests.
func NewServiceWith(embedder Embedder, cfg config.EmbeddingsConfig) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embeddings: embedder is required")
	}
	c, err := newCache(cfg.CacheMaxItems)
	if err != nil {
		return nil, err
	}
	return &Service{
		embedder: embedder,
		cache:    c,
		model:    cfg.Model,
		dim:      cfg.Dimension,
	}, nil
}

// Dimension reports the configured vector dimension.
func (s *Service) Dimension() int { return s.dim }

// EmbedQuery embeds a single query text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	key := s.cacheKey(text)
	if v, ok := s.cache.get(key); ok {
		return v, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embeddings: embedding query: %w", err)
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dim)
	}
	s.cache.set(key, vec)
	return vec, nil
}

// EmbedDocuments embeds a batch of texts, serving cached entries and only
// sending the misses upstream. Output order matches input order.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmptyInput, i)
		}
		if v, ok := s.cache.get(s.cacheKey(text)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := s.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embeddings: embedding documents: %w", err)
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embeddings: provider returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for i, vec := range vecs {
		if len(vec) != s.dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dim)
		}
		out[missingIdx[i]] = vec
		s.cache.set(s.cacheKey(missing[i]), vec)
	}
	return out, nil
}

func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(s.model + "\x00" + text))
	return string(sum[:])
}
