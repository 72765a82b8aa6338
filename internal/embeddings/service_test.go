package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

// fakeEmbedder returns constant-dimension vectors and counts calls.
type fakeEmbedder struct {
	dim       int
	docCalls  int
	seenTexts []string
	err       error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docCalls++
	f.seenTexts = append(f.seenTexts, texts...)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text)%7) / 7
	}
	return v
}

func newTestService(t *testing.T, fake *fakeEmbedder) *Service {
	t.Helper()
	svc, err := NewServiceWith(fake, config.EmbeddingsConfig{
		Model:     "test-model",
		Dimension: fake.dim,
	})
	require.NoError(t, err)
	return svc
}

func TestEmbedQuery(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{dim: 4})

	vec, err := svc.EmbedQuery(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestEmbedQuery_EmptyInput(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{dim: 4})
	_, err := svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedQuery_DimensionMismatch(t *testing.T) {
	fake := &fakeEmbedder{dim: 3}
	svc, err := NewServiceWith(fake, config.EmbeddingsConfig{Model: "m", Dimension: 4})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbedDocuments_OrderPreserved(t *testing.T) {
	fake := &fakeEmbedder{dim: 4}
	svc := newTestService(t, fake)

	out, err := svc.EmbedDocuments(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.Len(t, v, 4)
	}
}

func TestEmbedDocuments_CacheServesRepeats(t *testing.T) {
	fake := &fakeEmbedder{dim: 4}
	svc := newTestService(t, fake)
	ctx := context.Background()

	_, err := svc.EmbedDocuments(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, fake.docCalls)

	// ristretto admits asynchronously.
	svc.cache.wait()

	_, err = svc.EmbedDocuments(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.docCalls)
	assert.Contains(t, fake.seenTexts, "gamma")
	// alpha and beta were sent upstream exactly once.
	count := 0
	for _, s := range fake.seenTexts {
		if s == "alpha" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEmbedDocuments_ProviderError(t *testing.T) {
	wantErr := errors.New("upstream down")
	svc := newTestService(t, &fakeEmbedder{dim: 4, err: wantErr})

	_, err := svc.EmbedDocuments(context.Background(), []string{"alpha"})
	assert.ErrorIs(t, err, wantErr)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(config.EmbeddingsConfig{Model: "m", Dimension: 4})
	assert.Error(t, err, "base URL required")

	_, err = NewService(config.EmbeddingsConfig{BaseURL: "http://localhost:8080/v1", Model: "m"})
	assert.Error(t, err, "dimension required")
}
