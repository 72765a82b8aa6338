package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/memstore"
	"github.com/fyrsmithlabs/memoryd/internal/reranker"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

const testDim = 8

type tokenEmbedder struct{}

func (tokenEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, testDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(tok, ".,?!%")))
		v[h.Sum32()%testDim]++
	}
	return v, nil
}

func (e tokenEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := e.EmbedQuery(ctx, t)
		out[i] = vec
	}
	return out, nil
}

func (tokenEmbedder) Dimension() int { return testDim }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	hasher, err := tenant.NewHasher("httpapi-test-hash-key")
	require.NoError(t, err)
	key := config.Secret(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x24}, 32)))
	keys, err := crypto.NewKeyring(key, "")
	require.NoError(t, err)
	env, err := crypto.NewEnvelope(keys)
	require.NoError(t, err)
	store, err := memstore.NewInMemory(hasher, env, testDim)
	require.NoError(t, err)

	logger := logging.NewTestLogger().Logger
	breaker := reranker.NewBreaker(reranker.NewLexical(), 150*time.Millisecond, 0, logger)
	svc, err := memory.NewService(store, memstore.NewDecryptor(env, logger), hasher, tokenEmbedder{}, breaker,
		config.MemoryConfig{
			MaxTextBytes:     50 * 1024,
			MaxMetadataBytes: 10 * 1024,
			ANNFanout:        28,
			AllowedSources:   []string{"upload", "chat"},
		}, 8, logger)
	require.NoError(t, err)

	srv, err := NewServer(svc, logger, config.ServerConfig{Host: "localhost", Port: 0})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, ident string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ident != "" {
		req.Header.Set(IdentityHeader, ident)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func indexChunk(t *testing.T, srv *Server, ident, docID, text string) IndexResponse {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/index", ident, IndexRequest{
		DocID: docID, Source: "upload", Text: text,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestIndex_DuplicateMapsToConflict(t *testing.T) {
	srv := newTestServer(t)

	indexChunk(t, srv, "tenant-a", "q3", "quarterly revenue rose 12%")

	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/index", "tenant-a", IndexRequest{
		DocID: "q3", Source: "upload", Text: "quarterly revenue rose 12%",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestIndexAndQuery(t *testing.T) {
	srv := newTestServer(t)

	res := indexChunk(t, srv, "tenant-a", "q3", "quarterly revenue rose 12%")
	assert.Equal(t, "indexed", res.Status)
	assert.NotEmpty(t, res.ChunkID)

	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/query", "tenant-a", QueryRequest{
		Text: "how did revenue change?", K: 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var q QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.NotEmpty(t, q.Results)
	assert.Equal(t, "q3", q.Results[0].DocID)
	assert.Equal(t, 1, q.Results[0].Rank)
	assert.True(t, q.Results[0].Reranked)
	assert.Greater(t, q.Latency.TotalMS, 0.0)
}

func TestQuery_ForeignTenantSeesNothing(t *testing.T) {
	srv := newTestServer(t)
	indexChunk(t, srv, "tenant-a", "q3", "quarterly revenue rose 12%")

	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/query", "tenant-b", QueryRequest{
		Text: "how did revenue change?", K: 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var q QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Empty(t, q.Results)
}

func TestMissingIdentityRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/query", "", QueryRequest{Text: "q"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIndex_ValidationMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/index", "tenant-a", IndexRequest{
		DocID: "d", Source: "scraper", Text: "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "source")
}

func TestSummarize_ForeignChunksAre404(t *testing.T) {
	srv := newTestServer(t)

	res := indexChunk(t, srv, "tenant-a", "d1", "Quarterly revenue rose 12%. Growth came from enterprise contracts.")

	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/summarize", "tenant-b", SummarizeRequest{
		ChunkIDs: []uuid.UUID{res.ChunkID},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tenant", "no tenant detail may leak")

	rec = doJSON(t, srv, http.MethodPost, "/v1/memory/summarize", "tenant-a", SummarizeRequest{
		ChunkIDs: []uuid.UUID{res.ChunkID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s SummarizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.NotEmpty(t, s.Summary)
}

func TestEntities(t *testing.T) {
	srv := newTestServer(t)

	res := indexChunk(t, srv, "tenant-a", "d1", "Revenue rose 12%. Contact finance@example.com.")

	rec := doJSON(t, srv, http.MethodPost, "/v1/memory/entities", "tenant-a", EntitiesRequest{
		ChunkIDs: []uuid.UUID{res.ChunkID},
		Types:    []string{"email", "percent"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var e EntitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Len(t, e.Entities, 2)
}

func TestDeleteChunk(t *testing.T) {
	srv := newTestServer(t)

	res := indexChunk(t, srv, "tenant-a", "d1", "to be removed")

	path := fmt.Sprintf("/v1/memory/chunks/%s", res.ChunkID)
	rec := doJSON(t, srv, http.MethodDelete, path, "tenant-a", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, path, "tenant-a", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzNeedsNoIdentity(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
