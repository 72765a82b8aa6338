package memstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

const testDim = 4

func testKey(b byte) config.Secret {
	return config.Secret(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32)))
}

func newTestStore(t *testing.T) (*InMemory, *Decryptor) {
	t.Helper()
	hasher, err := tenant.NewHasher("memstore-test-hash-key")
	require.NoError(t, err)
	keys, err := crypto.NewKeyring(testKey(0x11), "")
	require.NoError(t, err)
	env, err := crypto.NewEnvelope(keys)
	require.NoError(t, err)
	store, err := NewInMemory(hasher, env, testDim)
	require.NoError(t, err)
	return store, NewDecryptor(env, logging.NewTestLogger().Logger)
}

func insertChunk(t *testing.T, store *InMemory, identity, text string, embedding []float32) Receipt {
	t.Helper()
	// The text doubles as the doc id; no test reuses a text within one store.
	r, err := store.Insert(context.Background(), identity, NewChunk{
		DocID:     text,
		Source:    "upload",
		Text:      text,
		Metadata:  map[string]string{"lang": "en"},
		Embedding: embedding,
	})
	require.NoError(t, err)
	return r
}

func TestInsertAndQuery_RoundTrip(t *testing.T) {
	store, dec := newTestStore(t)
	ctx := context.Background()

	insertChunk(t, store, "tenant-a", "quarterly revenue rose 12%", []float32{1, 0, 0, 0})

	got, err := store.QuerySimilar(ctx, "tenant-a", []float32{1, 0, 0, 0}, 10, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)

	plain, err := dec.Decrypt(ctx, got[0])
	require.NoError(t, err)
	assert.Equal(t, "quarterly revenue rose 12%", plain.Text)
	assert.Equal(t, map[string]string{"lang": "en"}, plain.Metadata)
}

func TestQuerySimilar_TenantIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	insertChunk(t, store, "tenant-a", "tenant a secret", []float32{1, 0, 0, 0})

	got, err := store.QuerySimilar(ctx, "tenant-b", []float32{1, 0, 0, 0}, 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, got, "tenant b must never see tenant a's rows")
}

func TestDecrypt_ForeignDigestFailsClosed(t *testing.T) {
	store, dec := newTestStore(t)
	ctx := context.Background()

	insertChunk(t, store, "tenant-a", "tenant a secret", []float32{1, 0, 0, 0})
	got, err := store.QuerySimilar(ctx, "tenant-a", []float32{1, 0, 0, 0}, 1, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Simulate a candidate whose ciphertext leaked into another tenant's
	// result path: same bytes, different digest as AAD.
	leaked := got[0]
	leaked.TenantHash = strings.Repeat("ab", 32)

	_, err = dec.Decrypt(ctx, leaked)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailure)
}

func TestQuerySimilar_OrdersByDistance(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	insertChunk(t, store, "tenant-a", "far", []float32{0, 1, 0, 0})
	insertChunk(t, store, "tenant-a", "near", []float32{1, 0.1, 0, 0})
	insertChunk(t, store, "tenant-a", "exact", []float32{1, 0, 0, 0})

	got, err := store.QuerySimilar(ctx, "tenant-a", []float32{1, 0, 0, 0}, 2, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Less(t, got[0].Distance, got[1].Distance)
}

func TestQuerySimilar_Filters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "tenant-a", NewChunk{
		DocID: "d1", Source: "upload", Text: "a",
		Embedding: []float32{1, 0, 0, 0}, Tags: []string{"finance"},
	})
	require.NoError(t, err)
	_, err = store.Insert(ctx, "tenant-a", NewChunk{
		DocID: "d2", Source: "chat", Text: "b",
		Embedding: []float32{1, 0, 0, 0}, Tags: []string{"hr"},
	})
	require.NoError(t, err)

	t.Run("by source", func(t *testing.T) {
		got, err := store.QuerySimilar(ctx, "tenant-a", []float32{1, 0, 0, 0}, 10, Filters{Source: "chat"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d2", got[0].DocID)
	})

	t.Run("by tag", func(t *testing.T) {
		got, err := store.QuerySimilar(ctx, "tenant-a", []float32{1, 0, 0, 0}, 10, Filters{Tags: []string{"finance"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d1", got[0].DocID)
	})

	t.Run("by date excludes all", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		got, err := store.QuerySimilar(ctx, "tenant-a", []float32{1, 0, 0, 0}, 10, Filters{CreatedAfter: &future})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestQuerySimilar_ExpiredHidden(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	_, err := store.Insert(ctx, "tenant-a", NewChunk{
		DocID: "d1", Source: "upload", Text: "stale",
		Embedding: []float32{1, 0, 0, 0}, ExpiresAt: &past,
	})
	require.NoError(t, err)

	got, err := store.QuerySimilar(ctx, "tenant-a", []float32{1, 0, 0, 0}, 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetChunks_ForeignIdsAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ra := insertChunk(t, store, "tenant-a", "a", []float32{1, 0, 0, 0})
	rb := insertChunk(t, store, "tenant-b", "b", []float32{0, 1, 0, 0})

	got, err := store.GetChunks(ctx, "tenant-a", []uuid.UUID{ra.ID, rb.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ra.ID, got[0].ID)
}

func TestInsert_DuplicateDocChunkRejected(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	chunk := NewChunk{
		DocID: "d1", Source: "upload", Text: "first write",
		Embedding: []float32{1, 0, 0, 0},
	}
	_, err := store.Insert(ctx, "tenant-a", chunk)
	require.NoError(t, err)

	_, err = store.Insert(ctx, "tenant-a", chunk)
	assert.ErrorIs(t, err, ErrDuplicateChunk)
	assert.NotErrorIs(t, err, ErrUnavailable, "a constraint violation is not retryable")

	// Another tenant may reuse the same doc id and index.
	_, err = store.Insert(ctx, "tenant-b", chunk)
	require.NoError(t, err)
}

func TestGetChunks_DuplicateIdsCollapse(t *testing.T) {
	// ANY($1) returns each matching row once regardless of repeats in the
	// id list; the in-memory store must agree.
	store, _ := newTestStore(t)
	ctx := context.Background()

	ra := insertChunk(t, store, "tenant-a", "a", []float32{1, 0, 0, 0})

	got, err := store.GetChunks(ctx, "tenant-a", []uuid.UUID{ra.ID, ra.ID, ra.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ra.ID, got[0].ID)
}

func TestDelete_ForeignTenantIndistinguishable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ra := insertChunk(t, store, "tenant-a", "a", []float32{1, 0, 0, 0})

	errForeign := store.Delete(ctx, "tenant-b", ra.ID)
	errMissing := store.Delete(ctx, "tenant-b", uuid.New())
	assert.ErrorIs(t, errForeign, ErrNotFound)
	assert.ErrorIs(t, errMissing, ErrNotFound)

	// Tenant a's row survived the foreign delete attempt.
	require.NoError(t, store.Delete(ctx, "tenant-a", ra.ID))
}

func TestInsert_DimensionMismatch(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Insert(context.Background(), "tenant-a", NewChunk{
		DocID: "d1", Source: "upload", Text: "x", Embedding: []float32{1, 0},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[1,0,-0.5]", formatVector([]float32{1, 0, -0.5}))
	assert.Equal(t, "[]", formatVector(nil))
}

func TestSchema_EnforcesRowPolicy(t *testing.T) {
	ddl := Schema(384)
	assert.Contains(t, ddl, "VECTOR(384)")
	assert.Contains(t, ddl, "FORCE ROW LEVEL SECURITY")
	assert.Contains(t, ddl, "current_setting('memoryd.tenant_hash', true)")
	assert.Contains(t, ddl, "WITH CHECK")
	assert.Contains(t, ddl, "hnsw (embedding vector_cosine_ops)")
}
