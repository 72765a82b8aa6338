package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

// InMemory implements Store without a database, applying the same tenant
// filtering the Postgres row policy provides. It backs tests and local
// development; payloads are sealed with the same envelope the production
// store uses, so isolation properties hold here too.
type InMemory struct {
	hasher   *tenant.Hasher
	envelope *crypto.Envelope
	dim      int

	mu   sync.RWMutex
	rows map[uuid.UUID]memRow
}

type memRow struct {
	tenantHash string
	docID      string
	source     string
	chunkIndex int
	embedding  []float32
	text       []byte
	metadata   []byte
	shadow     []byte
	tags       []string
	createdAt  time.Time
	expiresAt  *time.Time
}

// NewInMemory creates an empty in-memory store.
func NewInMemory(hasher *tenant.Hasher, envelope *crypto.Envelope, dim int) (*InMemory, error) {
	if hasher == nil || envelope == nil {
		return nil, fmt.Errorf("memstore: hasher and envelope are required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("memstore: embedding dimension must be positive, got %d", dim)
	}
	return &InMemory{
		hasher:   hasher,
		envelope: envelope,
		dim:      dim,
		rows:     make(map[uuid.UUID]memRow),
	}, nil
}

func (s *InMemory) Insert(ctx context.Context, identity string, chunk NewChunk) (Receipt, error) {
	if len(chunk.Embedding) != s.dim {
		return Receipt{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(chunk.Embedding), s.dim)
	}
	digest := s.hasher.Hash(identity)
	aad := []byte(digest)

	text, err := s.envelope.Seal([]byte(chunk.Text), aad)
	if err != nil {
		return Receipt{}, err
	}
	metaJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return Receipt{}, err
	}
	metadata, err := s.envelope.Seal(metaJSON, aad)
	if err != nil {
		return Receipt{}, err
	}
	shadowJSON, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return Receipt{}, err
	}
	shadow, err := s.envelope.Seal(shadowJSON, aad)
	if err != nil {
		return Receipt{}, err
	}

	id := uuid.New()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.tenantHash == digest && row.docID == chunk.DocID && row.chunkIndex == chunk.ChunkIndex {
			return Receipt{}, fmt.Errorf("%w: doc %q chunk %d", ErrDuplicateChunk, chunk.DocID, chunk.ChunkIndex)
		}
	}
	s.rows[id] = memRow{
		tenantHash: digest,
		docID:      chunk.DocID,
		source:     chunk.Source,
		chunkIndex: chunk.ChunkIndex,
		embedding:  append([]float32(nil), chunk.Embedding...),
		text:       text,
		metadata:   metadata,
		shadow:     shadow,
		tags:       append([]string(nil), chunk.Tags...),
		createdAt:  now,
		expiresAt:  chunk.ExpiresAt,
	}
	insertsTotal.Inc()
	return Receipt{ID: id, CreatedAt: now}, nil
}

func (s *InMemory) QuerySimilar(ctx context.Context, identity string, embedding []float32, k int, filters Filters) ([]Candidate, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("memstore: k must be positive, got %d", k)
	}
	digest := s.hasher.Hash(identity)
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Candidate
	for id, row := range s.rows {
		if row.tenantHash != digest || !row.visible(now) || !row.matches(filters) {
			continue
		}
		out = append(out, s.candidate(id, row, cosineDistance(embedding, row.embedding)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	queriesTotal.Inc()
	return out, nil
}

func (s *InMemory) GetChunks(ctx context.Context, identity string, ids []uuid.UUID) ([]Candidate, error) {
	digest := s.hasher.Hash(identity)
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	// A repeated id yields one candidate, as WHERE id = ANY($1) does.
	var out []Candidate
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		row, ok := s.rows[id]
		if !ok || row.tenantHash != digest || !row.visible(now) {
			continue
		}
		out = append(out, s.candidate(id, row, 0))
	}
	return out, nil
}

func (s *InMemory) Delete(ctx context.Context, identity string, id uuid.UUID) error {
	digest := s.hasher.Hash(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.tenantHash != digest {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *InMemory) candidate(id uuid.UUID, row memRow, distance float64) Candidate {
	return Candidate{
		ID:                 id,
		TenantHash:         row.tenantHash,
		DocID:              row.docID,
		Source:             row.source,
		ChunkIndex:         row.chunkIndex,
		Distance:           distance,
		Tags:               append([]string(nil), row.tags...),
		CreatedAt:          row.createdAt,
		TextCiphertext:     row.text,
		MetadataCiphertext: row.metadata,
	}
}

func (r memRow) visible(now time.Time) bool {
	return r.expiresAt == nil || r.expiresAt.After(now)
}

func (r memRow) matches(f Filters) bool {
	if f.Source != "" && r.source != f.Source {
		return false
	}
	if f.CreatedAfter != nil && r.createdAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && r.createdAt.After(*f.CreatedBefore) {
		return false
	}
	if len(f.Tags) > 0 && !overlaps(r.tags, f.Tags) {
		return false
	}
	return true
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// cosineDistance matches pgvector's <=> operator: 1 - cosine similarity.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
