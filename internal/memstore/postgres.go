package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

// Postgres implements Store over a pgvector-enabled Postgres database. All
// statements run through a tenant scope, so the row policy filters every
// read and write.
type Postgres struct {
	scope    *tenant.Scope
	envelope *crypto.Envelope
	logger   *logging.Logger
	dim      int
}

// NewPostgres creates the production store. dim is the embedding dimension
// of the configured model; vectors of any other length are rejected.
func NewPostgres(scope *tenant.Scope, envelope *crypto.Envelope, logger *logging.Logger, dim int) (*Postgres, error) {
	if scope == nil {
		return nil, fmt.Errorf("memstore: tenant scope is required")
	}
	if envelope == nil {
		return nil, fmt.Errorf("memstore: envelope is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("memstore: embedding dimension must be positive, got %d", dim)
	}
	return &Postgres{
		scope:    scope,
		envelope: envelope,
		logger:   logger.Named("memstore"),
		dim:      dim,
	}, nil
}

const insertChunkSQL = `
INSERT INTO memory_chunks (
    id, tenant_hash, doc_id, source, chunk_index,
    embedding, text_ciphertext, metadata_ciphertext, embedding_shadow_ciphertext,
    tags, expires_at
) VALUES ($1, $2, $3, $4, $5, $6::vector, $7, $8, $9, $10, $11)
RETURNING created_at`

// Insert seals text, metadata, and the embedding shadow under the tenant
// digest and writes the row inside a tenant scope.
func (p *Postgres) Insert(ctx context.Context, identity string, chunk NewChunk) (Receipt, error) {
	if len(chunk.Embedding) != p.dim {
		return Receipt{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(chunk.Embedding), p.dim)
	}

	digest := p.scope.Hash(identity)
	aad := []byte(digest)

	textBlob, err := p.envelope.Seal([]byte(chunk.Text), aad)
	if err != nil {
		return Receipt{}, fmt.Errorf("memstore: sealing text: %w", err)
	}
	metaJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return Receipt{}, fmt.Errorf("memstore: encoding metadata: %w", err)
	}
	metaBlob, err := p.envelope.Seal(metaJSON, aad)
	if err != nil {
		return Receipt{}, fmt.Errorf("memstore: sealing metadata: %w", err)
	}
	shadowJSON, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return Receipt{}, fmt.Errorf("memstore: encoding embedding shadow: %w", err)
	}
	shadowBlob, err := p.envelope.Seal(shadowJSON, aad)
	if err != nil {
		return Receipt{}, fmt.Errorf("memstore: sealing embedding shadow: %w", err)
	}

	id := uuid.New()
	var createdAt time.Time
	err = p.scope.WithTenant(ctx, identity, func(ctx context.Context, conn tenant.Conn) error {
		row := conn.QueryRow(ctx, insertChunkSQL,
			id, digest, chunk.DocID, chunk.Source, chunk.ChunkIndex,
			formatVector(chunk.Embedding), textBlob, metaBlob, shadowBlob,
			tagsOrEmpty(chunk.Tags), chunk.ExpiresAt)
		return row.Scan(&createdAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return Receipt{}, fmt.Errorf("%w: doc %q chunk %d", ErrDuplicateChunk, chunk.DocID, chunk.ChunkIndex)
		}
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	insertsTotal.Inc()
	p.logger.Debug(ctx, "chunk inserted",
		zap.String("chunk.id", id.String()),
		zap.String("doc.id", chunk.DocID),
		zap.Int("chunk.index", chunk.ChunkIndex))
	return Receipt{ID: id, CreatedAt: createdAt}, nil
}

const querySimilarSQL = `
SELECT id, tenant_hash, doc_id, source, chunk_index, tags, created_at,
       text_ciphertext, metadata_ciphertext,
       embedding <=> $1::vector AS distance
FROM memory_chunks
WHERE (expires_at IS NULL OR expires_at > now())
  AND ($2::text[] IS NULL OR tags && $2)
  AND ($3::text IS NULL OR source = $3)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at <= $5)
ORDER BY embedding <=> $1::vector
LIMIT $6`

// QuerySimilar runs the ANN scan. The row policy restricts the scan to the
// caller's tenant; an unprovisioned tenant gets an empty list, not an
// error.
func (p *Postgres) QuerySimilar(ctx context.Context, identity string, embedding []float32, k int, filters Filters) ([]Candidate, error) {
	if len(embedding) != p.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), p.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("memstore: k must be positive, got %d", k)
	}

	start := time.Now()
	var out []Candidate
	err := p.scope.WithTenant(ctx, identity, func(ctx context.Context, conn tenant.Conn) error {
		rows, err := conn.Query(ctx, querySimilarSQL,
			formatVector(embedding),
			nilIfEmptyTags(filters.Tags),
			nilIfEmptyText(filters.Source),
			filters.CreatedAfter,
			filters.CreatedBefore,
			k)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c Candidate
			if err := rows.Scan(&c.ID, &c.TenantHash, &c.DocID, &c.Source, &c.ChunkIndex,
				&c.Tags, &c.CreatedAt, &c.TextCiphertext, &c.MetadataCiphertext, &c.Distance); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	queriesTotal.Inc()
	queryDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

const getChunksSQL = `
SELECT id, tenant_hash, doc_id, source, chunk_index, tags, created_at,
       text_ciphertext, metadata_ciphertext
FROM memory_chunks
WHERE id = ANY($1)
  AND (expires_at IS NULL OR expires_at > now())`

// GetChunks loads chunks by id. Rows the policy hides are absent from the
// result, which keeps "missing" and "not yours" identical.
func (p *Postgres) GetChunks(ctx context.Context, identity string, ids []uuid.UUID) ([]Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []Candidate
	err := p.scope.WithTenant(ctx, identity, func(ctx context.Context, conn tenant.Conn) error {
		rows, err := conn.Query(ctx, getChunksSQL, ids)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c Candidate
			if err := rows.Scan(&c.ID, &c.TenantHash, &c.DocID, &c.Source, &c.ChunkIndex,
				&c.Tags, &c.CreatedAt, &c.TextCiphertext, &c.MetadataCiphertext); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// Delete removes one chunk for the caller's tenant. A zero row count means
// the id does not exist or is not visible, both reported as ErrNotFound.
func (p *Postgres) Delete(ctx context.Context, identity string, id uuid.UUID) error {
	var affected int64
	err := p.scope.WithTenant(ctx, identity, func(ctx context.Context, conn tenant.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM memory_chunks WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// formatVector renders a pgvector literal like [0.1,0.2,0.3].
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nilIfEmptyTags(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	return tags
}

func nilIfEmptyText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
