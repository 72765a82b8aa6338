package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// Maintenance bundles the operations that legitimately see every tenant's
// rows: the TTL sweep and the key-rotation re-encryption pass. It must be
// given a pool connected as the BYPASSRLS maintenance role, never the
// serving role, and every run is logged because it exercises the audited
// admin exception to the row policy.
type Maintenance struct {
	pool     *pgxpool.Pool
	envelope *crypto.Envelope
	logger   *logging.Logger
}

// NewMaintenance wires the maintenance-role pool.
func NewMaintenance(pool *pgxpool.Pool, envelope *crypto.Envelope, logger *logging.Logger) *Maintenance {
	return &Maintenance{pool: pool, envelope: envelope, logger: logger.Named("maintenance")}
}

// SweepExpired deletes chunks whose expires_at has passed. Returns the
// number of rows removed.
func (m *Maintenance) SweepExpired(ctx context.Context) (int64, error) {
	m.logger.Warn(ctx, "running TTL sweep with row policy bypass")

	tag, err := m.pool.Exec(ctx, `DELETE FROM memory_chunks WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("memstore: sweeping expired chunks: %w", err)
	}
	n := tag.RowsAffected()
	expiredSweptTotal.Add(float64(n))
	m.logger.Info(ctx, "TTL sweep complete", zap.Int64("swept", n))
	return n, nil
}

// ReencryptReport summarizes a re-encryption pass.
type ReencryptReport struct {
	Scanned       int
	Reencrypted   int
	Unrecoverable []uuid.UUID
}

// ReencryptAll walks every chunk and re-seals any payload that only opens
// under the previous key, so the previous key can be retired afterwards.
// Ciphertext replacement is whole-row: all three blobs are rewritten
// together. Blobs that open under neither key are reported, never deleted.
func (m *Maintenance) ReencryptAll(ctx context.Context, batchSize int) (ReencryptReport, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	m.logger.Warn(ctx, "running re-encryption sweep with row policy bypass")

	var report ReencryptReport
	var lastID uuid.UUID
	for {
		batch, err := m.loadBatch(ctx, lastID, batchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			return report, nil
		}

		for _, row := range batch {
			report.Scanned++
			lastID = row.id

			if _, err := m.envelope.OpenPrimaryOnly(row.text, []byte(row.tenantHash)); err == nil {
				continue // already sealed under the primary key
			}
			if err := m.reencryptRow(ctx, row); err != nil {
				m.logger.Error(ctx, "chunk cannot be re-encrypted",
					zap.String("chunk.id", row.id.String()), zap.Error(err))
				report.Unrecoverable = append(report.Unrecoverable, row.id)
				continue
			}
			report.Reencrypted++
		}
	}
}

type maintRow struct {
	id         uuid.UUID
	tenantHash string
	text       []byte
	metadata   []byte
	shadow     []byte
}

func (m *Maintenance) loadBatch(ctx context.Context, after uuid.UUID, limit int) ([]maintRow, error) {
	rows, err := m.pool.Query(ctx, `
SELECT id, tenant_hash, text_ciphertext, metadata_ciphertext, embedding_shadow_ciphertext
FROM memory_chunks
WHERE id > $1
ORDER BY id
LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("memstore: loading re-encryption batch: %w", err)
	}
	defer rows.Close()

	var batch []maintRow
	for rows.Next() {
		var r maintRow
		if err := rows.Scan(&r.id, &r.tenantHash, &r.text, &r.metadata, &r.shadow); err != nil {
			return nil, fmt.Errorf("memstore: scanning re-encryption batch: %w", err)
		}
		batch = append(batch, r)
	}
	return batch, rows.Err()
}

func (m *Maintenance) reencryptRow(ctx context.Context, row maintRow) error {
	aad := []byte(row.tenantHash)

	text, err := m.envelope.Open(row.text, aad)
	if err != nil {
		return fmt.Errorf("opening text: %w", err)
	}
	metadata, err := m.envelope.Open(row.metadata, aad)
	if err != nil {
		return fmt.Errorf("opening metadata: %w", err)
	}
	shadow, err := m.envelope.Open(row.shadow, aad)
	if err != nil {
		return fmt.Errorf("opening embedding shadow: %w", err)
	}

	newText, err := m.envelope.Seal(text, aad)
	if err != nil {
		return fmt.Errorf("resealing text: %w", err)
	}
	newMetadata, err := m.envelope.Seal(metadata, aad)
	if err != nil {
		return fmt.Errorf("resealing metadata: %w", err)
	}
	newShadow, err := m.envelope.Seal(shadow, aad)
	if err != nil {
		return fmt.Errorf("resealing embedding shadow: %w", err)
	}

	_, err = m.pool.Exec(ctx, `
UPDATE memory_chunks
SET text_ciphertext = $2, metadata_ciphertext = $3, embedding_shadow_ciphertext = $4, updated_at = now()
WHERE id = $1`, row.id, newText, newMetadata, newShadow)
	if err != nil {
		return fmt.Errorf("writing resealed blobs: %w", err)
	}
	return nil
}
