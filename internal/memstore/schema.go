package memstore

import "fmt"

// Schema returns the DDL for the memory_chunks table, parameterized on the
// embedding dimension. It is applied by `memctl migrate` running as the
// table owner; the serving role connects without BYPASSRLS so the policies
// below bind every request.
//
// FORCE ROW LEVEL SECURITY extends the policy to the owner as well, so the
// only path around it is an explicit BYPASSRLS role. That role is reserved
// for migration and maintenance tooling and its use is the documented,
// audited admin exception.
func Schema(dim int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_chunks (
    id                          UUID PRIMARY KEY,
    tenant_hash                 TEXT NOT NULL CHECK (tenant_hash <> ''),
    doc_id                      TEXT NOT NULL,
    source                      TEXT NOT NULL,
    chunk_index                 INTEGER NOT NULL,
    embedding                   VECTOR(%d) NOT NULL,
    text_ciphertext             BYTEA NOT NULL,
    metadata_ciphertext         BYTEA NOT NULL,
    embedding_shadow_ciphertext BYTEA NOT NULL,
    tags                        TEXT[] NOT NULL DEFAULT '{}',
    created_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at                  TIMESTAMPTZ,
    UNIQUE (tenant_hash, doc_id, chunk_index)
);

ALTER TABLE memory_chunks ENABLE ROW LEVEL SECURITY;
ALTER TABLE memory_chunks FORCE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS tenant_rows ON memory_chunks;
CREATE POLICY tenant_rows ON memory_chunks
    USING (tenant_hash = current_setting('memoryd.tenant_hash', true))
    WITH CHECK (tenant_hash = current_setting('memoryd.tenant_hash', true));

CREATE INDEX IF NOT EXISTS memory_chunks_embedding_idx
    ON memory_chunks USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS memory_chunks_tenant_idx
    ON memory_chunks (tenant_hash);
CREATE INDEX IF NOT EXISTS memory_chunks_created_idx
    ON memory_chunks (created_at);
CREATE INDEX IF NOT EXISTS memory_chunks_expires_idx
    ON memory_chunks (expires_at) WHERE expires_at IS NOT NULL;
`, dim)
}
