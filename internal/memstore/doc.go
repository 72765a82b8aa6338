// Package memstore persists encrypted memory chunks in Postgres with
// pgvector similarity search and row-level security keyed on the tenant
// digest.
//
// Every read and write runs inside a tenant scope (internal/tenant), so the
// database enforces row visibility itself. Payload fields are sealed with
// the tenant digest as AAD (internal/crypto), which makes a chunk's
// ciphertext useless outside its own tenant even if the rows leak.
package memstore
