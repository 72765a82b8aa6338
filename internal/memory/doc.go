// Package memory is the façade over the tenant-isolated memory subsystem.
// It exposes four operations: index, query, summarize, and extract-entities.
//
// The façade's only privileged job is turning the upstream-verified caller
// identity into a tenant digest and keeping every store access inside a
// tenant scope. Everything else is validation, embedding, reranking, and
// shaping results.
package memory
