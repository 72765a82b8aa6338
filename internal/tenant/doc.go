// Package tenant provides tenant identity hashing and the database session
// scope that activates row-level tenant isolation.
//
// A tenant's identity never reaches the datastore directly. The Hasher
// derives a keyed, non-reversible digest that serves both as the row
// partition key and as the AAD binding ciphertexts to the tenant. The Scope
// binds that digest to a pooled Postgres connection for exactly the duration
// of one unit of work; row-level security policies on every table read the
// session setting and filter all statements by it.
package tenant
