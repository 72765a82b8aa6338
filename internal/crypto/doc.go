// Package crypto provides the envelope encryption service for memoryd.
//
// Every persisted payload (chunk text, metadata, embedding shadow) is sealed
// with AES-256-GCM, binding the caller-supplied AAD (always the tenant
// digest) into the authentication tag. A ciphertext sealed for tenant A can
// never be opened under tenant B's digest, independently of the store's
// row-level policy.
//
// The Keyring holds the primary data key and, during a rotation window, the
// previous key. Seal always uses the primary key; Open falls back to the
// previous key on authentication failure. All open failures collapse into
// ErrAuthenticationFailure: wrong AAD, wrong key, and tampering are
// indistinguishable to callers.
package crypto
