package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrAuthenticationFailure is returned when a blob fails to open. Wrong AAD,
// a retired key, and a tampered blob all surface as this one error; the
// distinction must not leak to callers.
var ErrAuthenticationFailure = errors.New("crypto: authentication failure")

// blobVersion is the current envelope format version.
const blobVersion = 0x01

// gcmNonceSize is the standard GCM nonce length in bytes.
const gcmNonceSize = 12

// minBlobSize is version byte + nonce + GCM tag.
const minBlobSize = 1 + gcmNonceSize + 16

// Envelope performs authenticated encryption bound to caller-supplied AAD.
type Envelope struct {
	keys *Keyring
}

// NewEnvelope creates an Envelope over the given keyring.
func NewEnvelope(keys *Keyring) (*Envelope, error) {
	if keys == nil {
		return nil, errors.New("crypto: keyring is required")
	}
	return &Envelope{keys: keys}, nil
}

// Seal authenticated-encrypts plaintext under the primary key, binding aad
// into the authentication tag.
//
// The blob layout is: version (1 byte) || nonce (12 bytes) || ciphertext+tag.
// A fresh random nonce is drawn per call, so two seals of identical input
// never produce identical blobs.
func (e *Envelope) Seal(plaintext, aad []byte) ([]byte, error) {
	gcm := e.keys.primaryAEAD()
	if gcm == nil {
		return nil, errors.New("crypto: no primary key configured")
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: drawing nonce: %w", err)
	}

	blob := make([]byte, 0, 1+gcmNonceSize+len(plaintext)+gcm.Overhead())
	blob = append(blob, blobVersion)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, plaintext, aad)
	return blob, nil
}

// Open reverses Seal. It tries the primary key first and falls back to the
// previous key if one is configured. Any failure is ErrAuthenticationFailure.
func (e *Envelope) Open(blob, aad []byte) ([]byte, error) {
	nonce, payload, err := splitBlob(blob)
	if err != nil {
		return nil, err
	}

	for _, gcm := range e.keys.openAEADs() {
		plaintext, err := gcm.Open(nil, nonce, payload, aad)
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, ErrAuthenticationFailure
}

// OpenPrimaryOnly opens a blob with the primary key only. Used by the
// rotation sweep to decide whether a row still needs re-sealing: a blob that
// only opens under the previous key must be re-encrypted before that key is
// retired.
func (e *Envelope) OpenPrimaryOnly(blob, aad []byte) ([]byte, error) {
	nonce, payload, err := splitBlob(blob)
	if err != nil {
		return nil, err
	}
	gcm := e.keys.primaryAEAD()
	if gcm == nil {
		return nil, ErrAuthenticationFailure
	}
	plaintext, err := gcm.Open(nil, nonce, payload, aad)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}

// splitBlob validates the envelope framing and returns nonce and payload.
func splitBlob(blob []byte) (nonce, payload []byte, err error) {
	if len(blob) < minBlobSize {
		return nil, nil, ErrAuthenticationFailure
	}
	if blob[0] != blobVersion {
		return nil, nil, ErrAuthenticationFailure
	}
	return blob[1 : 1+gcmNonceSize], blob[1+gcmNonceSize:], nil
}

// newGCM builds an AEAD from raw key bytes.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
