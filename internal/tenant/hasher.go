package tenant

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

// DigestLen is the length of a tenant digest in hex characters.
const DigestLen = 64

// ErrNoHashKey is returned when the tenant hash key is not configured.
// There is no default key: hashing identities with a guessable key would let
// anyone forge a partition key.
var ErrNoHashKey = errors.New("tenant: hash key not configured")

// Hasher derives stable, non-reversible tenant digests.
type Hasher struct {
	key []byte
}

// NewHasher creates a Hasher from the configured hash key.
func NewHasher(key config.Secret) (*Hasher, error) {
	if !key.IsSet() {
		return nil, ErrNoHashKey
	}
	return &Hasher{key: []byte(key.Value())}, nil
}

// Hash returns the HMAC-SHA256 digest of identity as lowercase hex.
// Deterministic: the same identity always yields the same digest, and the
// digest cannot be inverted or forged without the server-held key.
func (h *Hasher) Hash(identity string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(identity))
	return hex.EncodeToString(mac.Sum(nil))
}
