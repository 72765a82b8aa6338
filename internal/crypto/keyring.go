package crypto

import (
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

// Keyring holds the primary data key and, during a rotation window, the
// previous key. At most two keys exist at any time; Seal always uses the
// primary. Keys are read-mostly: rotation swaps the pair atomically under
// the write lock.
type Keyring struct {
	mu       sync.RWMutex
	primary  cipher.AEAD
	previous cipher.AEAD
}

// NewKeyring builds a keyring from base64-encoded 32-byte keys. previousKey
// may be empty outside a rotation window.
func NewKeyring(primaryKey, previousKey config.Secret) (*Keyring, error) {
	if !primaryKey.IsSet() {
		return nil, errors.New("crypto: primary data key is required")
	}

	primary, err := aeadFromSecret(primaryKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: primary key: %w", err)
	}

	kr := &Keyring{primary: primary}

	if previousKey.IsSet() {
		previous, err := aeadFromSecret(previousKey)
		if err != nil {
			return nil, fmt.Errorf("crypto: previous key: %w", err)
		}
		kr.previous = previous
	}

	return kr, nil
}

// Rotate installs a new primary key; the old primary becomes the previous
// key, and the old previous key is retired. Blobs sealed under the retired
// key fail to open from this point on and must be found by the re-encryption
// sweep beforehand.
func (k *Keyring) Rotate(newPrimary config.Secret) error {
	aead, err := aeadFromSecret(newPrimary)
	if err != nil {
		return fmt.Errorf("crypto: rotating key: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.previous = k.primary
	k.primary = aead
	keyRotationsTotal.Inc()
	return nil
}

// RetirePrevious drops the previous key, ending the rotation window.
func (k *Keyring) RetirePrevious() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.previous = nil
}

// HasPrevious reports whether a rotation window is open.
func (k *Keyring) HasPrevious() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.previous != nil
}

// primaryAEAD returns the current primary AEAD.
func (k *Keyring) primaryAEAD() cipher.AEAD {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.primary
}

// openAEADs returns the AEADs to try when opening, primary first.
func (k *Keyring) openAEADs() []cipher.AEAD {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.previous == nil {
		return []cipher.AEAD{k.primary}
	}
	return []cipher.AEAD{k.primary, k.previous}
}

// aeadFromSecret decodes a base64 key and builds an AEAD over it.
func aeadFromSecret(s config.Secret) (cipher.AEAD, error) {
	raw, err := base64.StdEncoding.DecodeString(s.Value())
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (AES-256), got %d", len(raw))
	}
	return newGCM(raw)
}
