package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasher_RequiresKey(t *testing.T) {
	_, err := NewHasher("")
	assert.ErrorIs(t, err, ErrNoHashKey)
}

func TestHash_Deterministic(t *testing.T) {
	h, err := NewHasher("test-hash-key")
	require.NoError(t, err)

	d1 := h.Hash("user-alice@example.com")
	d2 := h.Hash("user-alice@example.com")
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, DigestLen)
}

func TestHash_DistinctIdentities(t *testing.T) {
	h, err := NewHasher("test-hash-key")
	require.NoError(t, err)

	assert.NotEqual(t, h.Hash("tenant-a"), h.Hash("tenant-b"))
}

func TestHash_KeyDependent(t *testing.T) {
	h1, err := NewHasher("key-one")
	require.NoError(t, err)
	h2, err := NewHasher("key-two")
	require.NoError(t, err)

	// Without the server key the digest cannot be reproduced.
	assert.NotEqual(t, h1.Hash("tenant-a"), h2.Hash("tenant-a"))
}
