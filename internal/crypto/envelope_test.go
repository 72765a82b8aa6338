package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

func testSecret(b byte) config.Secret {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return config.Secret(base64.StdEncoding.EncodeToString(raw))
}

func newTestEnvelope(t *testing.T) *Envelope {
	t.Helper()
	kr, err := NewKeyring(testSecret(0xA1), "")
	require.NoError(t, err)
	env, err := NewEnvelope(kr)
	require.NoError(t, err)
	return env
}

func TestSealOpen_RoundTrip(t *testing.T) {
	env := newTestEnvelope(t)

	payloads := [][]byte{
		[]byte("quarterly revenue rose 12%"),
		[]byte(""),
		bytes.Repeat([]byte{0x00}, 4096),
		{0xFF},
	}
	aads := [][]byte{
		[]byte("tenant-a-digest"),
		[]byte(""),
	}

	for _, p := range payloads {
		for _, aad := range aads {
			blob, err := env.Seal(p, aad)
			require.NoError(t, err)

			got, err := env.Open(blob, aad)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		}
	}
}

func TestOpen_WrongAADFails(t *testing.T) {
	env := newTestEnvelope(t)

	blob, err := env.Seal([]byte("secret text"), []byte("tenant-a"))
	require.NoError(t, err)

	got, err := env.Open(blob, []byte("tenant-b"))
	assert.ErrorIs(t, err, ErrAuthenticationFailure)
	assert.Nil(t, got, "no partial plaintext on failure")
}

func TestSeal_NeverDeterministic(t *testing.T) {
	env := newTestEnvelope(t)

	aad := []byte("tenant-a")
	plaintext := []byte("same input")

	blob1, err := env.Seal(plaintext, aad)
	require.NoError(t, err)
	blob2, err := env.Seal(plaintext, aad)
	require.NoError(t, err)

	assert.NotEqual(t, blob1, blob2, "identical inputs must yield distinct blobs")
}

func TestOpen_TamperDetection(t *testing.T) {
	env := newTestEnvelope(t)

	aad := []byte("tenant-a")
	blob, err := env.Seal([]byte("integrity matters"), aad)
	require.NoError(t, err)

	// Flip a single bit at every byte position: version, nonce, ciphertext, tag.
	for i := range blob {
		tampered := make([]byte, len(blob))
		copy(tampered, blob)
		tampered[i] ^= 0x01

		_, err := env.Open(tampered, aad)
		assert.ErrorIs(t, err, ErrAuthenticationFailure, "bit flip at byte %d not detected", i)
	}
}

func TestOpen_TruncatedBlobFails(t *testing.T) {
	env := newTestEnvelope(t)

	_, err := env.Open(nil, []byte("aad"))
	assert.ErrorIs(t, err, ErrAuthenticationFailure)

	_, err = env.Open([]byte{blobVersion, 0x01, 0x02}, []byte("aad"))
	assert.ErrorIs(t, err, ErrAuthenticationFailure)
}

func TestKeyring_RotationWindow(t *testing.T) {
	kr, err := NewKeyring(testSecret(0x01), "")
	require.NoError(t, err)
	env, err := NewEnvelope(kr)
	require.NoError(t, err)

	aad := []byte("tenant-a")
	blob, err := env.Seal([]byte("sealed before rotation"), aad)
	require.NoError(t, err)

	// Rotate: old primary becomes the previous key.
	require.NoError(t, kr.Rotate(testSecret(0x02)))
	assert.True(t, kr.HasPrevious())

	got, err := env.Open(blob, aad)
	require.NoError(t, err, "previous-key blob must open during the rotation window")
	assert.Equal(t, []byte("sealed before rotation"), got)

	// The sweep identifies it as needing re-seal.
	_, err = env.OpenPrimaryOnly(blob, aad)
	assert.ErrorIs(t, err, ErrAuthenticationFailure)

	// New seals open under the primary alone.
	fresh, err := env.Seal([]byte("sealed after rotation"), aad)
	require.NoError(t, err)
	_, err = env.OpenPrimaryOnly(fresh, aad)
	assert.NoError(t, err)

	// After retirement the old blob fails closed.
	kr.RetirePrevious()
	assert.False(t, kr.HasPrevious())
	_, err = env.Open(blob, aad)
	assert.ErrorIs(t, err, ErrAuthenticationFailure)
}

func TestNewKeyring_Validation(t *testing.T) {
	_, err := NewKeyring("", "")
	assert.Error(t, err)

	_, err = NewKeyring("not-base64!!!", "")
	assert.Error(t, err)

	short := config.Secret(base64.StdEncoding.EncodeToString([]byte("short")))
	_, err = NewKeyring(short, "")
	assert.Error(t, err)

	_, err = NewKeyring(testSecret(0x01), short)
	assert.Error(t, err)
}
