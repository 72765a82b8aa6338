package crypto

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

func writeKeyFile(t *testing.T, dir, primary, previous string) string {
	t.Helper()
	content := "data_key: " + primary + "\n"
	if previous != "" {
		content += "previous_key: " + previous + "\n"
	}
	path := filepath.Join(dir, "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeKeyFile(t, dir, testSecret(0x01).Value(), testSecret(0x02).Value())

	primary, previous, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, testSecret(0x01), primary)
	assert.Equal(t, testSecret(0x02), previous)
}

func TestLoadKeyFile_RejectsInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_key: x\n"), 0644))

	_, _, err := LoadKeyFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadKeyFile_RequiresDataKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte("previous_key: x\n"), 0600))

	_, _, err := LoadKeyFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_key")
}

func TestReloadFromFile_SwapsKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeKeyFile(t, dir, testSecret(0x01).Value(), "")

	kr, err := NewKeyring(testSecret(0x01), "")
	require.NoError(t, err)
	env, err := NewEnvelope(kr)
	require.NoError(t, err)

	aad := []byte("tenant-a")
	blob, err := env.Seal([]byte("before swap"), aad)
	require.NoError(t, err)

	// Operator rotates: new primary, old primary kept as previous.
	path = writeKeyFile(t, dir, testSecret(0x02).Value(), testSecret(0x01).Value())
	require.NoError(t, kr.reloadFromFile(path))

	got, err := env.Open(blob, aad)
	require.NoError(t, err)
	assert.Equal(t, []byte("before swap"), got)
	assert.True(t, kr.HasPrevious())
}

func TestWatch_ReloadsAfterAtomicRename(t *testing.T) {
	// Rotation is documented as an atomic file replacement: the operator
	// writes the new key file next to the old one and renames it into place.
	// The rename swaps the inode, so the watcher must survive it.
	dir := t.TempDir()
	path := writeKeyFile(t, dir, testSecret(0x01).Value(), "")

	kr, err := NewKeyring(testSecret(0x01), "")
	require.NoError(t, err)
	env, err := NewEnvelope(kr)
	require.NoError(t, err)

	aad := []byte("tenant-a")
	oldBlob, err := env.Seal([]byte("sealed before rotation"), aad)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, kr.Watch(ctx, path, logging.NewTestLogger().Logger))

	next := filepath.Join(dir, "keys.yaml.next")
	content := "data_key: " + testSecret(0x02).Value() + "\nprevious_key: " + testSecret(0x01).Value() + "\n"
	require.NoError(t, os.WriteFile(next, []byte(content), 0600))
	require.NoError(t, os.Rename(next, path))

	require.Eventually(t, func() bool { return kr.HasPrevious() },
		2*time.Second, 10*time.Millisecond, "keyring did not reload after rename rotation")

	// New primary seals; the pre-rotation blob still opens via the previous key.
	blob, err := env.Seal([]byte("sealed after rotation"), aad)
	require.NoError(t, err)
	_, err = env.OpenPrimaryOnly(blob, aad)
	require.NoError(t, err)
	_, err = env.OpenPrimaryOnly(oldBlob, aad)
	require.Error(t, err)
	got, err := env.Open(oldBlob, aad)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed before rotation"), got)
}

func TestReloadFromFile_KeepsKeyringOnBadFile(t *testing.T) {
	dir := t.TempDir()
	kr, err := NewKeyring(testSecret(0x01), "")
	require.NoError(t, err)
	env, err := NewEnvelope(kr)
	require.NoError(t, err)

	blob, err := env.Seal([]byte("still sealed"), []byte("aad"))
	require.NoError(t, err)

	badPath := filepath.Join(dir, "keys.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("data_key: tooshort\n"), 0600))
	assert.Error(t, kr.reloadFromFile(badPath))

	// Old keyring still opens old blobs.
	got, err := env.Open(blob, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, []byte("still sealed"), got)
}
