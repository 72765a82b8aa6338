package crypto

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// keyFile is the on-disk key file layout.
//
// Rotation is an atomic file replacement: the operator writes the new
// primary into data_key and moves the old one to previous_key. Retiring the
// previous key is deleting the previous_key entry.
type keyFile struct {
	DataKey     config.Secret `yaml:"data_key"`
	PreviousKey config.Secret `yaml:"previous_key"`
}

// LoadKeyFile reads key material from a YAML key file. The file must be
// owner-readable only.
func LoadKeyFile(path string) (primary, previous config.Secret, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("crypto: stat key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 && perm != 0400 {
		return "", "", fmt.Errorf("crypto: insecure key file permissions: %v (expected 0600 or 0400)", perm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("crypto: reading key file: %w", err)
	}

	var kf keyFile
	if err := yaml.Unmarshal(raw, &kf); err != nil {
		return "", "", fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if !kf.DataKey.IsSet() {
		return "", "", fmt.Errorf("crypto: key file has no data_key")
	}
	return kf.DataKey, kf.PreviousKey, nil
}

// Watch reloads the keyring whenever the key file changes, until ctx is
// cancelled. A reload that fails to parse or validate leaves the current
// keyring untouched; serving with the old key beats serving with no key.
//
// The watch is placed on the containing directory, not the file: rotation
// replaces the file's inode via rename, and an inode watch dies silently
// with the old inode. Events for other names in the directory are ignored.
func (k *Keyring) Watch(ctx context.Context, path string, logger *logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("crypto: creating key file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("crypto: watching key file directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				// Create covers a rename into place, Write covers in-place
				// edits. Remove/Rename of the file itself means a swap is in
				// flight; the Create that completes it triggers the reload.
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := k.reloadFromFile(path); err != nil {
					logger.Error(ctx, "key file reload failed, keeping current keyring", zap.Error(err))
					continue
				}
				logger.Info(ctx, "keyring reloaded from key file")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn(ctx, "key file watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

// reloadFromFile swaps the keyring contents from the key file.
func (k *Keyring) reloadFromFile(path string) error {
	primary, previous, err := LoadKeyFile(path)
	if err != nil {
		return err
	}

	fresh, err := NewKeyring(primary, previous)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.primary = fresh.primary
	k.previous = fresh.previous
	keyRotationsTotal.Inc()
	return nil
}
