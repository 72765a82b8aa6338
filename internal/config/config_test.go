package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKey returns a valid base64-encoded 32-byte key.
func testKey(b byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func defaultTestConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaultTestConfig()

	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 16, cfg.Database.MaxConns)
	assert.Equal(t, 384, cfg.Embeddings.Dimension)
	assert.Equal(t, 28, cfg.Memory.ANNFanout)
	assert.Equal(t, 50*1024, cfg.Memory.MaxTextBytes)
	assert.Equal(t, 10*1024, cfg.Memory.MaxMetadataBytes)
	assert.Contains(t, cfg.Memory.AllowedSources, "upload")
	assert.Equal(t, 150*time.Millisecond, cfg.Reranker.Target.Duration())
	// Trip threshold defaults to 1.6x the target budget.
	assert.Equal(t, 240*time.Millisecond, cfg.Reranker.TripThreshold.Duration())
	assert.Equal(t, 8, cfg.Reranker.TopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "trip threshold below target",
			mutate: func(c *Config) {
				c.Reranker.Target = Duration(200 * time.Millisecond)
				c.Reranker.TripThreshold = Duration(100 * time.Millisecond)
			},
			wantErr: "trip_threshold",
		},
		{
			name:    "bad data key encoding",
			mutate:  func(c *Config) { c.Crypto.DataKey = "not base64!!!" },
			wantErr: "not valid base64",
		},
		{
			name: "short data key",
			mutate: func(c *Config) {
				c.Crypto.DataKey = Secret(base64.StdEncoding.EncodeToString([]byte("short")))
			},
			wantErr: "32 bytes",
		},
		{
			name:    "negative sampling rate",
			mutate:  func(c *Config) { c.Telemetry.SamplingRate = -0.5 },
			wantErr: "sampling_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_ProductionRequiresKeys(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Production.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant.hash_key")

	cfg.Tenant.HashKey = Secret(testKey(1))
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crypto.data_key")

	cfg.Crypto.DataKey = Secret(testKey(2))
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")

	cfg.Database.URL = "postgres://memoryd@localhost/memoryd"
	assert.NoError(t, cfg.Validate())
}

func TestSecret_NeverSerializesRawValue(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())
	assert.Equal(t, "hunter2", s.Value())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")

	formatted := fmt.Sprintf("%v %s %#v", s, s, s)
	assert.NotContains(t, formatted, "hunter2")
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("nonsense")))
}

func TestLoadWithFile_EnvOverride(t *testing.T) {
	t.Setenv("MEMORYD_SERVER_HTTP_PORT", "9999")
	t.Setenv("MEMORYD_MEMORY_ANN_FANOUT", "32")

	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 32, cfg.Memory.ANNFanout)
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "memoryd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 8081\n"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadWithFile_ReadsYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "memoryd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  http_port: 8081\nreranker:\n  target: 100ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Reranker.Target.Duration())
	assert.Equal(t, 160*time.Millisecond, cfg.Reranker.TripThreshold.Duration())
}

func TestLoadWithFile_RejectsPathOutsideAllowedDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0600))

	_, err := LoadWithFile(outside)
	require.Error(t, err)
}
