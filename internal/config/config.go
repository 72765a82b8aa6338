// Package config provides configuration loading for memoryd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. Key material is validated at startup: a production deployment
// that is missing the tenant hash key or the data encryption key refuses to
// start rather than falling back to a default key.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"
)

// Config holds the complete memoryd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Crypto     CryptoConfig     `koanf:"crypto"`
	Tenant     TenantConfig     `koanf:"tenant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Reranker   RerankerConfig   `koanf:"reranker"`
	Memory     MemoryConfig     `koanf:"memory"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Production ProductionConfig `koanf:"production"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds Postgres connection configuration.
//
// The configured role must NOT be the table owner or a superuser: row-level
// security policies only bind to non-owner roles, and running the service as
// the owner would silently disable tenant isolation. Only memctl's migration
// commands connect as the owner role, and that path is logged.
type DatabaseConfig struct {
	URL             Secret   `koanf:"url"`
	MaxConns        int      `koanf:"max_conns"`
	MinConns        int      `koanf:"min_conns"`
	ConnectTimeout  Duration `koanf:"connect_timeout"`
	StatementTimout Duration `koanf:"statement_timeout"`
}

// CryptoConfig holds envelope encryption key material.
//
// DataKey is the primary AES-256 key (base64, 32 bytes decoded). PreviousKey
// is optional and only set during a rotation window; open falls back to it
// when the primary key fails to authenticate. KeyFile, when set, points at a
// YAML key file watched for rotation (see crypto.Keyring.Watch).
type CryptoConfig struct {
	DataKey     Secret `koanf:"data_key"`
	PreviousKey Secret `koanf:"previous_key"`
	KeyFile     string `koanf:"key_file"`
}

// TenantConfig holds the tenant identity hashing key.
type TenantConfig struct {
	HashKey Secret `koanf:"hash_key"`
}

// EmbeddingsConfig holds embedding endpoint configuration.
type EmbeddingsConfig struct {
	BaseURL       string `koanf:"base_url"`
	Model         string `koanf:"model"`
	APIKey        Secret `koanf:"api_key"`
	Dimension     int    `koanf:"dimension"`
	CacheMaxItems int64  `koanf:"cache_max_items"`
}

// RerankerConfig holds reranking pipeline configuration.
//
// Target is the latency budget the reranker should hit at p95; TripThreshold
// is the hard circuit-trip limit after which the pipeline fails open. When
// TripThreshold is zero it defaults to 1.6x Target.
type RerankerConfig struct {
	Enabled       bool     `koanf:"enabled"`
	Target        Duration `koanf:"target"`
	TripThreshold Duration `koanf:"trip_threshold"`
	TopK          int      `koanf:"top_k"`
}

// MemoryConfig holds memory store and facade limits.
type MemoryConfig struct {
	MaxTextBytes     int      `koanf:"max_text_bytes"`
	MaxMetadataBytes int      `koanf:"max_metadata_bytes"`
	ANNFanout        int      `koanf:"ann_fanout"`
	AllowedSources   []string `koanf:"allowed_sources"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled      bool     `koanf:"enabled"`
	ServiceName  string   `koanf:"service_name"`
	Endpoint     string   `koanf:"endpoint"`
	Protocol     string   `koanf:"protocol"`
	Insecure     bool     `koanf:"insecure"`
	SamplingRate float64  `koanf:"sampling_rate"`
	Logs         bool     `koanf:"logs"`
	FlushTimeout Duration `koanf:"flush_timeout"`
}

// ProductionConfig gates dev-only relaxations.
type ProductionConfig struct {
	Enabled bool `koanf:"enabled"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 16
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = Duration(5 * time.Second)
	}
	if cfg.Database.StatementTimout == 0 {
		cfg.Database.StatementTimout = Duration(30 * time.Second)
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384
	}
	if cfg.Embeddings.CacheMaxItems == 0 {
		cfg.Embeddings.CacheMaxItems = 10_000
	}

	if cfg.Reranker.Target == 0 {
		cfg.Reranker.Target = Duration(150 * time.Millisecond)
	}
	if cfg.Reranker.TripThreshold == 0 {
		cfg.Reranker.TripThreshold = Duration(time.Duration(float64(cfg.Reranker.Target.Duration()) * 1.6))
	}
	if cfg.Reranker.TopK == 0 {
		cfg.Reranker.TopK = 8
	}

	if cfg.Memory.MaxTextBytes == 0 {
		cfg.Memory.MaxTextBytes = 50 * 1024
	}
	if cfg.Memory.MaxMetadataBytes == 0 {
		cfg.Memory.MaxMetadataBytes = 10 * 1024
	}
	if cfg.Memory.ANNFanout == 0 {
		cfg.Memory.ANNFanout = 28
	}
	if len(cfg.Memory.AllowedSources) == 0 {
		cfg.Memory.AllowedSources = []string{"upload", "chat", "import", "api"}
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "memoryd"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.FlushTimeout == 0 {
		cfg.Telemetry.FlushTimeout = Duration(5 * time.Second)
	}

	if !cfg.Production.Enabled {
		cfg.Production.Enabled = os.Getenv("MEMORYD_PRODUCTION_MODE") == "1"
	}
}

// Validate validates the configuration.
//
// In production mode, missing key material is a startup error: there is no
// default hash key and no default data key, ever.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max_conns must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min_conns must be in [0, max_conns], got %d", c.Database.MinConns)
	}

	if c.Crypto.DataKey.IsSet() {
		if err := validateKey(c.Crypto.DataKey, "crypto.data_key"); err != nil {
			return err
		}
	}
	if c.Crypto.PreviousKey.IsSet() {
		if err := validateKey(c.Crypto.PreviousKey, "crypto.previous_key"); err != nil {
			return err
		}
	}

	if c.Embeddings.Dimension < 1 {
		return fmt.Errorf("embeddings dimension must be >= 1, got %d", c.Embeddings.Dimension)
	}

	if c.Reranker.Target.Duration() <= 0 {
		return errors.New("reranker target must be positive")
	}
	if c.Reranker.TripThreshold.Duration() < c.Reranker.Target.Duration() {
		return fmt.Errorf("reranker trip_threshold %s must be >= target %s",
			c.Reranker.TripThreshold.Duration(), c.Reranker.Target.Duration())
	}
	if c.Reranker.TopK < 1 {
		return fmt.Errorf("reranker top_k must be >= 1, got %d", c.Reranker.TopK)
	}

	if c.Memory.ANNFanout < 1 {
		return fmt.Errorf("memory ann_fanout must be >= 1, got %d", c.Memory.ANNFanout)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("telemetry service_name required when telemetry is enabled")
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry sampling_rate must be in [0, 1], got %f", c.Telemetry.SamplingRate)
	}

	if c.Production.Enabled {
		if !c.Tenant.HashKey.IsSet() {
			return errors.New("production mode requires tenant.hash_key; refusing to hash identities with a default key")
		}
		if !c.Crypto.DataKey.IsSet() && c.Crypto.KeyFile == "" {
			return errors.New("production mode requires crypto.data_key or crypto.key_file")
		}
		if !c.Database.URL.IsSet() {
			return errors.New("production mode requires database.url")
		}
	}

	return nil
}

// validateKey checks that a Secret decodes to exactly 32 bytes of base64.
func validateKey(s Secret, name string) error {
	raw, err := base64.StdEncoding.DecodeString(s.Value())
	if err != nil {
		return fmt.Errorf("%s is not valid base64: %w", name, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%s must decode to 32 bytes (AES-256), got %d", name, len(raw))
	}
	return nil
}
