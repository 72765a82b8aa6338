package telemetry

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

// Config holds telemetry export configuration.
type Config struct {
	Enabled        bool            `koanf:"enabled"`
	ServiceName    string          `koanf:"service_name"`
	ServiceVersion string          `koanf:"service_version"`
	Endpoint       string          `koanf:"endpoint"`
	Protocol       string          `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure       bool            `koanf:"insecure"`
	SamplingRate   float64         `koanf:"sampling_rate"`
	FlushTimeout   config.Duration `koanf:"flush_timeout"`
}

// FromAppConfig builds a telemetry Config from the application config.
func FromAppConfig(c config.TelemetryConfig, version string) *Config {
	return &Config{
		Enabled:        c.Enabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: version,
		Endpoint:       c.Endpoint,
		Protocol:       c.Protocol,
		Insecure:       c.Insecure,
		SamplingRate:   c.SamplingRate,
		FlushTimeout:   c.FlushTimeout,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("unsupported protocol %q (want grpc or http/protobuf)", c.Protocol)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be in [0, 1], got %f", c.SamplingRate)
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = config.Duration(5 * time.Second)
	}
	return nil
}
