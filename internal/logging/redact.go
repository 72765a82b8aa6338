package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

// builtinSensitiveKeys is the field-name set memoryd never logs in the
// clear regardless of configuration: key material, caller identities, and
// decrypted chunk content. RedactionConfig.Fields extends this set.
var builtinSensitiveKeys = []string{
	"data_key", "previous_key", "hash_key", "api_key",
	"identity", "authorization", "token",
	"text", "plaintext", "metadata",
}

// Secret logs only the length of a config.Secret, never its value.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val.Value()))+"]")
}

// RedactedString logs only the length of a sensitive string.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder wraps a zapcore.Encoder so sensitive field names and
// string values matching the configured patterns never reach an output.
// The daemon logs next to decrypted tenant payloads and key material, so
// redaction is applied at the encoder rather than trusting call sites.
type RedactingEncoder struct {
	zapcore.Encoder
	sensitiveKeys map[string]struct{}
	valuePatterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base with memoryd's redaction rules plus any
// extra fields and patterns from cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	keys := make(map[string]struct{}, len(builtinSensitiveKeys)+len(cfg.Fields))
	for _, k := range builtinSensitiveKeys {
		keys[k] = struct{}{}
	}
	for _, k := range cfg.Fields {
		keys[strings.ToLower(k)] = struct{}{}
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{
		Encoder:       base,
		sensitiveKeys: keys,
		valuePatterns: patterns,
	}, nil
}

func (e *RedactingEncoder) sensitive(key string) bool {
	_, ok := e.sensitiveKeys[strings.ToLower(key)]
	return ok
}

// AddString redacts sensitive field names and matching values.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return
	}
	for _, re := range e.valuePatterns {
		if re.MatchString(val) {
			e.Encoder.AddString(key, "[REDACTED:pattern]")
			return
		}
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddByteString(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddBinary(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole reflected value when the key is sensitive;
// it does not descend into reflected structs or maps.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone preserves the redaction rules across zap's encoder copies.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:       e.Encoder.Clone(),
		sensitiveKeys: e.sensitiveKeys,
		valuePatterns: e.valuePatterns,
	}
}
