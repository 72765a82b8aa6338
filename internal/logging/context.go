package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
//
// The tenant digest is logged truncated: the full digest is the row
// partition key and there is no reason to spread it across log storage.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if digest := TenantDigestFromContext(ctx); digest != "" {
		fields = append(fields, zap.String("tenant.digest", truncateDigest(digest)))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// Context key types
type tenantDigestCtxKey struct{}
type requestCtxKey struct{}

const (
	maxDigestLen       = 128
	maxIDLen           = 128
	digestLogPrefixLen = 12
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func truncateDigest(digest string) string {
	if len(digest) <= digestLogPrefixLen {
		return digest
	}
	return digest[:digestLogPrefixLen]
}

// validateID validates a request ID or tenant digest.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// TenantDigestFromContext extracts the tenant digest from context.
func TenantDigestFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(tenantDigestCtxKey{}).(string); ok {
		return d
	}
	return ""
}

// WithTenantDigest adds the tenant digest to context for log correlation.
// Panics if digest is empty or malformed; a request without a tenant digest
// should never reach logging-instrumented code paths.
func WithTenantDigest(ctx context.Context, digest string) context.Context {
	if err := validateID(digest, "tenant digest"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, tenantDigestCtxKey{}, digest)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
