// Package logging provides structured logging for memoryd built on Zap.
//
// Loggers are context-aware: trace/span IDs, the (truncated) tenant digest,
// and the request ID are pulled from context on every call. A redacting
// encoder keeps key material and decrypted payloads out of log storage, and
// level-aware sampling keeps volume bounded without ever dropping errors.
package logging
