// Package logging provides structured logging for LexGate Core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, with service and version attached
// to every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("profile lookup failed", "error", err)
//
// # Redaction
//
// Attributes named password, token, access_token, refresh_token, code,
// verifier, secret, cookie (and similar) are replaced with [REDACTED] by
// the handler itself. Log identifiers such as user_id and organization_id
// instead of credentials.
package logging
