package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "lexgate-core"

// redacted replaces the value of any attribute named in secretKeys.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the log sink,
// whatever the caller passes.
var secretKeys = map[string]bool{
	"password":       true,
	"token":          true,
	"access_token":   true,
	"refresh_token":  true,
	"id_token":       true,
	"code":           true,
	"code_verifier":  true,
	"verifier":       true,
	"client_secret":  true,
	"secret":         true,
	"encryption_key": true,
	"authorization":  true,
	"cookie":         true,
}

// Logger is the service-wide structured logger. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to cfg.Output (stdout unless "stderr").
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return NewWithWriter(output, cfg, version)
}

// NewWithWriter is New with an explicit destination. The Output field of cfg
// is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler).With("service", serviceName, "version", version),
	}
}

// redactSecrets blanks credential-bearing attributes at any group depth.
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes, e.g.
// logger.With("component", "idp").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a default logger for use before configuration is loaded.
// It writes JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops every entry. Intended for tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
}
