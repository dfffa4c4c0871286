// Package logger builds the root zerolog logger that every folio
// component derives its scoped logger from.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the log level and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console writer for development
}

// New builds the root logger. Unknown levels fall back to info rather
// than erroring: a misconfigured LOG_LEVEL must not stop the service.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	// Durations log as milliseconds, matching the *_ms field names the
	// HTTP middleware and scheduler use.
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("app", "folio").
		Logger()
}

// SetGlobalLogger routes the zerolog package-level logger through the
// configured root, so stray log.Info() calls share the same output.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
