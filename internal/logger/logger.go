// Package logger provides structured logging configuration using zerolog.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  zerolog.Level
	Format string    // "console" or "json"
	Output io.Writer // defaults to os.Stderr
}

// NewLogger creates a configured zerolog.Logger.
func NewLogger(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).Level(cfg.Level).With().Timestamp()
	// Add a caller location for debug level
	if cfg.Level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel maps a level name to a zerolog level.
// Valid values: TRACE, DEBUG, INFO, WARN, WARNING, ERROR. Anything else is INFO.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(name) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// DefaultConfig returns the default logger configuration.
// Parses the MUSICFLOW_LOG_LEVEL environment variable to set the log level.
// Default: INFO
func DefaultConfig() Config {
	return Config{
		Level:  ParseLevel(os.Getenv("MUSICFLOW_LOG_LEVEL")),
		Format: "console",
	}
}
