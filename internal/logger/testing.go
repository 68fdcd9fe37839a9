// Package logger provides test helpers for structured logging.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// NewTestLogger creates a logger for tests.
// By default, uses WARN level to keep test output quiet.
// Set TEST_DEBUG environment variable to enable debug logging in tests.
func NewTestLogger() zerolog.Logger {
	level := zerolog.WarnLevel // Quiet by default

	// Allow tests to enable debug logging
	if os.Getenv("TEST_DEBUG") != "" {
		level = zerolog.DebugLevel
	}

	return NewLogger(Config{
		Level:  level,
		Format: "console",
		Output: os.Stdout,
	})
}
