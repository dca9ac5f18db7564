// Package logger configures the process-wide zerolog logger, adapted
// from basekick-labs/arc's internal/logger: a console writer for
// development, structured JSON for production, and a Get helper that
// tags every logger with its owning component.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Setup configures the global zerolog logger's level and output format.
// format is "console" (human-readable, colorized) or "json" (structured,
// the default for production).
func Setup(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.ToLower(format) == "console" {
		zerolog.DefaultContextLogger = &zerolog.Logger{}
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		l := zerolog.New(w).With().Timestamp().Logger()
		zerolog.DefaultContextLogger = &l
		globalLogger = l
		return
	}

	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

var globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Get returns a logger tagged with component.
func Get(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}
