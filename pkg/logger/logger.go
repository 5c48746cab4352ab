// Package logger wires up zerolog for the rebalancing core and anything
// that embeds it, matching the convention the rest of the pack uses:
// structured, leveled logging with an RFC3339 timestamp and caller info.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log level and output format.
type Config struct {
	Level  string // debug, info, warn, error; unknown or empty defaults to info
	Pretty bool   // human-readable console writer instead of JSON
}

// New builds a zerolog.Logger from cfg and sets the process-wide global
// level as a side effect, so every logger derived with .With() downstream
// inherits it.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var writer = os.Stdout
	logger := zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var global zerolog.Logger

// SetGlobalLogger stores logger as the process-wide default, for code paths
// that cannot take a logger as a dependency (e.g. package-level helpers).
func SetGlobalLogger(l zerolog.Logger) {
	global = l
}

// Global returns the logger previously installed with SetGlobalLogger, or
// a zero-value zerolog.Logger (which has no writer and discards every
// event) if none was set.
func Global() zerolog.Logger {
	return global
}
