// Package qlog provides the structured logger shared by the epoch and
// qtable packages. It stays out of the hot get/put path: only migration,
// participant registration, retirement-scan summaries and table
// destruction are logged, at debug/info level, plus one error-level line
// when a migration copy finds no room in the target store.
package qlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level is a coarse logging level, independent of zerolog's own type so
// callers don't need to import zerolog just to configure a Logger.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures a Logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds a zerolog.Logger from cfg. A zero Config yields an
// info-level console logger writing to stdout.
func New(cfg Config) zerolog.Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: output}).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, used as the default
// when a caller doesn't wire one in.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
