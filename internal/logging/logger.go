// Package logging wires zerolog with the contextual helpers batches and
// games are tagged with.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Config controls format/level/output of the process logger.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Logger is an alias so callers don't need to import zerolog directly.
type Logger = zerolog.Logger

// New builds the process-wide logger from Config.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output = os.Stdout
	w := zerolog.ConsoleWriter{Out: output}
	var logger zerolog.Logger
	if cfg.Format == "pretty" || cfg.Format == "console" {
		logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(output).With().Timestamp().Logger()
	}
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithBatchID tags a logger with the batch it is processing.
func WithBatchID(logger zerolog.Logger, batchID string) zerolog.Logger {
	return logger.With().Str("batch_id", batchID).Logger()
}

// WithGameID tags a logger with the game it concerns.
func WithGameID(logger zerolog.Logger, gameID string) zerolog.Logger {
	return logger.With().Str("game_id", gameID).Logger()
}

// WithComponent tags a logger with the component name emitting it.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
