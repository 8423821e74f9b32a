package app

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/fast-static/config"
)

// NewLogger builds the process logger: human-readable console output in
// development, JSON lines otherwise.
func NewLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if !cfg.IsProduction() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "fast-static").
		Logger()
}
