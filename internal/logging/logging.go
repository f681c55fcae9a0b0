// Package logging configures the daemon's structured logger and hands out
// component-scoped children of it.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the root logger's output.
type Options struct {
	// Level is one of zerolog's level strings: debug, info, warn, error.
	Level string
	// Pretty enables the human-readable console writer instead of JSON,
	// for interactive terminal use.
	Pretty bool
	Output io.Writer
}

// New builds the root logger described by opts.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with component=name, the
// convention every package in this daemon uses to identify its log lines.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
