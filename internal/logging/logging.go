// File: internal/logging/logging.go
// Package logging builds the zerolog logger shared by every component.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options selects output format and verbosity.
type Options struct {
	Level     string    // "debug", "info", "warn", "error"; empty means info
	Debug     bool      // forces debug level
	Pretty    bool      // human-readable console output
	Output    io.Writer // defaults to os.Stderr
	Component string    // value of the "component" field, optional
}

// New returns a configured logger.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	return ctx.Logger()
}

// Nop returns a logger that discards everything. Used as the zero value in tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
