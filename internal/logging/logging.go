// Package logging builds the structured zerolog logger shared by all four
// pipeline services.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a JSON (or pretty console) logger at the given level with a
// service field attached to every record.
func New(service, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
