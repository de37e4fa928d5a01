// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options select level and output format ("json" or "console").
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New returns a timestamped zerolog logger. Output defaults to stdout.
func New(opt Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opt.Level != "" {
		parsed, err := zerolog.ParseLevel(opt.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	w := opt.Writer
	if w == nil {
		w = os.Stdout
	}
	switch opt.Format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stdout}
	default:
		return zerolog.Nop(), fmt.Errorf("logging: unknown format %q", opt.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
