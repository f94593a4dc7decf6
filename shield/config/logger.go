package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type LogConfig struct {
	Level string `yaml:"level"`
	// console or json
	Format string `yaml:"format"`
	// Log to this file instead of stderr.
	Path string `yaml:"path"`
}

func (c LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	if c.Format != "" && c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	return nil
}

// NewLogger builds the logger described by c. The closer releases the log
// file, if any.
func NewLogger(c LogConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q", c.Level)
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if c.Path != "" {
		f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}
	if c.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: c.Path != ""}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer, nil
}
