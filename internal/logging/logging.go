// Package logging configures zerolog for the service.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string
	Pretty bool
	// Out defaults to stdout. The stdio engine host logs to stderr since
	// stdout carries protocol frames.
	Out io.Writer
}

// Setup builds a logger, installs it as the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	l := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = l
	return l
}
