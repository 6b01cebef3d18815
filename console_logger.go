package esc

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ConsoleLogger is the built-in ILogger bound when Config.Logger == "console".
// It wraps zerolog.Logger; the esc/log package holds a global instance of
// it behind package-level helpers.
type ConsoleLogger struct {
	zl zerolog.Logger
}

// NewConsoleLogger builds a ConsoleLogger writing human-readable output to
// os.Stderr with a timestamp on every line.
func NewConsoleLogger() *ConsoleLogger {
	zl := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
	return &ConsoleLogger{zl: zl}
}

func (c *ConsoleLogger) Info(msg string)  { c.zl.Info().Msg(msg) }
func (c *ConsoleLogger) Debug(msg string) { c.zl.Debug().Msg(msg) }
func (c *ConsoleLogger) Warn(msg string)  { c.zl.Warn().Msg(msg) }
func (c *ConsoleLogger) Error(msg string) { c.zl.Error().Msg(msg) }

var _ ILogger = (*ConsoleLogger)(nil)
