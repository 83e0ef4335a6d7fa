// Package log builds the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger on stderr at the given level, keeping stdout
// free for the interactive prompt.
func New(level string) *zerolog.Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput is New writing to an arbitrary sink; tests pass a buffer.
func NewWithOutput(level string, out io.Writer) *zerolog.Logger {
	console := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(console).Level(Level(level)).With().Timestamp().Logger()
	return &logger
}

// Level parses a level name. Unknown names fall back to info so a typo in the
// config never silences the process.
func Level(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
