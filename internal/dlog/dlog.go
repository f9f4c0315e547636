// Package dlog is structured JSON-line logging for the daemon's
// unattended log files (daemon.log, rotation.log). Grounded in
// cuemby-warren's pkg/log use of zerolog, but constructed explicitly per
// caller instead of held in a package-level global — the daemon, the
// vault handle, and the scheduler are all explicitly constructed objects
// with no process-wide registry, and their logger is no exception.
package dlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger writing structured JSON lines.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// OpenFile opens (creating if absent) an append-only log file at path and
// wraps it in a Logger. The caller is responsible for closing the
// returned file when the daemon shuts down.
func OpenFile(path string) (*Logger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return New(f), f, nil
}

// Component returns a child logger tagging every line with a component
// name, mirroring the teacher's WithComponent helper.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *Logger) Info(event string) *zerolog.Event  { return l.zl.Info().Str("event", event) }
func (l *Logger) Warn(event string) *zerolog.Event  { return l.zl.Warn().Str("event", event) }
func (l *Logger) Error(event string) *zerolog.Event { return l.zl.Error().Str("event", event) }
