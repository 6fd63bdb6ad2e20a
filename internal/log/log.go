// Package log configures the process-wide structured logger for gnewer.
// All output goes to stderr so stdout stays reserved for the list of stale
// files.
package log

import (
	"io"
	"log/slog"
	"sync/atomic"
)

var (
	logger atomic.Pointer[slog.Logger]
	level  = new(slog.LevelVar)
)

func init() {
	level.Set(slog.LevelWarn)
	logger.Store(slog.New(NewHandler(nil, level, FormatText)))
}

// Init installs the global logger with verbosity v (0=error .. 4=trace) and
// the given format. A nil out means stderr.
func Init(v int, format Format, out io.Writer) {
	level.Set(VerbosityToLevel(v))
	l := slog.New(NewHandler(out, level, format))
	logger.Store(l)
	slog.SetDefault(l)
}

// SetVerbosity changes the level of the installed logger and of every
// Component logger derived from it.
func SetVerbosity(v int) {
	level.Set(VerbosityToLevel(v))
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	return logger.Load().With("component", name)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
