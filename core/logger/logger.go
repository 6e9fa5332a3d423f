// Package logger sets up structured application logging and summarizes the
// resulting event log.
package logger

import (
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

// Level is shared by every terminal handler created with New.
var Level = new(slog.LevelVar)

// Options selects the destinations of a logger.
type Options struct {
	// Terminal receives human readable lines filtered by Level.
	Terminal io.Writer
	// AppLog receives every record at debug level and above as JSON lines.
	AppLog io.Writer
}

// New creates a logger fanning out to the configured destinations. Without
// any it discards everything.
func New(opts Options) *slog.Logger {
	var handlers []slog.Handler

	if opts.Terminal != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Terminal, &slog.HandlerOptions{
			Level: Level,
		}))
	}
	if opts.AppLog != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.AppLog, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, nil))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// Discard returns a logger that drops everything, for tests and tools.
func Discard() *slog.Logger {
	return New(Options{})
}
