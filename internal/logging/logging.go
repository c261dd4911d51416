// Package logging builds the application's *slog.Logger.
//
// Everything logs through log/slog. Only the handler changes: slog's text
// handler for humans in development, phuslu/log's JSON handler for log
// shippers in production.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	phuslog "github.com/phuslu/log"
)

// New returns a logger writing to w in the given format ("text" or "json").
func New(w io.Writer, format string, level slog.Leveler) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(phuslog.SlogNewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
