package logger

import (
	"log/slog"
	"os"
)

// New returns the root slog logger; services receive children via WithLogger options.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
