package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the process-wide structured logger. Records go to stdout
// as JSON with source locations so they can be shipped anywhere without
// a framing step; slog keeps the dependency surface at zero.
func New(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	})
	return slog.New(h)
}

// parseLevel maps a LOG_LEVEL string onto slog's levels; anything
// unrecognized (including empty) runs at info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
