// Package logging configures the process-wide slog default logger. The rest
// of the codebase calls slog.Info/Debug/Error directly; this package only
// owns choosing and installing the handler at startup.
package logging

import (
	"log/slog"
	"os"
)

// Setup installs a slog handler on the default logger per level/format,
// returning the handler's *slog.Logger for callers that want a scoped
// child (e.g. With("match", matchID)) instead of the package-level default.
func Setup(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForMatch returns a logger scoped to one match's lifetime, so every log
// line from that match's tick loop carries its id without repeating it at
// every call site.
func ForMatch(base *slog.Logger, matchID string) *slog.Logger {
	return base.With("match", matchID)
}
