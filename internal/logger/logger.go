package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Logger = slog.Default()

// Init builds the process logger. DEBUG=true forces debug level; format is
// "text" (default) or "json".
func Init(level, format string) *slog.Logger {
	return initTo(os.Stdout, level, format)
}

func initTo(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	if os.Getenv("DEBUG") == "true" {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}

	Logger = slog.New(h)
	slog.SetDefault(Logger)
	return Logger
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Component returns the process logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
