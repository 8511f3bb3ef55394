package configs

import (
	"io"
	"log/slog"
	"strings"

	gormLogger "gorm.io/gorm/logger"
)

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

// NewLogger builds the process logger: JSON in production, text elsewhere.
func NewLogger(w io.Writer, level string, production bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if production {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// GormLevel maps LOG_LEVEL onto gorm's levels; SQL text only at debug.
func GormLevel(level string) gormLogger.LogLevel {
	switch parseLevel(level) {
	case slog.LevelDebug:
		return gormLogger.Info
	case slog.LevelError:
		return gormLogger.Error
	default:
		return gormLogger.Warn
	}
}
