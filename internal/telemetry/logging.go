package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel разбирает уровень из LOG_LEVEL (DEBUG, INFO, WARN, ERROR,
// регистр не важен). По умолчанию INFO.
func LogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер процесса service.
//
// Формат вывода определяется LOG_FORMAT:
//   - "json" (по умолчанию) — для демонов под systemd/docker
//   - "text" — для запуска из терминала
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, os.Getenv("LOG_FORMAT"), LogLevel()).With("service", service)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер без установки его глобальным.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

type ctxKey string

// CtxLogger — ключ для логгера в контексте.
const CtxLogger ctxKey = "logger"

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithRequest возвращает логгер с guid restore'а.
func WithRequest(logger *slog.Logger, guid string) *slog.Logger {
	return logger.With("request_guid", guid)
}

// WithDownload возвращает логгер с файлом и id скачивания.
func WithDownload(logger *slog.Logger, downloadID int64, filename string) *slog.Logger {
	return logger.With("download_id", downloadID, "file", filename)
}

// WithJob возвращает логгер с именем compute job.
func WithJob(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("job", name)
}
