// Package logger 提供结构化日志以及基于 context 的请求级 logger 注入
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// L 是全局默认 logger; 用 Init 初始化, 请求内使用 FromContext
var (
	L      = slog.Default()
	logKey = ctxKey{}
)

// Init 根据级别和格式 ("text" / "json") 初始化全局 logger, 输出到 stderr
func Init(level, format string) {
	L = New(level, format, os.Stderr)
	slog.SetDefault(L)
}

// New 创建一个独立的 logger, 主要给测试使用
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// FromContext 返回 ctx 中的 logger, 没有则返回全局 logger
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if l, ok := ctx.Value(logKey).(*slog.Logger); ok {
		return l
	}
	return L
}

// WithContext 把 logger 放进 ctx
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, logKey, l)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
