package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"thingdrop/pkg/logger"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// 1. Logging Middleware (结构化日志)
// =============================================================================

// statusWriter 捕获下游处理器写入的状态码和字节数
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Unwrap 让 http.ResponseController 和 ServeContent 能拿到底层 writer
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Logging 为每个请求注入带 request_id 的 logger，并在结束时打印一行日志
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqLog := logger.L.With(slog.String("request_id", chiMiddleware.GetReqID(r.Context())))
		r = r.WithContext(logger.WithContext(r.Context(), reqLog))

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		reqLog.Log(r.Context(), levelFor(status), "HTTP Request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("bytes", sw.bytes),
			slog.Duration("dur", time.Since(start)),
			slog.String("remote", r.RemoteAddr),
		)
	})
}

// levelFor 只有服务端错误算 Error
// 404 和 409 是正常业务结果 (找不到 / 重复上传)，记为 Info
func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status == http.StatusNotFound, status == http.StatusConflict:
		return slog.LevelInfo
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// 2. Recovery Middleware (防弹衣)
// =============================================================================

// Recovery 捕获 Panic，记录堆栈并返回 500
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			// http.ErrAbortHandler 是 net/http 约定的中止信号，继续向上抛
			if p == http.ErrAbortHandler {
				panic(p)
			}
			logger.FromContext(r.Context()).Error("🔥 PANIC RECOVERED",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			Error(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
