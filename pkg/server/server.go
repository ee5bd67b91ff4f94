package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"thingdrop/pkg/logger"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/router"
	"thingdrop/pkg/storage"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"
)

// Config 是 HTTP 服务的配置
type Config struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	StaticDir       string
	MaxUploadBytes  int64
}

// Deps 是处理器依赖的组件，由 app 容器注入
type Deps struct {
	Store    storage.Store
	Registry meta.Registry
	Uploader Uploader
}

// Server 封装 http.Server 与路由表
type Server struct {
	cfg     Config
	handler http.Handler
	httpSrv *http.Server
}

func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	rd, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	gz, err := gzhttp.NewWrapper()
	if err != nil {
		return nil, fmt.Errorf("failed to init gzip: %w", err)
	}
	h := &Handlers{
		store:     deps.Store,
		registry:  deps.Registry,
		uploader:  deps.Uploader,
		render:    rd,
		gzip:      gz,
		staticDir: cfg.StaticDir,
		maxBytes:  cfg.MaxUploadBytes,
	}

	s := &Server{cfg: cfg, handler: buildHandler(cfg, h)}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// 上传和转码可能很慢，不设置整体读写超时
	}
	return s, nil
}

// buildHandler 声明路由表 (顺序即优先级) 并套上中间件
func buildHandler(cfg Config, h *Handlers) http.Handler {
	d := router.New()
	// 页面在处理器内部压缩 (writeHTML); 原始文件不压缩, 保留 Range 支持
	d.HandleFunc(`^/$`, h.Index)
	d.Handle(`^/static/([^/]+)$`, h.gzip(http.HandlerFunc(h.Static)))
	d.HandleFunc(`^/f/([^/]+)$`, h.File)
	d.HandleFunc(`^/p/([^/]+)$`, h.Perma)
	d.HandleFunc(`^/upload$`, h.Upload)
	logger.L.Debug("routes registered", "patterns", d.Patterns())

	var handler http.Handler = d
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		})(handler)
	}
	handler = Recovery(handler)
	handler = Logging(handler)
	handler = chiMiddleware.RealIP(handler)
	handler = chiMiddleware.RequestID(handler)
	return handler
}

// Handler 返回完整的 HTTP 处理链，供测试使用
func (s *Server) Handler() http.Handler { return s.handler }

// Run 监听并服务，直到 ctx 被取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定的 listener 上服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.L.Info("🚀 thingdrop listening", "addr", ln.Addr().String())
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.L.Info("🛑 shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.L.Info("✅ server stopped")
		return nil
	})

	return g.Wait()
}
