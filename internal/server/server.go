// Package server 校验服务的 HTTP 接口
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"locatorcheck/internal/config"
	"locatorcheck/internal/ctxkeys"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/proxy"
	"locatorcheck/pkg/api"
)

// Server chi 路由与 http.Server 的薄封装
type Server struct {
	cfg   config.Server
	svc   api.Service
	proxy *proxy.Server
	log   logger.Logger
	mux   *chi.Mux
	srv   *http.Server
}

// New 创建 HTTP 服务，px 为空时不挂载代理路由
func New(cfg config.Server, svc api.Service, px *proxy.Server, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Server{cfg: cfg, svc: svc, proxy: px, log: l.With("component", "http"), mux: chi.NewRouter()}
	s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.mux
	r.Use(chimw.RealIP, chimw.RequestID, traceID, chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)
		r.Get("/script", s.handleScript)
		r.Get("/strategies", s.handleStrategies)
		r.Get("/events", s.handleEvents)
	})

	if s.proxy != nil {
		s.proxy.Routes(r)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}
}

// Handler 返回路由
func (s *Server) Handler() http.Handler { return s.mux }

// Addr 监听地址
func (s *Server) Addr() string { return s.cfg.Listen }

// Run 启动服务并阻塞
func (s *Server) Run(ctx context.Context) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.log.Info("HTTP 服务已启动", "addr", s.cfg.Listen)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// traceID 将 chi 请求 ID 写入链路上下文
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		next.ServeHTTP(w, r.WithContext(ctxkeys.WithTraceID(r.Context(), id)))
	})
}
