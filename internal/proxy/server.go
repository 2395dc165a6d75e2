// Package proxy 代理协作方：从宿主同源地址重新提供远端页面
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"locatorcheck/internal/config"
	"locatorcheck/internal/ctxkeys"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/storage"
	"locatorcheck/pkg/traffic"
)

// Cache 快照缓存
type Cache interface {
	Get(ctx context.Context, url string, ttl time.Duration) (*storage.Snapshot, bool, error)
	Put(ctx context.Context, snap *storage.Snapshot) error
}

// Server 代理服务
type Server struct {
	cfg    config.Proxy
	policy *Policy
	cache  Cache
	client *http.Client
	log    logger.Logger
}

// NewServer 创建代理服务，cache 可为空
func NewServer(cfg config.Proxy, cache Cache, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{
		cfg:    cfg,
		policy: NewPolicy(cfg.Rules),
		cache:  cache,
		client: &http.Client{Timeout: cfg.FetchTimeout()},
		log:    l.With("component", "proxy"),
	}
}

// Routes 挂载代理路由
func (s *Server) Routes(r chi.Router) {
	r.Get("/proxy", s.ServeProxy)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"healthy"}`)
	})
}

// ServeProxy 处理 GET /proxy?url=
func (s *Server) ServeProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := r.URL.Query().Get("url")
	l := s.log.With("traceId", ctxkeys.TraceID(ctx), "url", target)

	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	if !s.policy.Allowed(target) {
		l.Warn("代理目标被策略拒绝")
		http.Error(w, "target not allowed", http.StatusForbidden)
		return
	}

	if s.cache != nil {
		snap, ok, err := s.cache.Get(ctx, target, s.cfg.CacheTTL())
		if err != nil {
			l.Err(err, "读取快照缓存失败")
		} else if ok {
			l.Debug("命中快照缓存")
			s.write(w, snap.StatusCode, snap.ContentType, snap.Body)
			return
		}
	}

	start := time.Now()
	res, err := s.fetch(ctx, target)
	if err != nil {
		l.Err(err, "抓取远端页面失败")
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	body := res.Body
	contentType := res.Headers.Get("content-type")
	if res.IsHTML() {
		body, err = Rewrite(bytes.NewReader(res.Body), res.URL)
		if err != nil {
			l.Err(err, "改写页面失败")
			http.Error(w, "rewrite failed", http.StatusBadGateway)
			return
		}
		contentType = "text/html; charset=utf-8"
	}
	l.Info("代理页面完成", "status", res.StatusCode, "bytes", len(body), "duration", time.Since(start))

	if s.cache != nil && res.StatusCode == http.StatusOK {
		snap := &storage.Snapshot{URL: target, StatusCode: res.StatusCode, ContentType: contentType, Body: body}
		if err := s.cache.Put(ctx, snap); err != nil {
			l.Err(err, "写入快照缓存失败")
		}
	}
	s.write(w, res.StatusCode, contentType, body)
}

// fetch 抓取远端页面，响应体受 MaxBodyBytes 限制
func (s *Server) fetch(ctx context.Context, target string) (*traffic.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errors.New("upstream body exceeds limit")
	}

	res := traffic.NewResponse()
	res.URL = resp.Request.URL.String()
	res.StatusCode = resp.StatusCode
	res.Headers = traffic.FromHTTP(resp.Header)
	res.Body = body
	return res, nil
}

func (s *Server) write(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
