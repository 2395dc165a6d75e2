// Package cdp 通过 Chrome DevTools Protocol 驱动宿主页面，嵌入文档只经宿主页面自身的 JS 上下文访问
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/protocol/target"
	"github.com/mafredri/cdp/rpcc"
	"github.com/tidwall/gjson"

	"locatorcheck/internal/config"
	"locatorcheck/internal/delivery"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/origin"
	"locatorcheck/internal/script"
	"locatorcheck/pkg/model"
)

// ErrNotConnected 尚未连接宿主页面
var ErrNotConnected = errors.New("host page not connected")

type evalFunc func(ctx context.Context, expr string) (json.RawMessage, error)

// Options 管理器配置
type Options struct {
	Host         config.Host
	ProxyBaseURL string
	LoadTimeout  time.Duration
	Logger       logger.Logger
}

// Manager 宿主页面连接管理
type Manager struct {
	opt Options
	log logger.Logger

	mu     sync.RWMutex
	conn   *rpcc.Conn
	client *cdp.Client
	page   *devtool.Target
}

// New 创建管理器
func New(opt Options) *Manager {
	if opt.Logger == nil {
		opt.Logger = logger.NewNop()
	}
	if opt.Host.FrameSelector == "" {
		opt.Host.FrameSelector = "iframe"
	}
	if opt.LoadTimeout <= 0 {
		opt.LoadTimeout = 5 * time.Second
	}
	opt.ProxyBaseURL = strings.TrimRight(opt.ProxyBaseURL, "/")
	return &Manager{opt: opt, log: opt.Logger.With("component", "cdp")}
}

// Targets 列出浏览器中的页面目标
func (m *Manager) Targets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.opt.Host.DevToolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		out = append(out, toTargetInfo(t))
	}
	return out, nil
}

// Connect 附加到地址匹配 PageURLPrefix 的宿主页面
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}

	targets, err := devtool.New(m.opt.Host.DevToolsURL).List(ctx)
	if err != nil {
		return fmt.Errorf("list devtools targets: %w", err)
	}
	page := selectPage(targets, m.opt.Host.PageURLPrefix)
	if page == nil {
		return fmt.Errorf("no host page with url prefix %q", m.opt.Host.PageURLPrefix)
	}

	conn, err := rpcc.DialContext(ctx, page.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial host page: %w", err)
	}
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.page = page
	m.log.Info("已连接宿主页面", "target", page.ID, "url", page.URL)
	return nil
}

// Close 断开宿主页面连接
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn, m.client, m.page = nil, nil, nil
	return err
}

// TargetID 逻辑目标：宿主页面地址前缀 + 嵌入文档选择器，只取自配置，连接前后保持不变
func (m *Manager) TargetID() model.TargetID {
	return model.TargetID(m.opt.Host.PageURLPrefix + "|" + m.opt.Host.FrameSelector)
}

// Frame 返回嵌入文档句柄；嵌入内容不是 targetURL 时先导航过去
func (m *Manager) Frame(ctx context.Context, targetURL string) (delivery.Frame, error) {
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	raw, err := m.evaluate(ctx, currentSrcExpr(m.opt.Host.FrameSelector))
	if err != nil {
		return nil, err
	}
	r := gjson.ParseBytes(raw)
	if r.Get("status").String() == "missing" {
		return nil, delivery.ErrFrameMissing
	}
	src := r.Get("src").String()
	f := m.newFrame(src, m.isProxied(src))

	if !origin.HasScheme(targetURL) || f.Shows(targetURL) {
		return f, nil
	}
	m.log.Debug("嵌入内容与目标不一致，导航到目标", "from", src, "to", targetURL)
	return f.Navigate(ctx, targetURL, false)
}

// OpenTab 在新的顶层浏览上下文打开地址
func (m *Manager) OpenTab(ctx context.Context, u string) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	c := m.cdpClient()
	if c == nil {
		return ErrNotConnected
	}
	reply, err := c.Target.CreateTarget(ctx, target.NewCreateTargetArgs(u))
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	m.log.Info("已打开新标签页", "target", reply.TargetID, "url", u)
	return nil
}

func (m *Manager) newFrame(src string, proxied bool) *Frame {
	return &Frame{
		eval:        m.evaluate,
		selector:    m.opt.Host.FrameSelector,
		url:         src,
		proxied:     proxied,
		proxyBase:   m.opt.ProxyBaseURL,
		loadTimeout: m.opt.LoadTimeout,
		log:         m.log,
	}
}

func (m *Manager) isProxied(src string) bool {
	return isProxiedURL(m.opt.ProxyBaseURL, src)
}

func (m *Manager) cdpClient() *cdp.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// evaluate 在宿主页面执行表达式，等待 Promise 并按值返回
func (m *Manager) evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	c := m.cdpClient()
	if c == nil {
		return nil, ErrNotConnected
	}
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true).SetAwaitPromise(true)
	reply, err := c.Runtime.Evaluate(ctx, args)
	if err != nil {
		return nil, err
	}
	if reply.ExceptionDetails != nil {
		return nil, exceptionError(reply.ExceptionDetails)
	}
	return reply.Result.Value, nil
}

// selectPage 选择宿主页面，prefix 为空时取第一个页面
func selectPage(targets []*devtool.Target, prefix string) *devtool.Target {
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if prefix == "" || strings.HasPrefix(t.URL, prefix) {
			return t
		}
	}
	return nil
}

// isProxiedURL 判断地址是否为代理改写地址
func isProxiedURL(base, src string) bool {
	return base != "" && strings.HasPrefix(src, base+"/proxy?")
}

// proxiedTarget 取出代理地址中的原始目标
func proxiedTarget(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return u.Query().Get("url")
}

func currentSrcExpr(selector string) string {
	return `(function () {
  var f = document.querySelector(` + script.Literal(selector) + `);
  if (!f) { return { status: "missing" }; }
  return { status: "ok", src: f.src || "" };
})()`
}
