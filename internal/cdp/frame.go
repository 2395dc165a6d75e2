package cdp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"locatorcheck/internal/delivery"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/script"
	"locatorcheck/pkg/model"
)

// Frame 嵌入文档句柄，所有操作都在宿主页面的 JS 上下文中进行
type Frame struct {
	eval        evalFunc
	selector    string
	url         string
	proxied     bool
	proxyBase   string
	loadTimeout time.Duration
	log         logger.Logger
}

var _ delivery.Frame = (*Frame)(nil)

func (f *Frame) URL() string   { return f.url }
func (f *Frame) Proxied() bool { return f.proxied }

// Shows 判断嵌入内容是否已是 targetURL（直接或经代理）
func (f *Frame) Shows(targetURL string) bool {
	if f.url == targetURL {
		return true
	}
	return isProxiedURL(f.proxyBase, f.url) && proxiedTarget(f.url) == targetURL
}

// Inject 在嵌入文档中插入 script 节点执行脚本
func (f *Frame) Inject(ctx context.Context, s model.Script) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := f.eval(ctx, injectExpr(f.selector, s))
	if err != nil {
		return fmt.Errorf("inject: %w", err)
	}
	r := gjson.ParseBytes(raw)
	switch status := r.Get("status").String(); status {
	case "ok":
		f.log.Debug("脚本已注入嵌入文档", "url", f.url, "result", r.Get("result.status").String(), "summary", r.Get("result.summary").String())
		return nil
	case "denied":
		return delivery.ErrAccessDenied
	case "loading":
		return delivery.ErrNotLoaded
	case "missing":
		return delivery.ErrFrameMissing
	default:
		return fmt.Errorf("unexpected inject status %q", status)
	}
}

// WaitLoaded 等待嵌入文档 load 事件，页面侧超时取 ctx 剩余时间
func (f *Frame) WaitLoaded(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := f.eval(ctx, waitLoadedExpr(f.selector, remaining(ctx, f.loadTimeout)))
	if err != nil {
		return fmt.Errorf("wait loaded: %w", err)
	}
	switch status := gjson.ParseBytes(raw).String(); status {
	case "ok":
		return nil
	case "missing":
		return delivery.ErrFrameMissing
	default:
		return fmt.Errorf("%w: load signal not received", delivery.ErrNotLoaded)
	}
}

// PostMessage 向嵌入窗口投递消息并等待对应确认，超时返回 ErrDeliveryTimeout
func (f *Frame) PostMessage(ctx context.Context, msg delivery.Message) (delivery.Ack, error) {
	if err := ctx.Err(); err != nil {
		return delivery.Ack{}, err
	}
	payload, err := msg.Encode()
	if err != nil {
		return delivery.Ack{}, err
	}
	wait := remaining(ctx, 2*time.Second)
	raw, err := f.eval(ctx, postMessageExpr(f.selector, payload, msg.ID, wait))
	if err != nil {
		return delivery.Ack{}, fmt.Errorf("post message: %w", err)
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return delivery.Ack{}, fmt.Errorf("%w after %s", delivery.ErrDeliveryTimeout, wait)
	}
	return delivery.DecodeAck([]byte(r.Raw))
}

// Navigate 修改嵌入文档地址并等待加载，返回新句柄
func (f *Frame) Navigate(ctx context.Context, u string, proxied bool) (delivery.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := f.eval(ctx, navigateExpr(f.selector, u, remaining(ctx, f.loadTimeout)))
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	switch status := gjson.ParseBytes(raw).String(); status {
	case "missing":
		return nil, delivery.ErrFrameMissing
	case "timeout":
		// 新句柄注入时会按未加载处理
		f.log.Warn("导航后未收到 load 事件", "url", u)
	}
	next := *f
	next.url = u
	next.proxied = proxied
	f.log.Info("嵌入文档已导航", "url", u, "proxied", proxied)
	return &next, nil
}

// remaining ctx 剩余时间，无截止时间时返回 def
func remaining(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
		return 0
	}
	return def
}

func ms(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func injectExpr(selector string, s model.Script) string {
	return `(function () {
  var f = document.querySelector(` + script.Literal(selector) + `);
  if (!f) { return { status: "missing" }; }
  var d = null;
  try { d = f.contentDocument; } catch (e) { return { status: "denied", error: String(e) }; }
  if (!d) { return { status: "denied" }; }
  if (d.readyState !== "complete" || !d.documentElement) { return { status: "loading" }; }
  var s = d.createElement("script");
  s.setAttribute(` + script.Literal(script.MarkerAttr) + `, "script");
  s.textContent = ` + script.Literal(s.String()) + `;
  (d.head || d.documentElement).appendChild(s);
  if (s.parentNode) { s.parentNode.removeChild(s); }
  var r = null;
  try { r = f.contentWindow[` + script.Literal(script.ResultVar) + `] || null; } catch (e) {}
  return { status: "ok", result: r };
})()`
}

func waitLoadedExpr(selector string, timeout time.Duration) string {
	return `new Promise(function (resolve) {
  var f = document.querySelector(` + script.Literal(selector) + `);
  if (!f) { resolve("missing"); return; }
  try {
    var d = f.contentDocument;
    if (d && d.readyState === "complete" && d.URL !== "about:blank") { resolve("ok"); return; }
  } catch (e) {}
  var t = setTimeout(function () { resolve("timeout"); }, ` + ms(timeout) + `);
  f.addEventListener("load", function () { clearTimeout(t); resolve("ok"); }, { once: true });
})`
}

func postMessageExpr(selector, payload, id string, timeout time.Duration) string {
	return `new Promise(function (resolve) {
  var f = document.querySelector(` + script.Literal(selector) + `);
  if (!f || !f.contentWindow) { resolve(null); return; }
  var w = f.contentWindow;
  var done = false;
  var t = null;
  function finish(v) {
    if (done) { return; }
    done = true;
    clearTimeout(t);
    window.removeEventListener("message", onMessage);
    resolve(v);
  }
  function onMessage(e) {
    if (e.source !== w) { return; }
    var d = e.data;
    if (typeof d === "string") { try { d = JSON.parse(d); } catch (err) { return; } }
    if (!d || d.type !== ` + script.Literal(delivery.MessageTypeAck) + ` || d.id !== ` + script.Literal(id) + `) { return; }
    finish(d);
  }
  window.addEventListener("message", onMessage);
  t = setTimeout(function () { finish(null); }, ` + ms(timeout) + `);
  w.postMessage(JSON.parse(` + script.Literal(payload) + `), "*");
})`
}

func navigateExpr(selector, u string, timeout time.Duration) string {
	return `new Promise(function (resolve) {
  var f = document.querySelector(` + script.Literal(selector) + `);
  if (!f) { resolve("missing"); return; }
  var t = setTimeout(function () { resolve("timeout"); }, ` + ms(timeout) + `);
  f.addEventListener("load", function () { clearTimeout(t); resolve("ok"); }, { once: true });
  f.src = ` + script.Literal(u) + `;
})`
}
