// Package delivery 按固定优先级选择并执行校验脚本的投递策略
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"locatorcheck/internal/logger"
	"locatorcheck/internal/origin"
	"locatorcheck/pkg/model"
)

// Config 配置选项
type Config struct {
	LoadTimeout    time.Duration
	MessageTimeout time.Duration
	ProbeTimeout   time.Duration
	Proxy          Proxy
	Presenter      Presenter
	Events         chan model.Event
	Logger         logger.Logger
	Now            func() time.Time
}

// Request 单次投递的输入，作用域仅限一次校验
type Request struct {
	ID         model.RequestID
	Target     model.TargetID
	TargetURL  string
	Script     model.Script
	Origin     model.OriginClass
	AllowProxy bool
}

// Orchestrator 投递编排器
type Orchestrator struct {
	loadTimeout    time.Duration
	messageTimeout time.Duration
	probeTimeout   time.Duration
	proxy          Proxy
	presenter      Presenter
	events         chan model.Event
	log            logger.Logger
	now            func() time.Time
	steps          []step
}

// step 有序策略表中的一项
type step struct {
	strategy model.Strategy
	eligible func(*run) bool
	exec     func(context.Context, *run) result
}

// result 策略执行的标记结果
type result struct {
	outcome model.AttemptOutcome
	err     error
	skipped bool
}

// run 单次投递的状态，显式在策略之间传递
type run struct {
	req         Request
	frame       Frame
	outcome     *model.DeliveryOutcome
	unreachable bool
	log         logger.Logger
}

// New 创建投递编排器
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		loadTimeout:    orDuration(cfg.LoadTimeout, 5*time.Second),
		messageTimeout: orDuration(cfg.MessageTimeout, 2*time.Second),
		probeTimeout:   orDuration(cfg.ProbeTimeout, 2*time.Second),
		proxy:          cfg.Proxy,
		presenter:      cfg.Presenter,
		events:         cfg.Events,
		log:            cfg.Logger,
		now:            cfg.Now,
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.steps = []step{
		{strategy: model.StrategyDirectAccess, eligible: always, exec: o.directAccess},
		{strategy: model.StrategyCrossDocumentMessage, eligible: canMessage, exec: o.crossDocumentMessage},
		{strategy: model.StrategyProxyRetry, eligible: o.canProxy, exec: o.proxyRetry},
		{strategy: model.StrategyManual, eligible: always, exec: o.manual},
	}
	return o
}

// Strategies 返回策略优先级顺序
func (o *Orchestrator) Strategies() []model.Strategy {
	out := make([]model.Strategy, len(o.steps))
	for i, s := range o.steps {
		out[i] = s.strategy
	}
	return out
}

// Deliver 依次尝试各策略，首个成功即终止；ctx 取消后丢弃后续结果
func (o *Orchestrator) Deliver(ctx context.Context, frame Frame, req Request) model.DeliveryOutcome {
	outcome := model.DeliveryOutcome{
		RequestID: req.ID,
		Origin:    req.Origin,
		Attempts:  []model.DeliveryAttempt{},
	}
	r := &run{
		req:     req,
		frame:   frame,
		outcome: &outcome,
		log:     o.log.With("requestID", string(req.ID), "target", string(req.Target)),
	}
	start := o.now()
	r.log.Debug("开始投递校验脚本", "origin", req.Origin, "url", req.TargetURL)

	for _, s := range o.steps {
		if ctx.Err() != nil {
			return o.cancelled(r)
		}
		if !s.eligible(r) {
			continue
		}
		res := s.exec(ctx, r)
		if ctx.Err() != nil {
			// 已被新请求取代，结果作废
			return o.cancelled(r)
		}
		if res.skipped {
			continue
		}
		o.record(r, s.strategy, res)

		if s.strategy == model.StrategyManual {
			used := s.strategy
			outcome.StrategyUsed = &used
			break
		}
		if res.outcome == model.OutcomeSuccess {
			used := s.strategy
			outcome.StrategyUsed = &used
			outcome.Succeeded = true
			break
		}
	}

	r.log.Info("投递完成", "succeeded", outcome.Succeeded, "attempts", len(outcome.Attempts), "duration", o.now().Sub(start))
	return outcome
}

func (o *Orchestrator) cancelled(r *run) model.DeliveryOutcome {
	r.outcome.Cancelled = true
	r.outcome.Succeeded = false
	r.outcome.StrategyUsed = nil
	r.log.Info("投递已被取代，丢弃剩余步骤", "attempts", len(r.outcome.Attempts))
	o.sendEvent(model.Event{Type: "cancelled", Request: r.req.ID, Target: r.req.Target})
	return *r.outcome
}

// record 记录一次尝试并发送事件
func (o *Orchestrator) record(r *run, strategy model.Strategy, res result) {
	a := model.DeliveryAttempt{
		Strategy:  strategy,
		Outcome:   res.outcome,
		Timestamp: o.now(),
	}
	if res.err != nil {
		a.Error = res.err.Error()
	}
	r.outcome.Attempts = append(r.outcome.Attempts, a)

	switch res.outcome {
	case model.OutcomeSuccess:
		r.log.Info("投递策略成功", "strategy", strategy)
	case model.OutcomeBlocked:
		r.log.Debug("投递策略受阻，尝试下一策略", "strategy", strategy, "error", a.Error)
	default:
		r.log.Warn("投递策略失败", "strategy", strategy, "error", a.Error)
	}
	o.sendEvent(model.Event{
		Type:     "attempt",
		Request:  r.req.ID,
		Target:   r.req.Target,
		Strategy: strategy,
		Outcome:  res.outcome,
		Error:    a.Error,
	})
}

// directAccess 直接访问嵌入文档并插入 script 节点
func (o *Orchestrator) directAccess(ctx context.Context, r *run) result {
	if !origin.HasScheme(r.req.TargetURL) {
		r.unreachable = true
		return result{outcome: model.OutcomeFailed, err: fmt.Errorf("%w: %q", ErrUnreachable, r.req.TargetURL)}
	}
	return o.inject(ctx, r.frame, r.req.Script)
}

// inject 注入脚本；文档未加载时仅等待一次加载信号后重试一次
func (o *Orchestrator) inject(ctx context.Context, f Frame, s model.Script) result {
	err := f.Inject(ctx, s)
	if errors.Is(err, ErrNotLoaded) {
		wctx, cancel := context.WithTimeout(ctx, o.loadTimeout)
		werr := f.WaitLoaded(wctx)
		cancel()
		if ctx.Err() != nil {
			return result{outcome: model.OutcomeFailed, err: ctx.Err()}
		}
		if werr != nil {
			return result{outcome: model.OutcomeBlocked, err: fmt.Errorf("%w: %v", ErrNotLoaded, werr)}
		}
		err = f.Inject(ctx, s)
	}
	return classify(err)
}

// crossDocumentMessage 向协作页面投递消息并限时等待确认
func (o *Orchestrator) crossDocumentMessage(ctx context.Context, r *run) result {
	msg := NewMessage(r.req.Script)
	mctx, cancel := context.WithTimeout(ctx, o.messageTimeout)
	defer cancel()

	ack, err := r.frame.PostMessage(mctx, msg)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrDeliveryTimeout, o.messageTimeout)
		}
		return classify(err)
	}
	if !ack.Acknowledges(msg) {
		return result{outcome: model.OutcomeFailed, err: fmt.Errorf("ack %q does not match message %q", ack.ID, msg.ID)}
	}
	return result{outcome: model.OutcomeSuccess}
}

// proxyRetry 经操作者同意后将嵌入内容切换到代理地址，再直接访问一次
func (o *Orchestrator) proxyRetry(ctx context.Context, r *run) result {
	proxied, err := o.proxy.RewriteURL(r.req.TargetURL)
	if err != nil {
		r.outcome.Error = fmt.Sprintf("%v: %v; use the manual path", ErrProxyUnavailable, err)
		return result{outcome: model.OutcomeFailed, err: fmt.Errorf("%w: %v", ErrProxyUnavailable, err)}
	}
	if !r.req.AllowProxy {
		r.outcome.ProxyOffer = &model.ProxyOffer{
			ProxyURL: proxied,
			Reason:   "embedded document is cross-origin; reload it through the proxy to enable direct verification",
		}
		r.log.Info("需要操作者确认切换代理", "proxyURL", proxied)
		o.sendEvent(model.Event{Type: "proxy_offer", Request: r.req.ID, Target: r.req.Target, Strategy: model.StrategyProxyRetry})
		return result{skipped: true}
	}

	pctx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	err = o.proxy.Probe(pctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return result{outcome: model.OutcomeFailed, err: ctx.Err()}
		}
		r.outcome.Error = fmt.Sprintf("%v: %v; use the manual path", ErrProxyUnavailable, err)
		return result{outcome: model.OutcomeFailed, err: fmt.Errorf("%w: %v", ErrProxyUnavailable, err)}
	}

	next, err := r.frame.Navigate(ctx, proxied, true)
	if err != nil {
		return result{outcome: model.OutcomeFailed, err: fmt.Errorf("navigate to proxy: %w", err)}
	}
	r.frame = next
	return o.inject(ctx, next, r.req.Script)
}

// manual 交给手动兜底展示
func (o *Orchestrator) manual(ctx context.Context, r *run) result {
	if o.presenter == nil {
		return result{outcome: model.OutcomeFailed, err: errors.New("no manual presenter configured")}
	}
	ins, err := o.presenter.Present(ctx, model.ManualRequest{
		TargetURL:  r.req.TargetURL,
		Script:     r.req.Script,
		Origin:     r.req.Origin,
		ProxyOffer: r.outcome.ProxyOffer,
	})
	r.outcome.Manual = &ins
	if err != nil {
		return result{outcome: model.OutcomeFailed, err: err}
	}
	return result{outcome: model.OutcomeSuccess}
}

func always(*run) bool { return true }

func canMessage(r *run) bool {
	return !r.unreachable && r.req.Origin == model.OriginRemote && r.frame.Proxied()
}

func (o *Orchestrator) canProxy(r *run) bool {
	return o.proxy != nil && !r.unreachable && r.req.Origin == model.OriginRemote && !r.frame.Proxied()
}

// classify 将错误映射为尝试结果：访问被拒与超时属于"未知"，其余为失败
func classify(err error) result {
	switch {
	case err == nil:
		return result{outcome: model.OutcomeSuccess}
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrDeliveryTimeout), errors.Is(err, context.DeadlineExceeded):
		return result{outcome: model.OutcomeBlocked, err: err}
	default:
		return result{outcome: model.OutcomeFailed, err: err}
	}
}

// sendEvent 安全发送事件到通道，自动添加时间戳
func (o *Orchestrator) sendEvent(evt model.Event) {
	if o.events == nil {
		return
	}
	evt.Timestamp = o.now().UnixMilli()
	select {
	case o.events <- evt:
	default:
	}
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
