// Package service 校验服务：请求校验、同目标取代、事件订阅
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"locatorcheck/internal/delivery"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/origin"
	"locatorcheck/internal/script"
	"locatorcheck/internal/session"
	"locatorcheck/pkg/model"
)

// ErrInvalidRequest 请求参数不合法
var ErrInvalidRequest = errors.New("invalid verification request")

// Host 提供嵌入文档句柄
type Host interface {
	TargetID() model.TargetID
	Frame(ctx context.Context, targetURL string) (delivery.Frame, error)
}

// Config 服务配置
type Config struct {
	HostOrigin string
	Host       Host
	Delivery   delivery.Config
	Logger     logger.Logger
}

// Service 校验服务实现
type Service struct {
	hostOrigin string
	host       Host
	target     model.TargetID
	orch       *delivery.Orchestrator
	sessions   *session.Manager
	validate   *validator.Validate
	log        logger.Logger

	events chan model.Event
	mu     sync.RWMutex
	subs   map[string]chan model.Event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New 创建校验服务，Host 为空时所有请求都走手动兜底
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	events := make(chan model.Event, 256)
	dc := cfg.Delivery
	dc.Events = events
	dc.Logger = cfg.Logger.With("component", "delivery")

	s := &Service{
		hostOrigin: cfg.HostOrigin,
		host:       cfg.Host,
		target:     targetOf(cfg.Host),
		orch:       delivery.New(dc),
		sessions:   session.NewManager(cfg.Logger.With("component", "session")),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        cfg.Logger.With("component", "service"),
		events:     events,
		subs:       make(map[string]chan model.Event),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.fanout()
	return s
}

// RequestVerification 执行一次定位校验。
// 同一逻辑目标上的新请求会取消并等待前一个请求退出。
func (s *Service) RequestVerification(ctx context.Context, req model.VerificationRequest) (model.DeliveryOutcome, error) {
	if err := s.validate.Struct(req); err != nil {
		return model.DeliveryOutcome{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := script.CheckLocator(req.Locator); err != nil {
		return model.DeliveryOutcome{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id := model.RequestID(uuid.NewString())
	class := origin.Classify(req.TargetURL, s.hostOrigin)
	scr := script.Synthesize(req.Locator)

	target := s.target
	l := s.log.With("requestID", string(id), "target", string(target))
	l.Info("收到校验请求", "url", req.TargetURL, "origin", class, "validated", req.Validated, "allowProxy", req.AllowProxy)

	rctx, finish := s.sessions.Acquire(target).Begin(ctx, id)
	defer finish()

	frame := s.frame(rctx, req.TargetURL, l)
	out := s.orch.Deliver(rctx, frame, delivery.Request{
		ID:         id,
		Target:     target,
		TargetURL:  req.TargetURL,
		Script:     scr,
		Origin:     class,
		AllowProxy: req.AllowProxy,
	})
	return out, nil
}

// targetOf 会话键在创建服务时确定，各请求之间保持不变
func targetOf(h Host) model.TargetID {
	if h == nil {
		return ""
	}
	return h.TargetID()
}

// frame 获取嵌入文档句柄，失败时返回只会报错的句柄，使编排器落到手动兜底
func (s *Service) frame(ctx context.Context, targetURL string, l logger.Logger) delivery.Frame {
	if s.host == nil {
		return unavailable{url: targetURL, err: errors.New("no host page configured")}
	}
	f, err := s.host.Frame(ctx, targetURL)
	if err != nil {
		l.Err(err, "获取嵌入文档失败")
		return unavailable{url: targetURL, err: err}
	}
	return f
}

// Script 生成校验脚本，供手动复制
func (s *Service) Script(locator string) (model.Script, error) {
	if err := script.CheckLocator(locator); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return script.Synthesize(locator), nil
}

// Strategies 投递策略优先级
func (s *Service) Strategies() []model.Strategy {
	return s.orch.Strategies()
}

// SubscribeEvents 订阅投递事件，返回的函数用于取消订阅
func (s *Service) SubscribeEvents() (<-chan model.Event, func()) {
	id := uuid.NewString()
	ch := make(chan model.Event, 64)

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Subscribers 当前订阅数
func (s *Service) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close 取消全部进行中的投递并关闭事件订阅
func (s *Service) Close() error {
	s.once.Do(func() {
		s.sessions.Close()
		close(s.done)
		s.wg.Wait()

		s.mu.Lock()
		for _, id := range lo.Keys(s.subs) {
			close(s.subs[id])
			delete(s.subs, id)
		}
		s.mu.Unlock()
	})
	return nil
}

func (s *Service) fanout() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case evt := <-s.events:
			s.mu.RLock()
			for _, ch := range s.subs {
				select {
				case ch <- evt:
				default:
				}
			}
			s.mu.RUnlock()
		}
	}
}
