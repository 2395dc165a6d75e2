package session

import (
	"context"
	"sync"

	"locatorcheck/internal/logger"
	"locatorcheck/pkg/model"
)

// Session 同一逻辑目标上的校验会话，任意时刻至多一个投递在进行
type Session struct {
	ID model.TargetID

	mu      sync.Mutex
	current *inflight
	log     logger.Logger
}

type inflight struct {
	request model.RequestID
	cancel  context.CancelFunc
	done    chan struct{}
}

// New 创建会话
func New(id model.TargetID, l logger.Logger) *Session {
	if l == nil {
		l = logger.NewNop()
	}
	return &Session{ID: id, log: l}
}

// Begin 取代进行中的请求：先取消并等待其退出，再返回新请求的 ctx。
// 调用方必须在投递结束后调用 finish。
func (s *Session) Begin(parent context.Context, id model.RequestID) (ctx context.Context, finish func()) {
	ctx, cancel := context.WithCancel(parent)
	cur := &inflight{request: id, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.current
	s.current = cur
	s.mu.Unlock()

	if prev != nil {
		s.log.Info("新请求取代进行中的校验", "target", string(s.ID), "superseded", string(prev.request), "requestID", string(id))
		prev.cancel()
		<-prev.done
	}

	var once sync.Once
	finish = func() {
		once.Do(func() {
			s.mu.Lock()
			if s.current == cur {
				s.current = nil
			}
			s.mu.Unlock()
			cancel()
			close(cur.done)
		})
	}
	return ctx, finish
}

// Current 返回进行中的请求 ID
func (s *Session) Current() (model.RequestID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.request, true
}

// Cancel 取消进行中的请求，不等待其退出
func (s *Session) Cancel() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		cur.cancel()
	}
}
