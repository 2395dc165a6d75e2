package session

import (
	"sync"

	"locatorcheck/internal/logger"
	"locatorcheck/pkg/model"
)

// Manager 按逻辑目标管理校验会话
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.TargetID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.TargetID]*Session),
		log:      l,
	}
}

// Acquire 获取目标对应的会话，不存在时创建
func (m *Manager) Acquire(id model.TargetID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := New(id, m.log)
	m.sessions[id] = s
	m.log.Info("创建校验会话", "target", string(id))
	return s
}

// Get 获取会话
func (m *Manager) Get(id model.TargetID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 取消进行中的投递并销毁会话
func (m *Manager) Delete(id model.TargetID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Cancel()
		m.log.Info("销毁校验会话", "target", string(id))
	}
}

// List 返回所有会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}

// Close 取消全部进行中的投递
func (m *Manager) Close() {
	for _, s := range m.List() {
		m.Delete(s.ID)
	}
}
