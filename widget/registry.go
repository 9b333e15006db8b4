package widget

import (
	"errors"
	"sync"
	"time"

	"location-service/pkg/logger"

	"github.com/google/uuid"
)

// ErrRegistryStopped 会话表已停止, 不再接受新会话
var ErrRegistryStopped = errors.New("session registry stopped")

// Factory 根据 ID 创建新会话
type Factory func(id string) *Session

// Registry 管理所有会话, 空闲超过 ttl 的会话会被清理
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	ttl      time.Duration
	stopped  bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewRegistry 创建会话表, ttl <= 0 表示永不过期
func NewRegistry(ttl time.Duration, factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
}

// Create 新建会话
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrRegistryStopped
	}
	s := r.factory(uuid.NewString())
	r.sessions[s.ID()] = s
	return s, nil
}

// Get 根据 ID 查找会话
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete 关闭并删除会话
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Len 当前会话数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Prune 清理在 now 之前已空闲超过 ttl 的会话, 返回清理数量
func (r *Registry) Prune(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastAccess()) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		logger.Debug("pruned %d idle session(s)", len(expired))
	}
	return len(expired)
}

// StartJanitor 后台定期清理过期会话, 调用 Stop 结束
func (r *Registry) StartJanitor(interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				r.Prune(now)
			case <-r.done:
				return
			}
		}
	}()
}

// Stop 停止清理并关闭所有会话
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	r.stopped = true
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
