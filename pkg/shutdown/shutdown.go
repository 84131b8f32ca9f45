package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/perpbot/goperp/pkg/logger"
)

// Handler 关闭回调。ctx 到期后回调应尽快放弃未完成的工作。
type Handler func(ctx context.Context)

type hook struct {
	name string
	fn   Handler
	done atomic.Bool
}

// Manager 优雅关闭管理器。回调带名字，
// 超时时能点名还没跑完的是哪一个。
type Manager struct {
	mu    sync.Mutex
	hooks []*hook
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, fn Handler) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, &hook{name: name, fn: fn})
}

// Shutdown 并发执行所有关闭回调（阻塞调用）。
// ctx 应该带超时，避免无限等待。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	hooks := m.hooks
	m.mu.Unlock()

	if len(hooks) == 0 {
		return
	}

	logger.Infof("开始优雅关闭，共 %d 个回调", len(hooks))

	var wg sync.WaitGroup
	for _, h := range hooks {
		wg.Add(1)
		go func(h *hook) {
			defer wg.Done()
			start := time.Now()
			h.fn(ctx)
			h.done.Store(true)
			logger.Debugf("关闭回调 %s 完成，耗时 %s", h.name, time.Since(start).Round(time.Millisecond))
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("所有关闭回调已完成")
	case <-ctx.Done():
		for _, h := range hooks {
			if !h.done.Load() {
				logger.Warnf("关闭回调 %s 未在期限内完成", h.name)
			}
		}
	}
}
