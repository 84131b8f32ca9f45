package ports

import (
	"fmt"
	"sync"

	"github.com/perpbot/goperp/internal/domain"
)

// Registry 策略注册表，按封闭枚举的 StrategyID 索引。
// 重复注册视为编程错误直接报错。
type Registry struct {
	mu         sync.RWMutex
	strategies map[domain.StrategyID]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.StrategyID]Strategy)}
}

func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	if _, err := domain.ParseStrategyID(string(id)); err != nil {
		return err
	}
	if _, dup := r.strategies[id]; dup {
		return fmt.Errorf("strategy %s already registered", id)
	}
	r.strategies[id] = s
	return nil
}

func (r *Registry) Get(id domain.StrategyID) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	return s, ok
}

// All 按注册枚举顺序返回已注册策略，保证遍历顺序确定
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, id := range domain.AllStrategies {
		if s, ok := r.strategies[id]; ok {
			out = append(out, s)
		}
	}
	return out
}
