// Package allocator 管理各策略的资金分配与影子标记。
// 分配来自外部协作方的周期推送；这里保证替换是原子的，
// 非法方案被拒绝并保留上一组可用值。
package allocator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
	"github.com/perpbot/goperp/pkg/logger"
	"github.com/pkg/errors"
)

var log = logger.WithField("component", "allocator")

// Plan 一版完整的分配方案
type Plan struct {
	Allocations map[domain.StrategyID]float64 `json:"allocations" yaml:"allocations"`
	Shadow      map[domain.StrategyID]bool    `json:"shadow" yaml:"shadow"`
	VersionID   string                        `json:"version_id" yaml:"version_id"`
	UpdatedBy   string                        `json:"updated_by" yaml:"updated_by"`
	UpdatedAt   time.Time                     `json:"updated_at" yaml:"updated_at"`
}

// Validate 单个策略 [0,100]，合计不超过 100。
func (p Plan) Validate() error {
	var total float64
	for id, pct := range p.Allocations {
		if _, err := domain.ParseStrategyID(string(id)); err != nil {
			return err
		}
		if pct < 0 || pct > 100 {
			return errors.Errorf("策略 %s 分配 %.2f%% 越界", id, pct)
		}
		total += pct
	}
	if total > 100 {
		return errors.Errorf("分配合计 %.2f%% 超过 100%%", total)
	}
	return nil
}

// Manager 实现 ports.Allocator
type Manager struct {
	mu    sync.RWMutex
	plan  Plan
	store ports.Store
}

// New 用初始方案创建分配管理器；方案非法时直接报错（启动期失败要响亮）。
func New(initial Plan, store ports.Store) (*Manager, error) {
	if err := initial.Validate(); err != nil {
		return nil, errors.Wrap(err, "initial allocation plan")
	}
	if initial.VersionID == "" {
		initial.VersionID = uuid.NewString()
	}
	initial.UpdatedAt = time.Now()
	m := &Manager{plan: initial, store: store}
	m.snapshot(context.Background())
	return m, nil
}

// Update 原子替换分配方案；非法方案保留上一版。
func (m *Manager) Update(ctx context.Context, next Plan) error {
	if err := next.Validate(); err != nil {
		return errors.Wrap(err, "reject allocation plan")
	}
	if next.VersionID == "" {
		next.VersionID = uuid.NewString()
	}
	next.UpdatedAt = time.Now()

	m.mu.Lock()
	m.plan = next
	m.mu.Unlock()

	log.Infof("分配方案已更新 version=%s by=%s", next.VersionID, next.UpdatedBy)
	m.snapshot(ctx)
	return nil
}

func (m *Manager) AllocationPct(id domain.StrategyID) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plan.Allocations[id]
}

func (m *Manager) Shadow(id domain.StrategyID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plan.Shadow[id]
}

func (m *Manager) VersionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plan.VersionID
}

// Current 返回当前方案副本
func (m *Manager) Current() Plan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := m.plan
	cp.Allocations = make(map[domain.StrategyID]float64, len(m.plan.Allocations))
	for k, v := range m.plan.Allocations {
		cp.Allocations[k] = v
	}
	cp.Shadow = make(map[domain.StrategyID]bool, len(m.plan.Shadow))
	for k, v := range m.plan.Shadow {
		cp.Shadow[k] = v
	}
	return cp
}

func (m *Manager) snapshot(ctx context.Context) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	version := m.plan.VersionID
	allocations := make(map[domain.StrategyID]float64, len(m.plan.Allocations))
	for k, v := range m.plan.Allocations {
		allocations[k] = v
	}
	m.mu.RUnlock()
	if err := m.store.SaveAllocationSnapshot(ctx, version, allocations); err != nil {
		log.Errorf("分配快照落库失败: %v", err)
	}
}

// EvenPlan 全部启用策略平均分配的初始方案
func EvenPlan() Plan {
	n := len(domain.AllStrategies)
	allocations := make(map[domain.StrategyID]float64, n)
	for _, id := range domain.AllStrategies {
		allocations[id] = 100.0 / float64(n)
	}
	return Plan{Allocations: allocations, Shadow: map[domain.StrategyID]bool{}, UpdatedBy: "default"}
}
