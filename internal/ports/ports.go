package ports

import (
	"context"

	"github.com/perpbot/goperp/internal/domain"
)

// Small capability interfaces shared across layers (strategies/execution/risk).
// Kept in a "neutral" package to avoid circular dependencies.

// Strategy 信号来源。实现必须无状态或自己管好内部状态；
// GenerateSignal 返回 nil 表示本轮无信号。
type Strategy interface {
	ID() domain.StrategyID
	GenerateSignal(ctx context.Context, symbol string) (*domain.Signal, error)
	// ShouldExit 对已持仓位给出主动离场判断（硬止损/止盈之外的策略性退出）
	ShouldExit(ctx context.Context, pos *domain.Position, currentPrice float64) (ExitDecision, error)
}

// ExitDecision 策略离场判断结果
type ExitDecision struct {
	Exit   bool
	Reason string
}

// Allocator 资金分配器：给出每个策略的资金占比（0~100）。
type Allocator interface {
	AllocationPct(strategy domain.StrategyID) float64
	// Shadow 策略是否处于影子模式（信号全流程评估但不下单）
	Shadow(strategy domain.StrategyID) bool
	// VersionID 当前分配方案版本，写进聚合信号便于回溯
	VersionID() string
}

// Store 落库端口：交易、信号、告警、系统状态的持久化。
type Store interface {
	SaveTrade(ctx context.Context, t *domain.Trade) error
	ListTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)

	SaveSignal(ctx context.Context, s *domain.AggregatedSignal) error

	SaveAlert(ctx context.Context, a *domain.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error)

	// SetSystemState / GetSystemState 简单 KV，风控状态镜像用
	SetSystemState(ctx context.Context, key, value string) error
	GetSystemState(ctx context.Context, key string) (string, bool, error)

	SaveAllocationSnapshot(ctx context.Context, versionID string, allocations map[domain.StrategyID]float64) error

	ReplacePositions(ctx context.Context, positions []*domain.Position) error

	Close() error
}
