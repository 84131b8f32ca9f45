package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trade 已执行的交易记录（开仓或平仓），只追加的审计数据。
type Trade struct {
	ID        string       `json:"id"`
	Strategy  StrategyID   `json:"strategy"`
	Symbol    string       `json:"symbol"`
	Side      PositionSide `json:"side"`
	Direction Direction    `json:"direction"` // LONG/SHORT 开仓，CLOSE 平仓
	Quantity  float64      `json:"quantity"`
	Price     float64      `json:"price"`
	Leverage  int          `json:"leverage"`
	// RealizedPnL 平仓时才有值
	RealizedPnL *float64          `json:"realized_pnl,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ExecutedAt  time.Time         `json:"executed_at"`
}

// NewTrade 创建交易记录
func NewTrade(strategy StrategyID, symbol string, side PositionSide, direction Direction, qty, price float64, leverage int) *Trade {
	return &Trade{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		Symbol:     symbol,
		Side:       side,
		Direction:  direction,
		Quantity:   qty,
		Price:      price,
		Leverage:   leverage,
		ExecutedAt: time.Now(),
	}
}

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert 风控/执行链路产生的告警，落库并留给通知层消费。
type Alert struct {
	ID        string     `json:"id"`
	Level     AlertLevel `json:"level"`
	Kind      string     `json:"kind"` // 如 "drawdown_warning" / "persistence_gap"
	Symbol    string     `json:"symbol,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewAlert 创建告警
func NewAlert(level AlertLevel, kind, symbol, message string) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		Level:     level,
		Kind:      kind,
		Symbol:    symbol,
		Message:   message,
		CreatedAt: time.Now(),
	}
}
