package domain

import (
	"time"
)

// PositionSide 仓位方向
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Position 仓位领域模型。symbol 是唯一键：每个标的最多一个仓位。
// 交易所字段在每次 resync 时整体替换；Strategy 归属是本地记账，
// 交易所并不知道，resync 时要自己保下来。
type Position struct {
	Symbol           string       `json:"symbol"`
	Side             PositionSide `json:"side"`
	Size             float64      `json:"size"` // 绝对数量
	EntryPrice       float64      `json:"entry_price"`
	Leverage         int          `json:"leverage"`
	LiquidationPrice float64      `json:"liquidation_price"`
	UnrealizedPnL    float64      `json:"unrealized_pnl"`
	MarginUsed       float64      `json:"margin_used"`

	// Strategy 本地归属标记；交易所发现的未知仓位默认 unknown
	Strategy StrategyID `json:"strategy"`

	// 开仓时随信号记下的硬止损/止盈价位，0 表示未设置
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLong 是否多头
func (p *Position) IsLong() bool {
	return p.Side == PositionLong
}

// Notional 名义敞口 = size × 当前价
func (p *Position) Notional(currentPrice float64) float64 {
	return p.Size * currentPrice
}

// PnLRatio 相对已用保证金的盈亏比例（-0.25 = 亏掉保证金的 25%）
func (p *Position) PnLRatio() float64 {
	if p.MarginUsed <= 0 {
		return 0
	}
	return p.UnrealizedPnL / p.MarginUsed
}

// OppositeDirection 判断一个信号方向是否与本仓位相反
func (p *Position) OppositeDirection(d Direction) bool {
	if p.Side == PositionLong && d == DirectionShort {
		return true
	}
	if p.Side == PositionShort && d == DirectionLong {
		return true
	}
	return false
}

// HitStopLoss 当前价是否触发硬止损
func (p *Position) HitStopLoss(currentPrice float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.IsLong() {
		return currentPrice <= p.StopLoss
	}
	return currentPrice >= p.StopLoss
}

// HitTakeProfit 当前价是否触发硬止盈
func (p *Position) HitTakeProfit(currentPrice float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.IsLong() {
		return currentPrice >= p.TakeProfit
	}
	return currentPrice <= p.TakeProfit
}

// RealizedPnL 按平仓价计算已实现盈亏
func (p *Position) RealizedPnL(closePrice float64) float64 {
	if p.IsLong() {
		return (closePrice - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - closePrice) * p.Size
}
