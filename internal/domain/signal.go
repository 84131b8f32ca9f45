package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StrategyID 策略标识。封闭枚举：新策略必须在这里注册，
// 不接受自由字符串命名的策略。
type StrategyID string

const (
	StrategyUnknown    StrategyID = "unknown"
	StrategyMomentum   StrategyID = "momentum"
	StrategyMeanRevert StrategyID = "mean_revert"
	StrategyBreakout   StrategyID = "breakout"
	StrategyFunding    StrategyID = "funding"
)

// AllStrategies 全部合法策略（不含 unknown）
var AllStrategies = []StrategyID{
	StrategyMomentum,
	StrategyMeanRevert,
	StrategyBreakout,
	StrategyFunding,
}

// ParseStrategyID 解析策略标识，未注册的名字报错
func ParseStrategyID(s string) (StrategyID, error) {
	for _, id := range AllStrategies {
		if string(id) == s {
			return id, nil
		}
	}
	if s == string(StrategyUnknown) {
		return StrategyUnknown, nil
	}
	return StrategyUnknown, fmt.Errorf("unknown strategy id %q", s)
}

// Direction 信号方向
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionClose Direction = "CLOSE"
	DirectionNone  Direction = "NONE"
)

// Signal 策略每个 tick 产出的交易信号。发出后不可变；
// 无论是否执行都要落库存证。
type Signal struct {
	ID        string     `json:"id"`
	Strategy  StrategyID `json:"strategy"`
	Symbol    string     `json:"symbol"`
	Direction Direction  `json:"direction"`
	// Strength 信号强度，[0,1]
	Strength float64 `json:"strength"`
	// 可选价位，0 表示未给出
	EntryPrice float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewSignal 创建信号（自动分配 ID 和时间戳）
func NewSignal(strategy StrategyID, symbol string, direction Direction, strength float64) *Signal {
	return &Signal{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		Symbol:    symbol,
		Direction: direction,
		Strength:  strength,
		CreatedAt: time.Now(),
	}
}

// Actionable 是否是可执行方向（LONG/SHORT）
func (s *Signal) Actionable() bool {
	return s.Direction == DirectionLong || s.Direction == DirectionShort
}

// AggregatedSignal 聚合后的信号：信号 + 分配比例 + 优先级。
// 只在一个聚合 tick 内存活。
type AggregatedSignal struct {
	Signal        *Signal
	AllocationPct float64 // 策略资金分配比例（0-100）
	Priority      float64 // strength × allocation
	Shadow        bool    // 影子模式：只存证，不执行
	VersionID     string  // 策略版本标识
}

// NewAggregatedSignal 构造聚合信号并计算优先级
func NewAggregatedSignal(sig *Signal, allocationPct float64, shadow bool, versionID string) *AggregatedSignal {
	return &AggregatedSignal{
		Signal:        sig,
		AllocationPct: allocationPct,
		Priority:      sig.Strength * allocationPct,
		Shadow:        shadow,
		VersionID:     versionID,
	}
}
