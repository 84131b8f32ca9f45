package strategies

import (
	"context"
	"math"

	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
)

// Momentum 快慢均线动量：快线在慢线上方且偏离足够大做多，反之做空。
type Momentum struct {
	data       MarketData
	fastBars   int
	slowBars   int
	minEdgePct float64 // 快慢线最小偏离（百分比）
	stopPct    float64
	profitPct  float64
}

func NewMomentum(data MarketData) *Momentum {
	return &Momentum{
		data:       data,
		fastBars:   8,
		slowBars:   24,
		minEdgePct: 0.3,
		stopPct:    2.0,
		profitPct:  4.0,
	}
}

func (m *Momentum) ID() domain.StrategyID { return domain.StrategyMomentum }

func (m *Momentum) GenerateSignal(ctx context.Context, symbol string) (*domain.Signal, error) {
	closes, err := recentCloses(ctx, m.data, symbol, m.slowBars)
	if err != nil {
		return nil, err
	}
	if len(closes) < m.slowBars {
		return nil, nil
	}
	fast := sma(closes[len(closes)-m.fastBars:])
	slow := sma(closes)
	if slow <= 0 {
		return nil, nil
	}
	edgePct := (fast - slow) / slow * 100
	if math.Abs(edgePct) < m.minEdgePct {
		return nil, nil
	}

	dir := domain.DirectionShort
	if edgePct > 0 {
		dir = domain.DirectionLong
	}
	// 强度随偏离放大，1% 偏离封顶
	strength := math.Min(math.Abs(edgePct)/1.0, 1.0)
	entry := closes[len(closes)-1]
	sig := domain.NewSignal(domain.StrategyMomentum, symbol, dir, strength)
	return withStops(sig, entry, m.stopPct, m.profitPct), nil
}

func (m *Momentum) ShouldExit(ctx context.Context, pos *domain.Position, _ float64) (ports.ExitDecision, error) {
	closes, err := recentCloses(ctx, m.data, pos.Symbol, m.slowBars)
	if err != nil || len(closes) < m.slowBars {
		return ports.ExitDecision{}, err
	}
	fast := sma(closes[len(closes)-m.fastBars:])
	slow := sma(closes)
	// 均线反向穿越即离场
	if pos.IsLong() && fast < slow {
		return ports.ExitDecision{Exit: true, Reason: "momentum_flip"}, nil
	}
	if !pos.IsLong() && fast > slow {
		return ports.ExitDecision{Exit: true, Reason: "momentum_flip"}, nil
	}
	return ports.ExitDecision{}, nil
}
