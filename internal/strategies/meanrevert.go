package strategies

import (
	"context"
	"math"

	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
)

// MeanRevert 均值回归：价格偏离均线超过阈值时反向入场，回到均线附近离场。
type MeanRevert struct {
	data        MarketData
	lookback    int
	entryDevPct float64
	exitDevPct  float64
	stopPct     float64
	profitPct   float64
}

func NewMeanRevert(data MarketData) *MeanRevert {
	return &MeanRevert{
		data:        data,
		lookback:    24,
		entryDevPct: 2.0,
		exitDevPct:  0.5,
		stopPct:     3.0,
		profitPct:   2.5,
	}
}

func (m *MeanRevert) ID() domain.StrategyID { return domain.StrategyMeanRevert }

func (m *MeanRevert) GenerateSignal(ctx context.Context, symbol string) (*domain.Signal, error) {
	closes, err := recentCloses(ctx, m.data, symbol, m.lookback)
	if err != nil {
		return nil, err
	}
	if len(closes) < m.lookback {
		return nil, nil
	}
	mean := sma(closes)
	last := closes[len(closes)-1]
	if mean <= 0 {
		return nil, nil
	}
	devPct := (last - mean) / mean * 100
	if math.Abs(devPct) < m.entryDevPct {
		return nil, nil
	}

	// 偏离太高做空，太低做多
	dir := domain.DirectionLong
	if devPct > 0 {
		dir = domain.DirectionShort
	}
	strength := math.Min(math.Abs(devPct)/(m.entryDevPct*2), 1.0)
	sig := domain.NewSignal(domain.StrategyMeanRevert, symbol, dir, strength)
	return withStops(sig, last, m.stopPct, m.profitPct), nil
}

func (m *MeanRevert) ShouldExit(ctx context.Context, pos *domain.Position, price float64) (ports.ExitDecision, error) {
	closes, err := recentCloses(ctx, m.data, pos.Symbol, m.lookback)
	if err != nil || len(closes) < m.lookback {
		return ports.ExitDecision{}, err
	}
	mean := sma(closes)
	if mean <= 0 {
		return ports.ExitDecision{}, nil
	}
	devPct := math.Abs(price-mean) / mean * 100
	if devPct <= m.exitDevPct {
		return ports.ExitDecision{Exit: true, Reason: "reverted_to_mean"}, nil
	}
	return ports.ExitDecision{}, nil
}
