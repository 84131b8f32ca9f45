package strategies

import (
	"context"
	"math"
	"time"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
)

// annualHours 资金费率年化用的小时数
const annualHours = 24 * 365

// Funding 资金费率收割：持续为正的高费率做空吃费，持续为负做多。
type Funding struct {
	data          MarketData
	lookbackHours int
	minAnnualPct  float64 // 年化费率门槛
	stopPct       float64
	profitPct     float64
}

func NewFunding(data MarketData) *Funding {
	return &Funding{
		data:          data,
		lookbackHours: 24,
		minAnnualPct:  15,
		stopPct:       2.0,
		profitPct:     3.0,
	}
}

func (f *Funding) ID() domain.StrategyID { return domain.StrategyFunding }

func (f *Funding) avgAnnualRatePct(ctx context.Context, symbol string) (float64, int, error) {
	start := time.Now().Add(-time.Duration(f.lookbackHours) * time.Hour).UnixMilli()
	entries, err := f.data.FundingHistory(ctx, symbol, start)
	if err != nil {
		return 0, 0, err
	}
	var sum float64
	n := 0
	for _, e := range entries {
		r, err := client.ParseWireFloat(e.FundingRate)
		if err != nil {
			continue
		}
		sum += r
		n++
	}
	if n == 0 {
		return 0, 0, nil
	}
	// 每小时费率 → 年化百分比
	return sum / float64(n) * annualHours * 100, n, nil
}

func (f *Funding) GenerateSignal(ctx context.Context, symbol string) (*domain.Signal, error) {
	annualPct, n, err := f.avgAnnualRatePct(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if n < f.lookbackHours/2 || math.Abs(annualPct) < f.minAnnualPct {
		return nil, nil
	}

	// 费率为正说明多头付费，做空收费；反之做多
	dir := domain.DirectionShort
	if annualPct < 0 {
		dir = domain.DirectionLong
	}
	price, err := f.data.Mid(ctx, symbol)
	if err != nil {
		return nil, err
	}
	strength := math.Min(math.Abs(annualPct)/(f.minAnnualPct*3), 1.0)
	sig := domain.NewSignal(domain.StrategyFunding, symbol, dir, strength)
	return withStops(sig, price, f.stopPct, f.profitPct), nil
}

func (f *Funding) ShouldExit(ctx context.Context, pos *domain.Position, _ float64) (ports.ExitDecision, error) {
	annualPct, n, err := f.avgAnnualRatePct(ctx, pos.Symbol)
	if err != nil || n == 0 {
		return ports.ExitDecision{}, err
	}
	// 费率翻向或衰减到门槛一半以下就不值得扛了
	if pos.IsLong() && annualPct > -f.minAnnualPct/2 {
		return ports.ExitDecision{Exit: true, Reason: "funding_decayed"}, nil
	}
	if !pos.IsLong() && annualPct < f.minAnnualPct/2 {
		return ports.ExitDecision{Exit: true, Reason: "funding_decayed"}, nil
	}
	return ports.ExitDecision{}, nil
}
