package strategies

import (
	"context"
	"math"
	"time"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
)

// Breakout 区间突破：现价突破过去 N 根小时线的高/低点即顺势入场。
type Breakout struct {
	data      MarketData
	lookback  int
	bufferPct float64 // 突破需超出区间边界的缓冲
	stopPct   float64
	profitPct float64
}

func NewBreakout(data MarketData) *Breakout {
	return &Breakout{
		data:      data,
		lookback:  48,
		bufferPct: 0.2,
		stopPct:   2.5,
		profitPct: 5.0,
	}
}

func (b *Breakout) ID() domain.StrategyID { return domain.StrategyBreakout }

func (b *Breakout) GenerateSignal(ctx context.Context, symbol string) (*domain.Signal, error) {
	end := time.Now().UnixMilli()
	start := end - int64(b.lookback+2)*time.Hour.Milliseconds()
	candles, err := b.data.Candles(ctx, symbol, "1h", start, end)
	if err != nil {
		return nil, err
	}
	if len(candles) < b.lookback {
		return nil, nil
	}
	// 最后一根还没走完，区间只看它之前的 K 线
	window := candles[:len(candles)-1]
	var high, low float64
	low = math.MaxFloat64
	for _, c := range window {
		h, err1 := client.ParseWireFloat(c.High)
		l, err2 := client.ParseWireFloat(c.Low)
		if err1 != nil || err2 != nil {
			continue
		}
		if h > high {
			high = h
		}
		if l < low {
			low = l
		}
	}
	if high <= 0 || low >= math.MaxFloat64 {
		return nil, nil
	}

	price, err := b.data.Mid(ctx, symbol)
	if err != nil {
		return nil, err
	}

	buffer := b.bufferPct / 100
	switch {
	case price > high*(1+buffer):
		strength := math.Min((price/high-1)*100/1.0, 1.0)
		sig := domain.NewSignal(domain.StrategyBreakout, symbol, domain.DirectionLong, strength)
		return withStops(sig, price, b.stopPct, b.profitPct), nil
	case price < low*(1-buffer):
		strength := math.Min((1-price/low)*100/1.0, 1.0)
		sig := domain.NewSignal(domain.StrategyBreakout, symbol, domain.DirectionShort, strength)
		return withStops(sig, price, b.stopPct, b.profitPct), nil
	}
	return nil, nil
}

func (b *Breakout) ShouldExit(_ context.Context, pos *domain.Position, price float64) (ports.ExitDecision, error) {
	// 突破仓位靠硬止损/止盈管理；价格跌回入场价以内视为假突破
	if pos.EntryPrice <= 0 {
		return ports.ExitDecision{}, nil
	}
	if pos.IsLong() && price < pos.EntryPrice*(1-b.bufferPct/100) {
		return ports.ExitDecision{Exit: true, Reason: "failed_breakout"}, nil
	}
	if !pos.IsLong() && price > pos.EntryPrice*(1+b.bufferPct/100) {
		return ports.ExitDecision{Exit: true, Reason: "failed_breakout"}, nil
	}
	return ports.ExitDecision{}, nil
}
