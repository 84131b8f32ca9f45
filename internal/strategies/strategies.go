// Package strategies 内置的四个信号策略。每个策略都只依赖
// MarketData 只读接口，方便在测试里喂假数据。
package strategies

import (
	"context"
	"time"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/exchange/types"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
	"github.com/perpbot/goperp/pkg/logger"
	"github.com/pkg/errors"
)

var log = logger.WithField("component", "strategies")

// MarketData 策略需要的行情能力（InfoClient 天然满足）
type MarketData interface {
	Mid(ctx context.Context, symbol string) (float64, error)
	Candles(ctx context.Context, symbol, interval string, startTime, endTime int64) ([]types.Candle, error)
	FundingHistory(ctx context.Context, symbol string, startTime int64) ([]types.FundingEntry, error)
}

// RegisterAll 把四个内置策略注册到注册表
func RegisterAll(reg *ports.Registry, data MarketData) error {
	all := []ports.Strategy{
		NewMomentum(data),
		NewMeanRevert(data),
		NewBreakout(data),
		NewFunding(data),
	}
	for _, s := range all {
		if err := reg.Register(s); err != nil {
			return errors.Wrapf(err, "register %s", s.ID())
		}
	}
	return nil
}

// recentCloses 取最近 n 根小时线的收盘价，时间升序
func recentCloses(ctx context.Context, data MarketData, symbol string, n int) ([]float64, error) {
	end := time.Now().UnixMilli()
	start := end - int64(n+2)*time.Hour.Milliseconds()
	candles, err := data.Candles(ctx, symbol, "1h", start, end)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		v, err := client.ParseWireFloat(c.Close)
		if err != nil {
			continue
		}
		closes = append(closes, v)
	}
	if len(closes) > n {
		closes = closes[len(closes)-n:]
	}
	return closes, nil
}

func sma(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// withStops 按入场价和方向补上止损/止盈
func withStops(sig *domain.Signal, entry, stopPct, profitPct float64) *domain.Signal {
	sig.EntryPrice = entry
	if sig.Direction == domain.DirectionLong {
		sig.StopLoss = entry * (1 - stopPct/100)
		sig.TakeProfit = entry * (1 + profitPct/100)
	} else {
		sig.StopLoss = entry * (1 + stopPct/100)
		sig.TakeProfit = entry * (1 - profitPct/100)
	}
	return sig
}
