package strategies

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/perpbot/goperp/exchange/types"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
)

type fakeData struct {
	closes  []float64 // 生成等量的 1h K 线，高低点跟随收盘价
	mid     float64
	funding []float64 // 每小时费率序列
}

func (f *fakeData) Mid(context.Context, string) (float64, error) { return f.mid, nil }

func (f *fakeData) Candles(_ context.Context, symbol, interval string, _, _ int64) ([]types.Candle, error) {
	out := make([]types.Candle, 0, len(f.closes))
	base := time.Now().Add(-time.Duration(len(f.closes)) * time.Hour).UnixMilli()
	for i, c := range f.closes {
		out = append(out, types.Candle{
			OpenTime: base + int64(i)*3600_000,
			Symbol:   symbol,
			Interval: interval,
			Open:     fmt.Sprintf("%v", c),
			Close:    fmt.Sprintf("%v", c),
			High:     fmt.Sprintf("%v", c*1.001),
			Low:      fmt.Sprintf("%v", c*0.999),
			Volume:   "100",
		})
	}
	return out, nil
}

func (f *fakeData) FundingHistory(_ context.Context, symbol string, _ int64) ([]types.FundingEntry, error) {
	out := make([]types.FundingEntry, 0, len(f.funding))
	for i, r := range f.funding {
		out = append(out, types.FundingEntry{
			Symbol:      symbol,
			FundingRate: fmt.Sprintf("%v", r),
			Time:        int64(i),
		})
	}
	return out, nil
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestMomentumSignal(t *testing.T) {
	ctx := context.Background()

	// 最近 8 根明显抬升 → 做多
	closes := append(flat(16, 100), flat(8, 105)...)
	m := NewMomentum(&fakeData{closes: closes})
	sig, err := m.GenerateSignal(ctx, "ETH")
	if err != nil {
		t.Fatalf("生成信号失败: %v", err)
	}
	if sig == nil || sig.Direction != domain.DirectionLong {
		t.Fatalf("上升动量应做多: %+v", sig)
	}
	if sig.StopLoss >= sig.EntryPrice || sig.TakeProfit <= sig.EntryPrice {
		t.Errorf("多头止损/止盈位置错误: %+v", sig)
	}

	// 横盘无信号
	m = NewMomentum(&fakeData{closes: flat(24, 100)})
	sig, err = m.GenerateSignal(ctx, "ETH")
	if err != nil || sig != nil {
		t.Errorf("横盘不应出信号: sig=%+v err=%v", sig, err)
	}

	// K 线不足不出信号
	m = NewMomentum(&fakeData{closes: flat(5, 100)})
	if sig, _ := m.GenerateSignal(ctx, "ETH"); sig != nil {
		t.Error("数据不足不应出信号")
	}
}

func TestMomentumExitOnFlip(t *testing.T) {
	ctx := context.Background()
	// 最近 8 根跌破慢线 → 多头离场
	closes := append(flat(16, 100), flat(8, 95)...)
	m := NewMomentum(&fakeData{closes: closes})
	pos := &domain.Position{Symbol: "ETH", Side: domain.PositionLong, EntryPrice: 100}
	d, err := m.ShouldExit(ctx, pos, 95)
	if err != nil || !d.Exit {
		t.Errorf("均线反穿应离场: %+v err=%v", d, err)
	}
}

func TestMeanRevertSignal(t *testing.T) {
	ctx := context.Background()

	// 最后一根比均值高 3% 以上 → 做空
	closes := flat(24, 100)
	closes[23] = 104
	m := NewMeanRevert(&fakeData{closes: closes})
	sig, err := m.GenerateSignal(ctx, "ETH")
	if err != nil {
		t.Fatalf("生成信号失败: %v", err)
	}
	if sig == nil || sig.Direction != domain.DirectionShort {
		t.Fatalf("高偏离应做空: %+v", sig)
	}

	// 回到均线附近应离场
	pos := &domain.Position{Symbol: "ETH", Side: domain.PositionShort, EntryPrice: 104}
	d, err := m.ShouldExit(ctx, pos, sma(closes))
	if err != nil || !d.Exit {
		t.Errorf("回归均线应离场: %+v err=%v", d, err)
	}
}

func TestBreakoutSignal(t *testing.T) {
	ctx := context.Background()

	// 区间 100 附近，现价突破到 103 → 做多
	b := NewBreakout(&fakeData{closes: flat(49, 100), mid: 103})
	sig, err := b.GenerateSignal(ctx, "ETH")
	if err != nil {
		t.Fatalf("生成信号失败: %v", err)
	}
	if sig == nil || sig.Direction != domain.DirectionLong {
		t.Fatalf("向上突破应做多: %+v", sig)
	}

	// 区间内无信号
	b = NewBreakout(&fakeData{closes: flat(49, 100), mid: 100})
	if sig, _ := b.GenerateSignal(ctx, "ETH"); sig != nil {
		t.Error("区间内不应出信号")
	}

	// 假突破离场
	pos := &domain.Position{Symbol: "ETH", Side: domain.PositionLong, EntryPrice: 103}
	d, err := b.ShouldExit(ctx, pos, 102)
	if err != nil || !d.Exit {
		t.Errorf("跌回入场价应视为假突破: %+v err=%v", d, err)
	}
}

func TestFundingSignal(t *testing.T) {
	ctx := context.Background()

	// 每小时 0.005% 的正费率 → 年化约 43.8% → 做空吃费
	f := NewFunding(&fakeData{funding: flat(24, 0.00005), mid: 2500})
	sig, err := f.GenerateSignal(ctx, "ETH")
	if err != nil {
		t.Fatalf("生成信号失败: %v", err)
	}
	if sig == nil || sig.Direction != domain.DirectionShort {
		t.Fatalf("高正费率应做空: %+v", sig)
	}

	// 费率太低无信号
	f = NewFunding(&fakeData{funding: flat(24, 0.000001), mid: 2500})
	if sig, _ := f.GenerateSignal(ctx, "ETH"); sig != nil {
		t.Error("低费率不应出信号")
	}

	// 费率衰减应离场
	f = NewFunding(&fakeData{funding: flat(24, 0.000001), mid: 2500})
	pos := &domain.Position{Symbol: "ETH", Side: domain.PositionShort, EntryPrice: 2500}
	d, err := f.ShouldExit(ctx, pos, 2500)
	if err != nil || !d.Exit {
		t.Errorf("费率衰减应离场: %+v err=%v", d, err)
	}
}

func TestRegisterAll(t *testing.T) {
	reg := ports.NewRegistry()
	if err := RegisterAll(reg, &fakeData{}); err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	for _, id := range domain.AllStrategies {
		if _, ok := reg.Get(id); !ok {
			t.Errorf("策略 %s 未注册", id)
		}
	}
	// 重复注册应报错
	if err := RegisterAll(reg, &fakeData{}); err == nil {
		t.Error("重复注册应报错")
	}
}
