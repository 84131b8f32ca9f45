package tracker

import (
	"testing"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/exchange/types"
	"github.com/perpbot/goperp/internal/domain"
)

func strPtr(s string) *string { return &s }

func stateWith(positions ...types.RawPosition) *types.ClearinghouseState {
	st := &types.ClearinghouseState{
		MarginSummary: types.MarginSummary{AccountValue: "1000.0", TotalMarginUsed: "120.0"},
		Withdrawable:  "880.0",
	}
	for _, p := range positions {
		st.AssetPositions = append(st.AssetPositions, types.AssetPosition{Type: "oneWay", Position: p})
	}
	return st
}

func TestApplyStateReplacesPositions(t *testing.T) {
	tr := New(nil, "0xabc")

	err := tr.applyState(stateWith(types.RawPosition{
		Coin: "ETH", Szi: "0.5", EntryPx: strPtr("2500.0"),
		UnrealizedPnl: "10.0", MarginUsed: "50.0",
		Leverage: types.Leverage{Type: "cross", Value: 3},
	}))
	if err != nil {
		t.Fatalf("applyState 失败: %v", err)
	}

	p, ok := tr.Get("ETH")
	if !ok {
		t.Fatal("ETH 仓位丢失")
	}
	if p.Side != domain.PositionLong || p.Size != 0.5 || p.EntryPrice != 2500 {
		t.Errorf("仓位字段不匹配: %+v", p)
	}
	if p.Strategy != domain.StrategyUnknown {
		t.Errorf("未登记归属应为 unknown，实际 %s", p.Strategy)
	}
	if tr.Equity() != 1000 || tr.TotalMarginUsed() != 120 {
		t.Errorf("账户汇总不匹配: equity=%f margin=%f", tr.Equity(), tr.TotalMarginUsed())
	}

	// 第二次同步换成 BTC 空头，ETH 应消失
	err = tr.applyState(stateWith(types.RawPosition{
		Coin: "BTC", Szi: "-0.1", EntryPx: strPtr("60000"),
		UnrealizedPnl: "-5.0", MarginUsed: "300.0",
		Leverage: types.Leverage{Type: "cross", Value: 2},
	}))
	if err != nil {
		t.Fatalf("第二次 applyState 失败: %v", err)
	}
	if _, ok := tr.Get("ETH"); ok {
		t.Error("整体替换后 ETH 不应存在")
	}
	btc, ok := tr.Get("BTC")
	if !ok || btc.Side != domain.PositionShort || btc.Size != 0.1 {
		t.Errorf("BTC 空头仓位不匹配: %+v ok=%v", btc, ok)
	}
}

func TestAttributionSurvivesResync(t *testing.T) {
	tr := New(nil, "0xabc")
	tr.SetAttribution("ETH", domain.StrategyMomentum, 2400, 2700)

	err := tr.applyState(stateWith(types.RawPosition{
		Coin: "ETH", Szi: "1.0", EntryPx: strPtr("2500"),
		UnrealizedPnl: "0", MarginUsed: "100",
		Leverage: types.Leverage{Value: 5},
	}))
	if err != nil {
		t.Fatalf("applyState 失败: %v", err)
	}
	p, _ := tr.Get("ETH")
	if p.Strategy != domain.StrategyMomentum {
		t.Errorf("归属应在 resync 后保留，实际 %s", p.Strategy)
	}
	if p.StopLoss != 2400 || p.TakeProfit != 2700 {
		t.Errorf("止损止盈应保留: sl=%f tp=%f", p.StopLoss, p.TakeProfit)
	}

	// 仓位消失后归属应被清理
	if err := tr.applyState(stateWith()); err != nil {
		t.Fatalf("空状态 applyState 失败: %v", err)
	}
	if err := tr.applyState(stateWith(types.RawPosition{
		Coin: "ETH", Szi: "1.0", EntryPx: strPtr("2500"),
		UnrealizedPnl: "0", MarginUsed: "100",
		Leverage: types.Leverage{Value: 5},
	})); err != nil {
		t.Fatalf("applyState 失败: %v", err)
	}
	p, _ = tr.Get("ETH")
	if p.Strategy != domain.StrategyUnknown {
		t.Errorf("归属清理后重建的仓位应为 unknown，实际 %s", p.Strategy)
	}
}

func TestApplyLocalFill(t *testing.T) {
	tr := New(nil, "0xabc")

	tr.ApplyLocalFill("ETH", true, &client.OrderFill{OrderID: 1, Size: 0.5, AvgPx: 2500}, false, domain.StrategyBreakout, 2400, 0)
	p, ok := tr.Get("ETH")
	if !ok || p.Side != domain.PositionLong || p.Size != 0.5 {
		t.Fatalf("本地成交未生效: %+v ok=%v", p, ok)
	}

	// 加仓：入场价按成交量加权
	tr.ApplyLocalFill("ETH", true, &client.OrderFill{OrderID: 2, Size: 0.5, AvgPx: 2600}, false, domain.StrategyBreakout, 2400, 0)
	p, _ = tr.Get("ETH")
	if p.Size != 1.0 {
		t.Errorf("加仓后数量应为 1.0，实际 %f", p.Size)
	}
	if p.EntryPrice != 2550 {
		t.Errorf("加权入场价应为 2550，实际 %f", p.EntryPrice)
	}

	// 部分平仓
	tr.ApplyLocalFill("ETH", false, &client.OrderFill{OrderID: 3, Size: 0.4, AvgPx: 2580}, true, domain.StrategyBreakout, 0, 0)
	p, _ = tr.Get("ETH")
	if p.Size < 0.599 || p.Size > 0.601 {
		t.Errorf("部分平仓后数量应约为 0.6，实际 %f", p.Size)
	}

	// 全部平仓后仓位与归属都清掉
	tr.ApplyLocalFill("ETH", false, &client.OrderFill{OrderID: 4, Size: 0.6, AvgPx: 2590}, true, domain.StrategyBreakout, 0, 0)
	if _, ok := tr.Get("ETH"); ok {
		t.Error("全平后仓位应消失")
	}
}

func TestHitStopLossTakeProfit(t *testing.T) {
	long := domain.Position{Symbol: "ETH", Side: domain.PositionLong, StopLoss: 2400, TakeProfit: 2700}
	if !long.HitStopLoss(2399) || long.HitStopLoss(2401) {
		t.Error("多头止损判断错误")
	}
	if !long.HitTakeProfit(2701) || long.HitTakeProfit(2699) {
		t.Error("多头止盈判断错误")
	}

	short := domain.Position{Symbol: "ETH", Side: domain.PositionShort, StopLoss: 2600, TakeProfit: 2300}
	if !short.HitStopLoss(2601) || short.HitStopLoss(2599) {
		t.Error("空头止损判断错误")
	}
	if !short.HitTakeProfit(2299) || short.HitTakeProfit(2301) {
		t.Error("空头止盈判断错误")
	}

	none := domain.Position{Symbol: "ETH", Side: domain.PositionLong}
	if none.HitStopLoss(1) || none.HitTakeProfit(1e9) {
		t.Error("未设置止损止盈时不应触发")
	}
}
