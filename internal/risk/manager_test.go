package risk

import (
	"context"
	"math"
	"testing"

	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/pkg/persistence"
)

type fakePositions struct {
	positions  []domain.Position
	marginUsed float64
}

func (f *fakePositions) Get(symbol string) (domain.Position, bool) {
	for _, p := range f.positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return domain.Position{}, false
}
func (f *fakePositions) List() []domain.Position  { return f.positions }
func (f *fakePositions) TotalMarginUsed() float64 { return f.marginUsed }

func newTestManager(t *testing.T, pos *fakePositions) *Manager {
	t.Helper()
	store := persistence.NewJSONFileService(t.TempDir()).NewStore("risk", "test", "state")
	m, err := New(domain.DefaultRiskParameters(), pos, store, nil, nil)
	if err != nil {
		t.Fatalf("创建风控管理器失败: %v", err)
	}
	return m
}

func longSignal(symbol string) *domain.Signal {
	return domain.NewSignal(domain.StrategyMomentum, symbol, domain.DirectionLong, 0.8)
}

func TestCheckPreTradeOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("非法权益", func(t *testing.T) {
		m := newTestManager(t, &fakePositions{})
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, math.NaN()); d.Approved {
			t.Error("NaN 权益应被拒绝")
		}
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 0); d.Approved {
			t.Error("零权益应被拒绝")
		}
	})

	t.Run("暂停粘性", func(t *testing.T) {
		m := newTestManager(t, &fakePositions{})
		m.TriggerPause(ctx, "manual")
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 1000); d.Approved {
			t.Error("暂停期间应拒绝")
		}
		// 权益恢复也不自动解除
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 100000); d.Approved {
			t.Error("暂停只能人工解除")
		}
		m.ResumeTrading(ctx)
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 1000); !d.Approved {
			t.Errorf("恢复后应放行: %s", d.Reason)
		}
	})

	t.Run("回撤触发暂停", func(t *testing.T) {
		m := newTestManager(t, &fakePositions{})
		// 第一次播种 peak=1000
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 1000); !d.Approved {
			t.Fatalf("首次检查应放行: %s", d.Reason)
		}
		// 回撤 -21% 超过 -20% 暂停线
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 790); d.Approved {
			t.Error("回撤超限应拒绝")
		}
		if !m.State().TradingPaused {
			t.Error("回撤超限应触发粘性暂停")
		}
	})

	t.Run("反向仓位拒绝", func(t *testing.T) {
		pos := &fakePositions{positions: []domain.Position{
			{Symbol: "ETH", Side: domain.PositionShort, Size: 1},
		}}
		m := newTestManager(t, pos)
		if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 1000); d.Approved {
			t.Error("与持仓反向的信号应被拒绝")
		}
		// 同向不拒
		sig := domain.NewSignal(domain.StrategyMomentum, "ETH", domain.DirectionShort, 0.8)
		if d := m.CheckPreTrade(ctx, sig, 25, 1000); !d.Approved {
			t.Errorf("同向信号应放行: %s", d.Reason)
		}
	})
}

func TestRiskTierLeverage(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewJSONFileService(t.TempDir()).NewStore("risk", "test", "state")
	params := domain.DefaultRiskParameters()
	// 把单日亏损线放宽，避免干扰分层杠杆的断言
	params.DailyLossPausePct = -50
	m, err := New(params, &fakePositions{}, store, nil, nil)
	if err != nil {
		t.Fatalf("创建风控管理器失败: %v", err)
	}

	// 播种 peak=1000
	d := m.CheckPreTrade(ctx, longSignal("ETH"), 10, 1000)
	if !d.Approved || d.MaxLeverage != 10 {
		t.Fatalf("NORMAL 层杠杆应为配置值 10: %+v", d)
	}
	// -12% 回撤 → REDUCED，杠杆压到 5
	d = m.CheckPreTrade(ctx, longSignal("ETH"), 10, 880)
	if !d.Approved || d.MaxLeverage != 5 {
		t.Errorf("REDUCED 层杠杆应为 5: %+v", d)
	}
	// -16% 回撤 → MINIMUM，杠杆压到 1
	d = m.CheckPreTrade(ctx, longSignal("ETH"), 10, 840)
	if !d.Approved || d.MaxLeverage != 1 {
		t.Errorf("MINIMUM 层杠杆应为 1: %+v", d)
	}
}

func TestExposureCapAdvisory(t *testing.T) {
	ctx := context.Background()
	// 已用保证金 850，超过 1000×80% 的敞口上限
	m := newTestManager(t, &fakePositions{marginUsed: 850})
	d := m.CheckPreTrade(ctx, longSignal("ETH"), 10, 1000)
	if !d.Approved {
		t.Fatalf("敞口上限是提示性的，不应拒单: %s", d.Reason)
	}
	if d.MaxLeverage != 1 {
		t.Errorf("敞口打满后杠杆应压到 1，实际 %d", d.MaxLeverage)
	}
	if len(d.Notes) == 0 {
		t.Error("cap 生效时应有提示")
	}
}

func TestCalculatePositionSize(t *testing.T) {
	m := newTestManager(t, &fakePositions{})

	// 100 权益、25% 分配、入场 50000、止损 47500：
	// baseCapital=25, slDistance=0.05, maxLoss=8, requiredMargin=160,
	// floor(25/160)=0 → 杠杆钳到 1，size = 25/50000 = 0.0005
	size, lev := m.CalculatePositionSize(25, 100, 50000, 47500, 10, 1.0)
	if lev != 1 {
		t.Errorf("杠杆应钳到 1，实际 %d", lev)
	}
	if math.Abs(size-0.0005) > 1e-12 {
		t.Errorf("size 应为 0.0005，实际 %.10f", size)
	}

	// 无止损时直接用请求杠杆
	size, lev = m.CalculatePositionSize(25, 1000, 2500, 0, 4, 1.0)
	if lev != 4 {
		t.Errorf("无止损时杠杆应为 4，实际 %d", lev)
	}
	if math.Abs(size-0.4) > 1e-12 {
		t.Errorf("size 应为 0.4 (250×4/2500)，实际 %f", size)
	}

	// 止损打穿时的亏损不超过权益的 8%
	size, lev = m.CalculatePositionSize(50, 1000, 100, 95, 10, 1.0)
	slDistance := 0.05
	loss := size * 100 * slDistance
	if loss > 1000*0.08+1e-9 {
		t.Errorf("止损亏损 %.2f 超过权益 8%%", loss)
	}
	_ = lev

	// 非法输入
	if size, _ := m.CalculatePositionSize(25, 0, 100, 95, 10, 1.0); size != 0 {
		t.Error("零权益应返回零数量")
	}
}

func TestContinuousChecksPeakRatchet(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakePositions{})

	m.RunContinuousChecks(ctx, 1000)
	if m.State().PeakEquity != 1000 {
		t.Fatalf("peak 应播种为 1000，实际 %f", m.State().PeakEquity)
	}
	m.RunContinuousChecks(ctx, 1200)
	if m.State().PeakEquity != 1200 {
		t.Errorf("peak 应抬升到 1200，实际 %f", m.State().PeakEquity)
	}
	m.RunContinuousChecks(ctx, 1100)
	if m.State().PeakEquity != 1200 {
		t.Errorf("peak 不应回落，实际 %f", m.State().PeakEquity)
	}
}

func TestContinuousChecksTradeLossAlert(t *testing.T) {
	ctx := context.Background()
	pos := &fakePositions{positions: []domain.Position{
		{Symbol: "ETH", Side: domain.PositionLong, UnrealizedPnL: -20, MarginUsed: 100}, // -20%
		{Symbol: "BTC", Side: domain.PositionLong, UnrealizedPnL: -5, MarginUsed: 100},  // -5%
	}}
	store := persistence.NewJSONFileService(t.TempDir()).NewStore("risk", "test", "state")
	var alerts []*domain.Alert
	m, err := New(domain.DefaultRiskParameters(), pos, store, nil, func(a *domain.Alert) {
		alerts = append(alerts, a)
	})
	if err != nil {
		t.Fatalf("创建风控管理器失败: %v", err)
	}
	m.RunContinuousChecks(ctx, 1000)

	var tradeLoss int
	for _, a := range alerts {
		if a.Kind == "trade_loss" {
			tradeLoss++
			if a.Symbol != "ETH" {
				t.Errorf("告警标的应为 ETH，实际 %s", a.Symbol)
			}
		}
	}
	if tradeLoss != 1 {
		t.Errorf("应只有 1 条单仓位亏损告警，实际 %d", tradeLoss)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := persistence.NewJSONFileService(dir).NewStore("risk", "test", "state")

	m1, err := New(domain.DefaultRiskParameters(), &fakePositions{}, store, nil, nil)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	m1.RunContinuousChecks(ctx, 1500)
	m1.TriggerPause(ctx, "manual")

	// 模拟重启：同一目录重建
	store2 := persistence.NewJSONFileService(dir).NewStore("risk", "test", "state")
	m2, err := New(domain.DefaultRiskParameters(), &fakePositions{}, store2, nil, nil)
	if err != nil {
		t.Fatalf("重启后创建失败: %v", err)
	}
	st := m2.State()
	if !st.TradingPaused || st.PauseReason != "manual" {
		t.Errorf("暂停状态应跨重启保留: %+v", st)
	}
	if st.PeakEquity != 1500 {
		t.Errorf("peak equity 应跨重启保留: %f", st.PeakEquity)
	}
}

func TestSetParametersRejectsInvalid(t *testing.T) {
	m := newTestManager(t, &fakePositions{})
	good := m.Parameters()

	bad := good
	bad.DrawdownPausePct = 5 // 必须为负
	if err := m.SetParameters(bad); err == nil {
		t.Fatal("非法参数应被拒绝")
	}
	if m.Parameters() != good {
		t.Error("拒绝后应保留上一组参数")
	}

	good.MaxLeverage = 20
	if err := m.SetParameters(good); err != nil {
		t.Fatalf("合法参数应被接受: %v", err)
	}
	if m.Parameters().MaxLeverage != 20 {
		t.Error("参数未生效")
	}
}

func TestPauseNotBypassedWhenDisabled(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakePositions{})

	m.TriggerPause(ctx, "manual")
	off := m.Parameters()
	off.Enabled = false
	if err := m.SetParameters(off); err != nil {
		t.Fatalf("参数应被接受: %v", err)
	}

	// 黏性暂停优先于 Enabled 开关
	if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 1000); d.Approved {
		t.Fatalf("风控禁用也不能绕过暂停: %+v", d)
	}
	m.ResumeTrading(ctx)
	if d := m.CheckPreTrade(ctx, longSignal("ETH"), 25, 1000); !d.Approved {
		t.Errorf("解除暂停后禁用态应放行: %s", d.Reason)
	}
}

func TestContinuousChecksRatchetWhileDisabled(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &fakePositions{})
	off := m.Parameters()
	off.Enabled = false
	if err := m.SetParameters(off); err != nil {
		t.Fatalf("参数应被接受: %v", err)
	}

	// 禁用只停告警/暂停触发，peak 记账照常
	m.RunContinuousChecks(ctx, 1000)
	m.RunContinuousChecks(ctx, 1300)
	if m.State().PeakEquity != 1300 {
		t.Errorf("禁用期间 peak 仍应抬升，实际 %f", m.State().PeakEquity)
	}
	m.RunContinuousChecks(ctx, 700) // -46% 回撤
	if m.State().TradingPaused {
		t.Error("禁用期间不应触发暂停")
	}
}

func TestSetParametersStampsProvenance(t *testing.T) {
	m := newTestManager(t, &fakePositions{})
	p := m.Parameters()
	p.MaxLeverage = 8
	if err := m.SetParameters(p); err != nil {
		t.Fatalf("参数应被接受: %v", err)
	}
	got := m.Parameters()
	if got.UpdatedBy != "operator" {
		t.Errorf("未填默认来源: %q", got.UpdatedBy)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("未盖更新时间戳")
	}
}
