// Package risk 是交易前置闸门与持续熔断器：
// 回撤/单日亏损/敞口三条线，外加按风险分层的杠杆与规模控制。
package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/ports"
	"github.com/perpbot/goperp/pkg/logger"
	"github.com/perpbot/goperp/pkg/persistence"
	"github.com/pkg/errors"
)

var log = logger.WithField("component", "risk")

// riskStateKey store 镜像里的 KV 键
const riskStateKey = "risk_state"

// PositionView 风控需要的仓位只读视图
type PositionView interface {
	Get(symbol string) (domain.Position, bool)
	List() []domain.Position
	TotalMarginUsed() float64
}

// Decision 前置检查结果。Approved=false 时 Reason 给出拒绝原因；
// Notes 是 cap 生效时的提示信息，不阻断执行。
type Decision struct {
	Approved    bool
	Reason      string
	MaxLeverage int
	Notes       []string
}

// Manager 风控管理器。状态变更全部经过 persistState 单点落盘。
type Manager struct {
	mu     sync.Mutex
	params domain.RiskParameters
	state  domain.RiskState

	positions  PositionView
	stateStore persistence.Store
	store      ports.Store
	alerts     func(*domain.Alert)
}

// New 创建风控管理器并从磁盘恢复状态。
// alertFn 为 nil 时告警只写日志和 store。
func New(params domain.RiskParameters, positions PositionView, stateStore persistence.Store, store ports.Store, alertFn func(*domain.Alert)) (*Manager, error) {
	if err := params.Validate(); err != nil {
		log.Warnf("风控参数非法，回退默认值: %v", err)
		params = domain.DefaultRiskParameters()
	}
	m := &Manager{
		params:     params,
		positions:  positions,
		stateStore: stateStore,
		store:      store,
		alerts:     alertFn,
	}
	if stateStore != nil {
		var st domain.RiskState
		err := stateStore.Load(&st)
		switch {
		case err == nil:
			m.state = st
			if st.TradingPaused {
				log.Warnf("恢复到暂停状态，原因: %s（需人工 resume）", st.PauseReason)
			}
		case errors.Is(err, persistence.ErrNotExists):
			// 全新启动，等首次检查时惰性播种
		default:
			return nil, errors.Wrap(err, "load risk state")
		}
	}
	return m, nil
}

// Parameters 返回当前参数副本
func (m *Manager) Parameters() domain.RiskParameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// SetParameters 原子替换风控参数；非法参数被拒绝并保留上一组可用值。
func (m *Manager) SetParameters(p domain.RiskParameters) error {
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, "reject risk parameters")
	}
	if p.UpdatedBy == "" {
		p.UpdatedBy = "operator"
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = p
	log.Infof("风控参数已更新 by=%s: pause=%.1f%% daily=%.1f%% maxLev=%d",
		p.UpdatedBy, p.DrawdownPausePct, p.DailyLossPausePct, p.MaxLeverage)
	return nil
}

// State 返回当前状态副本
func (m *Manager) State() domain.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CheckPreTrade 按固定顺序短路检查；任何一条命中立即返回。
func (m *Manager) CheckPreTrade(ctx context.Context, sig *domain.Signal, allocationPct, equity float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if math.IsNaN(equity) || equity <= 0 {
		return Decision{Reason: "账户权益非法"}
	}
	// 黏性暂停先于一切开关：禁用风控也不能绕过已触发的暂停，
	// 恢复只能走显式 ResumeTrading
	if m.state.TradingPaused {
		return Decision{Reason: "交易已暂停: " + m.state.PauseReason}
	}
	if !m.params.Enabled {
		return Decision{Approved: true, MaxLeverage: m.params.MaxLeverage, Notes: []string{"风控已禁用，直接放行"}}
	}
	m.seedLocked(ctx, equity)

	dd := m.state.DrawdownPct(equity)
	if dd <= m.params.DrawdownPausePct {
		m.pauseLocked(ctx, "drawdown", dd)
		return Decision{Reason: "回撤触发暂停"}
	}
	daily := m.state.DailyLossPct(equity)
	if daily <= m.params.DailyLossPausePct {
		m.pauseLocked(ctx, "daily_loss", daily)
		return Decision{Reason: "单日亏损触发暂停"}
	}

	if pos, ok := m.positions.Get(sig.Symbol); ok && pos.OppositeDirection(sig.Direction) {
		return Decision{Reason: "已持有反向仓位"}
	}

	d := Decision{Approved: true}
	tier := m.params.Tier(dd)
	d.MaxLeverage = tier.LeverageCap(m.params.MaxLeverage)
	if tier != domain.TierNormal {
		d.Notes = append(d.Notes, "风险分层 "+string(tier)+" 生效，杠杆受限")
	}

	// 敞口上限是提示性的：进一步压杠杆，但不直接拒单
	marginUsed := m.positions.TotalMarginUsed()
	budget := equity*m.params.MaxExposurePct/100 - marginUsed
	newMargin := equity * allocationPct / 100
	if budget <= 0 {
		d.MaxLeverage = 1
		d.Notes = append(d.Notes, "总敞口已达上限，杠杆压到 1")
	} else if newMargin > budget {
		d.Notes = append(d.Notes, "新仓位将逼近敞口上限")
	}
	return d
}

// RunContinuousChecks 在交易路径之外按固定节奏运行：
// 抬升 peak equity、发层级告警、触发硬暂停、逐仓位亏损告警。
func (m *Manager) RunContinuousChecks(ctx context.Context, equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if math.IsNaN(equity) || equity <= 0 {
		return
	}
	m.seedLocked(ctx, equity)
	m.rolloverLocked(ctx, equity)

	// peak 只增不减
	if equity > m.state.PeakEquity {
		m.state.PeakEquity = equity
		m.persistLocked(ctx)
	}

	// 禁用只关告警和暂停触发，状态记账照常
	if !m.params.Enabled {
		return
	}

	dd := m.state.DrawdownPct(equity)
	daily := m.state.DailyLossPct(equity)

	switch {
	case dd <= m.params.DrawdownPausePct:
		if !m.state.TradingPaused {
			m.pauseLocked(ctx, "drawdown", dd)
		}
	case dd <= m.params.DrawdownCriticalPct:
		m.alertLocked(ctx, domain.NewAlert(domain.AlertCritical, "drawdown_critical", "",
			"回撤进入 MINIMUM 层级"))
	case dd <= m.params.DrawdownWarningPct:
		m.alertLocked(ctx, domain.NewAlert(domain.AlertWarning, "drawdown_warning", "",
			"回撤进入 REDUCED 层级"))
	}
	if daily <= m.params.DailyLossPausePct && !m.state.TradingPaused {
		m.pauseLocked(ctx, "daily_loss", daily)
	}

	for _, p := range m.positions.List() {
		ratio := p.PnLRatio() * 100
		if ratio <= m.params.TradeLossAlertPct {
			m.alertLocked(ctx, domain.NewAlert(domain.AlertWarning, "trade_loss", p.Symbol,
				"单仓位亏损超过告警线"))
		}
	}
}

// CalculatePositionSize 计算下单数量与杠杆。
// 约束：止损打穿时的最大亏损（baseCapital × leverage × slDistance）
// 不超过总权益的 8%，与请求的杠杆无关。
func (m *Manager) CalculatePositionSize(allocationPct, equity, entry, stop float64, maxLeverage int, capitalUtilization float64) (size float64, leverage int) {
	m.mu.Lock()
	scalar := m.params.PositionSizeScalar
	m.mu.Unlock()

	if equity <= 0 || entry <= 0 || allocationPct <= 0 {
		return 0, 1
	}
	if capitalUtilization <= 0 || capitalUtilization > 1 {
		capitalUtilization = 1
	}

	baseCapital := equity * allocationPct / 100 * capitalUtilization * scalar
	leverage = maxLeverage
	if stop > 0 {
		slDistance := math.Abs(entry-stop) / entry
		if slDistance > 0 {
			maxLossPerTrade := equity * 0.08
			requiredMargin := maxLossPerTrade / slDistance
			allowed := int(math.Floor(baseCapital / requiredMargin))
			if allowed < leverage {
				leverage = allowed
			}
		}
	}
	if leverage < 1 {
		leverage = 1
	}
	size = baseCapital * float64(leverage) / entry
	return size, leverage
}

// TriggerPause 手动/外部触发暂停，幂等。
func (m *Manager) TriggerPause(ctx context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.TradingPaused {
		return
	}
	m.pauseLocked(ctx, reason, 0)
}

// ResumeTrading 人工恢复交易，幂等。
func (m *Manager) ResumeTrading(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.TradingPaused {
		return
	}
	m.state.TradingPaused = false
	m.state.PauseReason = ""
	m.persistLocked(ctx)
	log.Infof("交易已人工恢复")
}

// ResetDailyMetrics 重置单日起点，幂等（当天只生效一次）。
func (m *Manager) ResetDailyMetrics(ctx context.Context, equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	if m.state.DailyStartDate == today {
		return
	}
	m.state.DailyStartEquity = equity
	m.state.DailyStartDate = today
	m.persistLocked(ctx)
}

// ResetPeakEquity 人工重置 peak equity（唯一允许下调的途径）
func (m *Manager) ResetPeakEquity(ctx context.Context, equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PeakEquity = equity
	m.persistLocked(ctx)
	log.Warnf("peak equity 已人工重置为 %.2f", equity)
}

// seedLocked 惰性播种：只在从未初始化时用当前权益起步
func (m *Manager) seedLocked(ctx context.Context, equity float64) {
	changed := false
	if m.state.PeakEquity <= 0 {
		m.state.PeakEquity = equity
		changed = true
	}
	if m.state.DailyStartEquity <= 0 {
		m.state.DailyStartEquity = equity
		m.state.DailyStartDate = time.Now().UTC().Format("2006-01-02")
		changed = true
	}
	if changed {
		m.persistLocked(ctx)
	}
}

// rolloverLocked 跨日翻转单日起点
func (m *Manager) rolloverLocked(ctx context.Context, equity float64) {
	today := time.Now().UTC().Format("2006-01-02")
	if m.state.DailyStartDate != "" && m.state.DailyStartDate != today {
		m.state.DailyStartEquity = equity
		m.state.DailyStartDate = today
		m.persistLocked(ctx)
	}
}

func (m *Manager) pauseLocked(ctx context.Context, reason string, pct float64) {
	m.state.TradingPaused = true
	m.state.PauseReason = reason
	m.state.PausedAt = time.Now()
	m.persistLocked(ctx)
	log.Errorf("交易暂停: %s (%.2f%%)", reason, pct)
	m.alertLocked(ctx, domain.NewAlert(domain.AlertCritical, "trading_paused", "", "交易暂停: "+reason))
}

func (m *Manager) alertLocked(ctx context.Context, a *domain.Alert) {
	log.Warnf("告警[%s] %s %s", a.Level, a.Kind, a.Message)
	if m.store != nil {
		if err := m.store.SaveAlert(ctx, a); err != nil {
			log.Errorf("告警落库失败: %v", err)
		}
	}
	if m.alerts != nil {
		m.alerts(a)
	}
}

// persistLocked 状态变更的唯一落盘点：JSON 文件为准，store 镜像尽力而为。
func (m *Manager) persistLocked(ctx context.Context) {
	m.state.UpdatedAt = time.Now()
	if m.stateStore != nil {
		if err := m.stateStore.Save(&m.state); err != nil {
			log.Errorf("风控状态落盘失败: %v", err)
		}
	}
	if m.store != nil {
		if b, err := marshalState(&m.state); err == nil {
			if err := m.store.SetSystemState(ctx, riskStateKey, b); err != nil {
				log.Errorf("风控状态镜像写入失败: %v", err)
			}
		}
	}
}
