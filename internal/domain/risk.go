package domain

import (
	"time"

	"github.com/pkg/errors"
)

// RiskTier 风险分层：回撤越深，后续开仓的杠杆越保守。
type RiskTier string

const (
	TierNormal  RiskTier = "NORMAL"  // 回撤 > -10%
	TierReduced RiskTier = "REDUCED" // -10% ~ -15%
	TierMinimum RiskTier = "MINIMUM" // -15% ~ -20%
)

// LeverageCap 该层级允许的最大杠杆
func (t RiskTier) LeverageCap(configured int) int {
	switch t {
	case TierReduced:
		if configured > 5 {
			return 5
		}
		return configured
	case TierMinimum:
		return 1
	default:
		return configured
	}
}

// RiskParameters 风控参数。百分比字段用负数表示亏损阈值。
type RiskParameters struct {
	// 回撤阈值（相对 peak equity，负百分比）
	DrawdownWarningPct  float64 `json:"drawdown_warning_pct" yaml:"drawdown_warning_pct"`
	DrawdownCriticalPct float64 `json:"drawdown_critical_pct" yaml:"drawdown_critical_pct"`
	DrawdownPausePct    float64 `json:"drawdown_pause_pct" yaml:"drawdown_pause_pct"`

	// 单日亏损暂停阈值（相对 daily start equity，负百分比）
	DailyLossPausePct float64 `json:"daily_loss_pause_pct" yaml:"daily_loss_pause_pct"`

	// 单仓位亏损告警阈值（相对保证金，负百分比）
	TradeLossAlertPct float64 `json:"trade_loss_alert_pct" yaml:"trade_loss_alert_pct"`

	// 总敞口上限（名义价值 / 权益，百分比）
	MaxExposurePct float64 `json:"max_exposure_pct" yaml:"max_exposure_pct"`

	// 仓位规模系数与杠杆上限
	PositionSizeScalar float64 `json:"position_size_scalar" yaml:"position_size_scalar"`
	MaxLeverage        int     `json:"max_leverage" yaml:"max_leverage"`

	// Enabled=false 时前置检查放行、告警与暂停触发关闭（仅用于实验）。
	// 已触发的黏性暂停不受此开关影响，仍然拦截开仓。
	Enabled bool `json:"enabled" yaml:"enabled"`

	// 参数来源：谁在什么时候改的
	UpdatedBy string    `json:"updated_by" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// DefaultRiskParameters 默认风控参数
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		DrawdownWarningPct:  -10,
		DrawdownCriticalPct: -15,
		DrawdownPausePct:    -20,
		DailyLossPausePct:   -8,
		TradeLossAlertPct:   -15,
		MaxExposurePct:      80,
		PositionSizeScalar:  1.0,
		MaxLeverage:         10,
		Enabled:             true,
	}
}

// Validate 校验参数自洽性；阈值必须满足 pause < critical < warning < 0。
func (p RiskParameters) Validate() error {
	if p.DrawdownWarningPct >= 0 || p.DrawdownCriticalPct >= 0 || p.DrawdownPausePct >= 0 {
		return errors.New("回撤阈值必须为负数")
	}
	if !(p.DrawdownPausePct < p.DrawdownCriticalPct && p.DrawdownCriticalPct < p.DrawdownWarningPct) {
		return errors.New("回撤阈值顺序必须满足 pause < critical < warning")
	}
	if p.DailyLossPausePct >= 0 {
		return errors.New("daily_loss_pause_pct 必须为负数")
	}
	if p.MaxExposurePct <= 0 || p.MaxExposurePct > 100 {
		return errors.New("max_exposure_pct 必须在 (0, 100] 之间")
	}
	if p.PositionSizeScalar <= 0 {
		return errors.New("position_size_scalar 必须为正")
	}
	if p.MaxLeverage < 1 {
		return errors.New("max_leverage 必须 >= 1")
	}
	return nil
}

// Tier 按当前回撤（负百分比）判定风险分层
func (p RiskParameters) Tier(drawdownPct float64) RiskTier {
	switch {
	case drawdownPct <= p.DrawdownCriticalPct:
		return TierMinimum
	case drawdownPct <= p.DrawdownWarningPct:
		return TierReduced
	default:
		return TierNormal
	}
}

// RiskState 风控持久化状态。peak equity 只增不减；
// trading_paused 是粘性的，跨重启保留，只有人工 resume 才清。
type RiskState struct {
	PeakEquity       float64   `json:"peak_equity"`
	DailyStartEquity float64   `json:"daily_start_equity"`
	DailyStartDate   string    `json:"daily_start_date"` // YYYY-MM-DD
	TradingPaused    bool      `json:"trading_paused"`
	PauseReason      string    `json:"pause_reason,omitempty"`
	PausedAt         time.Time `json:"paused_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DrawdownPct 当前回撤（负百分比，equity >= peak 时为 0）
func (s *RiskState) DrawdownPct(equity float64) float64 {
	if s.PeakEquity <= 0 || equity >= s.PeakEquity {
		return 0
	}
	return (equity - s.PeakEquity) / s.PeakEquity * 100
}

// DailyLossPct 当日盈亏（负为亏损，百分比）
func (s *RiskState) DailyLossPct(equity float64) float64 {
	if s.DailyStartEquity <= 0 {
		return 0
	}
	return (equity - s.DailyStartEquity) / s.DailyStartEquity * 100
}
