// Package execution 把聚合后的信号变成签名订单：
// 风控闸门 → 询价 → 定杠杆定量 → 下单 → 落库与本地仓位更新。
package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/metrics"
	"github.com/perpbot/goperp/internal/ports"
	"github.com/perpbot/goperp/internal/risk"
	"github.com/perpbot/goperp/pkg/logger"
)

var log = logger.WithField("component", "execution")

// Exchange 下单所需的交易所能力
type Exchange interface {
	PlaceMarketOrder(ctx context.Context, symbol string, isBuy bool, size, mid float64, reduceOnly bool) (*client.OrderFill, error)
	ClosePosition(ctx context.Context, symbol string, isLong bool, size, mid float64) (*client.OrderFill, error)
	UpdateLeverage(ctx context.Context, symbol string, leverage int, isCross bool) error
}

// PriceSource 询价能力
type PriceSource interface {
	Mid(ctx context.Context, symbol string) (float64, error)
	InvalidateMid(symbol string)
}

// RiskGate 执行前风控能力
type RiskGate interface {
	CheckPreTrade(ctx context.Context, sig *domain.Signal, allocationPct, equity float64) risk.Decision
	CalculatePositionSize(allocationPct, equity, entry, stop float64, maxLeverage int, capitalUtilization float64) (float64, int)
}

// PositionBook 本地仓位簿能力
type PositionBook interface {
	Get(symbol string) (domain.Position, bool)
	List() []domain.Position
	SetAttribution(symbol string, strategy domain.StrategyID, stopLoss, takeProfit float64)
	ClearAttribution(symbol string)
	ApplyLocalFill(symbol string, isBuy bool, fill *client.OrderFill, reduceOnly bool, strategy domain.StrategyID, stopLoss, takeProfit float64)
	SyncFromExchange(ctx context.Context) error
}

// Result 单次执行的结构化结果。所有传输/解析错误都在这里
// 被转成 Reason，绝不向上抛。
type Result struct {
	Symbol   string
	Success  bool
	Reason   string
	OrderID  uint64
	Size     float64
	AvgPrice float64
	Leverage int
	Notes    []string
}

// Manager 订单管理器。同一标的的下单/调杠杆串行化，
// 避免陈旧仓位读与新鲜的规模计算互相踩踏。
type Manager struct {
	exchange Exchange
	prices   PriceSource
	gate     RiskGate
	book     PositionBook
	store    ports.Store
	breaker  *risk.CircuitBreaker
	capUtil  float64

	mu      sync.Mutex
	symLock map[string]*sync.Mutex
}

// NewManager 创建订单管理器。breaker 可以为 nil（禁用执行熔断）。
func NewManager(exchange Exchange, prices PriceSource, gate RiskGate, book PositionBook, store ports.Store, breaker *risk.CircuitBreaker, capitalUtilization float64) *Manager {
	if capitalUtilization <= 0 || capitalUtilization > 1 {
		capitalUtilization = 1
	}
	return &Manager{
		exchange: exchange,
		prices:   prices,
		gate:     gate,
		book:     book,
		store:    store,
		breaker:  breaker,
		capUtil:  capitalUtilization,
		symLock:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockSymbol(symbol string) func() {
	m.mu.Lock()
	l, ok := m.symLock[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.symLock[symbol] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ExecuteSignal 执行一条已通过聚合的实盘信号。
func (m *Manager) ExecuteSignal(ctx context.Context, agg *domain.AggregatedSignal, equity float64) Result {
	sig := agg.Signal
	res := Result{Symbol: sig.Symbol}
	if !sig.Actionable() {
		res.Reason = "信号方向不可执行"
		return res
	}

	unlock := m.lockSymbol(sig.Symbol)
	defer unlock()

	// 执行熔断只拦开仓；平仓路径不经过这里
	if err := m.breaker.AllowEntry(); err != nil {
		metrics.RiskRejections.Add(1)
		res.Reason = "执行熔断: " + err.Error()
		return res
	}

	decision := m.gate.CheckPreTrade(ctx, sig, agg.AllocationPct, equity)
	res.Notes = decision.Notes
	if !decision.Approved {
		metrics.RiskRejections.Add(1)
		res.Reason = "风控拒绝: " + decision.Reason
		return res
	}

	mid, err := m.prices.Mid(ctx, sig.Symbol)
	if err != nil {
		res.Reason = "询价失败: " + err.Error()
		return res
	}

	size, leverage := m.gate.CalculatePositionSize(agg.AllocationPct, equity, mid, sig.StopLoss, decision.MaxLeverage, m.capUtil)
	if size <= 0 {
		res.Reason = "计算仓位为零"
		return res
	}
	res.Leverage = leverage

	// 调杠杆尽力而为：失败只记日志，杠杆可能本来就是对的
	if err := m.exchange.UpdateLeverage(ctx, sig.Symbol, leverage, true); err != nil {
		log.Warnf("调整 %s 杠杆到 %dx 失败（继续下单）: %v", sig.Symbol, leverage, err)
		res.Notes = append(res.Notes, "杠杆调整失败")
	}

	isBuy := sig.Direction == domain.DirectionLong
	fill, err := m.exchange.PlaceMarketOrder(ctx, sig.Symbol, isBuy, size, mid, false)
	if err != nil {
		metrics.OrdersRejected.Add(1)
		m.breaker.OnOrderFailure()
		res.Reason = "下单失败: " + err.Error()
		return res
	}
	metrics.OrdersPlaced.Add(1)
	m.breaker.OnOrderSuccess()
	m.prices.InvalidateMid(sig.Symbol)

	res.Success = true
	res.OrderID = fill.OrderID
	res.Size = fill.Size
	res.AvgPrice = fill.AvgPx

	side := domain.PositionShort
	if isBuy {
		side = domain.PositionLong
	}
	m.book.SetAttribution(sig.Symbol, sig.Strategy, sig.StopLoss, sig.TakeProfit)
	m.book.ApplyLocalFill(sig.Symbol, isBuy, fill, false, sig.Strategy, sig.StopLoss, sig.TakeProfit)

	// 落库失败不改变交易结果，转成告警
	trade := domain.NewTrade(sig.Strategy, sig.Symbol, side, sig.Direction, fill.Size, fill.AvgPx, leverage)
	trade.Metadata = map[string]string{"signal_id": sig.ID, "version_id": agg.VersionID}
	m.persist(ctx, trade)

	log.Infof("开仓成功 %s %s size=%.6f px=%.4f lev=%dx", sig.Symbol, side, fill.Size, fill.AvgPx, leverage)
	return res
}

// ClosePosition 按标的平掉本地已知仓位。
func (m *Manager) ClosePosition(ctx context.Context, symbol, reason string) Result {
	res := Result{Symbol: symbol}

	unlock := m.lockSymbol(symbol)
	defer unlock()

	pos, ok := m.book.Get(symbol)
	if !ok {
		res.Reason = "本地无该仓位"
		return res
	}

	mid, err := m.prices.Mid(ctx, symbol)
	if err != nil {
		res.Reason = "询价失败: " + err.Error()
		return res
	}

	fill, err := m.exchange.ClosePosition(ctx, symbol, pos.IsLong(), pos.Size, mid)
	if err != nil {
		res.Reason = "平仓失败: " + err.Error()
		return res
	}
	m.prices.InvalidateMid(symbol)
	metrics.PositionsClosed.Add(1)

	res.Success = true
	res.OrderID = fill.OrderID
	res.Size = fill.Size
	res.AvgPrice = fill.AvgPx

	pnl := pos.RealizedPnL(fill.AvgPx)
	trade := domain.NewTrade(pos.Strategy, symbol, pos.Side, domain.DirectionClose, fill.Size, fill.AvgPx, pos.Leverage)
	trade.RealizedPnL = &pnl
	trade.Metadata = map[string]string{"close_reason": reason}
	m.persist(ctx, trade)

	m.book.ApplyLocalFill(symbol, !pos.IsLong(), fill, true, pos.Strategy, 0, 0)
	m.book.ClearAttribution(symbol)
	if err := m.book.SyncFromExchange(ctx); err != nil {
		log.Warnf("平仓后 resync 失败: %v", err)
	}

	log.Infof("平仓成功 %s reason=%s pnl=%.4f", symbol, reason, pnl)
	return res
}

// CloseAllPositions 逐标的平仓；单标的失败不阻塞其余标的，
// 每个结果独立记录。
func (m *Manager) CloseAllPositions(ctx context.Context, reason string) []Result {
	positions := m.book.List()
	results := make([]Result, 0, len(positions))
	for _, p := range positions {
		r := m.ClosePosition(ctx, p.Symbol, reason)
		if !r.Success {
			log.Errorf("全平时 %s 失败: %s", p.Symbol, r.Reason)
		}
		results = append(results, r)
	}
	return results
}

// persist 交易记录落库。信号的存证在聚合层收集时就做了，
// 这里只负责成交。
func (m *Manager) persist(ctx context.Context, trade *domain.Trade) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveTrade(ctx, trade); err != nil {
		m.persistAlert(ctx, fmt.Sprintf("交易记录落库失败 (%s): %v", trade.Symbol, err))
	}
}

func (m *Manager) persistAlert(ctx context.Context, msg string) {
	log.Errorf("%s", msg)
	a := domain.NewAlert(domain.AlertWarning, "persistence_gap", "", msg)
	if err := m.store.SaveAlert(ctx, a); err != nil {
		log.Errorf("告警落库也失败了: %v", err)
	}
}
