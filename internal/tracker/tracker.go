// Package tracker 维护本地仓位镜像：交易所是仓位事实来源，
// 本地只保留策略归属和止损/止盈这类交易所不知道的元数据。
package tracker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/exchange/types"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/metrics"
	"github.com/perpbot/goperp/pkg/logger"
	"github.com/pkg/errors"
)

var log = logger.WithField("component", "tracker")

// Tracker 仓位跟踪器。SyncFromExchange 整体替换仓位集合，
// ApplyLocalFill 在下单成功后立刻更新，不等下一轮 resync。
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position // symbol -> position

	// 归属与止损止盈在 resync 之间要留住
	attribution map[string]attribution

	info    *client.InfoClient
	address string

	equity       float64
	withdrawable float64
	marginUsed   float64
	lastSyncAt   time.Time
}

type attribution struct {
	strategy   domain.StrategyID
	stopLoss   float64
	takeProfit float64
	openedAt   time.Time
}

func New(info *client.InfoClient, address string) *Tracker {
	return &Tracker{
		positions:   make(map[string]*domain.Position),
		attribution: make(map[string]attribution),
		info:        info,
		address:     address,
	}
}

// SyncFromExchange 从 clearinghouseState 重建本地仓位。
// 交易所没有的仓位本地也删掉；交易所多出来的仓位标记为 unknown 策略。
func (t *Tracker) SyncFromExchange(ctx context.Context) error {
	state, err := t.info.ClearinghouseState(ctx, t.address)
	if err != nil {
		metrics.ResyncErrors.Add(1)
		return errors.Wrap(err, "fetch clearinghouse state")
	}
	metrics.ResyncRuns.Add(1)
	return t.applyState(state)
}

func (t *Tracker) applyState(state *types.ClearinghouseState) error {
	equity, err := client.ParseWireFloat(state.MarginSummary.AccountValue)
	if err != nil {
		return errors.Wrap(err, "parse account value")
	}
	marginUsed, err := client.ParseWireFloat(state.MarginSummary.TotalMarginUsed)
	if err != nil {
		return errors.Wrap(err, "parse total margin used")
	}
	withdrawable, _ := client.ParseWireFloat(state.Withdrawable)

	fresh := make(map[string]*domain.Position, len(state.AssetPositions))
	now := time.Now()
	for _, ap := range state.AssetPositions {
		raw := ap.Position
		szi, err := client.ParseWireFloat(raw.Szi)
		if err != nil || szi == 0 {
			continue
		}
		p := &domain.Position{
			Symbol:    raw.Coin,
			Size:      math.Abs(szi),
			Leverage:  raw.Leverage.Value,
			Strategy:  domain.StrategyUnknown,
			OpenedAt:  now,
			UpdatedAt: now,
		}
		if szi > 0 {
			p.Side = domain.PositionLong
		} else {
			p.Side = domain.PositionShort
		}
		if raw.EntryPx != nil {
			p.EntryPrice, _ = client.ParseWireFloat(*raw.EntryPx)
		}
		if raw.LiquidationPx != nil {
			p.LiquidationPrice, _ = client.ParseWireFloat(*raw.LiquidationPx)
		}
		p.UnrealizedPnL, _ = client.ParseWireFloat(raw.UnrealizedPnl)
		p.MarginUsed, _ = client.ParseWireFloat(raw.MarginUsed)
		fresh[p.Symbol] = p
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for sym, p := range fresh {
		if attr, ok := t.attribution[sym]; ok {
			p.Strategy = attr.strategy
			p.StopLoss = attr.stopLoss
			p.TakeProfit = attr.takeProfit
			p.OpenedAt = attr.openedAt
		} else {
			log.Warnf("发现未归属仓位 %s %s %.6f，标记为 unknown", sym, p.Side, p.Size)
		}
	}
	// 归属记录里已经没有对应仓位的，顺手清掉
	for sym := range t.attribution {
		if _, ok := fresh[sym]; !ok {
			delete(t.attribution, sym)
		}
	}

	t.positions = fresh
	t.equity = equity
	t.marginUsed = marginUsed
	t.withdrawable = withdrawable
	t.lastSyncAt = time.Now()
	return nil
}

// SetAttribution 下单前登记归属，resync 时据此恢复本地元数据。
func (t *Tracker) SetAttribution(symbol string, strategy domain.StrategyID, stopLoss, takeProfit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attribution[symbol] = attribution{
		strategy:   strategy,
		stopLoss:   stopLoss,
		takeProfit: takeProfit,
		openedAt:   time.Now(),
	}
	if p, ok := t.positions[symbol]; ok {
		p.Strategy = strategy
		p.StopLoss = stopLoss
		p.TakeProfit = takeProfit
	}
}

// ClearAttribution 平仓后清除归属
func (t *Tracker) ClearAttribution(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attribution, symbol)
}

// ApplyLocalFill 用成交回执即时更新本地仓位，避免 resync 窗口内的盲区。
// reduceOnly 成交按平仓处理。
func (t *Tracker) ApplyLocalFill(symbol string, isBuy bool, fill *client.OrderFill, reduceOnly bool, strategy domain.StrategyID, stopLoss, takeProfit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	existing, ok := t.positions[symbol]
	if reduceOnly {
		if !ok {
			return
		}
		remaining := existing.Size - fill.Size
		if remaining <= 1e-12 {
			delete(t.positions, symbol)
			delete(t.attribution, symbol)
		} else {
			existing.Size = remaining
			existing.UpdatedAt = now
		}
		return
	}

	side := domain.PositionShort
	if isBuy {
		side = domain.PositionLong
	}
	if ok && existing.Side == side {
		// 加仓：按成交量加权的入场价
		total := existing.Size + fill.Size
		existing.EntryPrice = (existing.EntryPrice*existing.Size + fill.AvgPx*fill.Size) / total
		existing.Size = total
		existing.UpdatedAt = now
		return
	}

	p := &domain.Position{
		Symbol:     symbol,
		Side:       side,
		Size:       fill.Size,
		EntryPrice: fill.AvgPx,
		Strategy:   strategy,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		OpenedAt:   now,
		UpdatedAt:  now,
	}
	t.positions[symbol] = p
	t.attribution[symbol] = attribution{strategy: strategy, stopLoss: stopLoss, takeProfit: takeProfit, openedAt: now}
}

// Get 返回仓位副本，不暴露内部指针
func (t *Tracker) Get(symbol string) (domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// List 返回所有仓位的副本
func (t *Tracker) List() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

func (t *Tracker) Equity() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.equity
}

func (t *Tracker) Withdrawable() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.withdrawable
}

func (t *Tracker) TotalMarginUsed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.marginUsed
}

// TotalNotional 所有仓位按标记价的名义敞口之和
func (t *Tracker) TotalNotional(mids map[string]float64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum float64
	for sym, p := range t.positions {
		if mid, ok := mids[sym]; ok {
			sum += p.Notional(mid)
		} else {
			sum += p.Notional(p.EntryPrice)
		}
	}
	return sum
}

// TotalUnrealizedPnL 所有仓位未实现盈亏之和
func (t *Tracker) TotalUnrealizedPnL() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum float64
	for _, p := range t.positions {
		sum += p.UnrealizedPnL
	}
	return sum
}

func (t *Tracker) LastSyncAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSyncAt
}
