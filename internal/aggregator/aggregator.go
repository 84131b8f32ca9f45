// Package aggregator 每个 tick 收集各策略的信号、按标的消解冲突、
// 区分影子/实盘两路，再按优先级和额度执行，最后跑一轮离场扫描。
package aggregator

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/execution"
	"github.com/perpbot/goperp/internal/metrics"
	"github.com/perpbot/goperp/internal/ports"
	"github.com/perpbot/goperp/pkg/logger"
)

var log = logger.WithField("component", "aggregator")

// dominanceRatio 对立信号的优先级压制倍数：
// 超过这个倍数才保留强势一侧，否则整个标的本轮弃权。
const dominanceRatio = 1.5

// Executor 聚合器需要的执行能力
type Executor interface {
	ExecuteSignal(ctx context.Context, agg *domain.AggregatedSignal, equity float64) execution.Result
	ClosePosition(ctx context.Context, symbol, reason string) execution.Result
}

// AccountView 仓位与权益的只读视图
type AccountView interface {
	Get(symbol string) (domain.Position, bool)
	List() []domain.Position
	Equity() float64
}

// PriceSource 离场扫描用的询价能力
type PriceSource interface {
	Mid(ctx context.Context, symbol string) (float64, error)
}

// Aggregator 信号聚合器。RunTick 不可重入：
// 上一轮还在跑时新一轮直接跳过，绝不交错。
type Aggregator struct {
	universe []string
	registry *ports.Registry
	alloc    ports.Allocator
	exec     Executor
	account  AccountView
	prices   PriceSource
	store    ports.Store

	tickMu sync.Mutex
}

func New(universe []string, registry *ports.Registry, alloc ports.Allocator, exec Executor, account AccountView, prices PriceSource, store ports.Store) *Aggregator {
	return &Aggregator{
		universe: universe,
		registry: registry,
		alloc:    alloc,
		exec:     exec,
		account:  account,
		prices:   prices,
		store:    store,
	}
}

// TickStats 单轮运行统计
type TickStats struct {
	Skipped   bool
	Collected int
	Dropped   int
	Shadow    int
	Executed  int
	Exited    int
}

// RunTick 跑一轮完整的信号流程。
func (a *Aggregator) RunTick(ctx context.Context) TickStats {
	if !a.tickMu.TryLock() {
		log.Warnf("上一轮 tick 仍在运行，本轮跳过")
		metrics.TicksSkipped.Add(1)
		return TickStats{Skipped: true}
	}
	defer a.tickMu.Unlock()
	metrics.TickRuns.Add(1)

	var stats TickStats
	stats.Exited = a.exitSweep(ctx)

	signals := a.collect(ctx)
	stats.Collected = len(signals)
	// 所有收集到的信号先落库存证，不管后面是被消解、
	// 被额度卡住还是执行失败
	a.persistSignals(ctx, signals)

	resolved, dropped := resolveConflicts(signals)
	stats.Dropped = dropped

	live, shadow := partition(resolved)
	stats.Shadow = len(shadow)

	stats.Executed = a.executeLive(ctx, live)
	if stats.Collected > 0 || stats.Exited > 0 {
		log.Infof("tick 完成: collected=%d dropped=%d shadow=%d executed=%d exited=%d",
			stats.Collected, stats.Dropped, stats.Shadow, stats.Executed, stats.Exited)
	}
	return stats
}

func (a *Aggregator) persistSignals(ctx context.Context, signals []*domain.AggregatedSignal) {
	if a.store == nil {
		return
	}
	for _, s := range signals {
		if err := a.store.SaveSignal(ctx, s); err != nil {
			log.Errorf("信号落库失败 (%s %s): %v", s.Signal.Strategy, s.Signal.Symbol, err)
		}
	}
}

// collect 每个启用策略对每个标的最多产出一条信号
func (a *Aggregator) collect(ctx context.Context) []*domain.AggregatedSignal {
	var out []*domain.AggregatedSignal
	version := a.alloc.VersionID()
	for _, strat := range a.registry.All() {
		pct := a.alloc.AllocationPct(strat.ID())
		if pct <= 0 {
			continue
		}
		shadow := a.alloc.Shadow(strat.ID())
		for _, symbol := range a.universe {
			sig, err := strat.GenerateSignal(ctx, symbol)
			if err != nil {
				log.Warnf("策略 %s 生成 %s 信号失败: %v", strat.ID(), symbol, err)
				continue
			}
			if sig == nil || !sig.Actionable() {
				continue
			}
			out = append(out, domain.NewAggregatedSignal(sig, pct, shadow, version))
		}
	}
	return out
}

// resolveConflicts 按标的消解冲突：
// 同向取最高优先级；对立时强势侧需压制 1.5 倍以上，否则整个标的弃权。
func resolveConflicts(signals []*domain.AggregatedSignal) (kept []*domain.AggregatedSignal, dropped int) {
	bySymbol := make(map[string][]*domain.AggregatedSignal)
	var order []string
	for _, s := range signals {
		if _, seen := bySymbol[s.Signal.Symbol]; !seen {
			order = append(order, s.Signal.Symbol)
		}
		bySymbol[s.Signal.Symbol] = append(bySymbol[s.Signal.Symbol], s)
	}

	for _, symbol := range order {
		group := bySymbol[symbol]
		if len(group) == 1 {
			kept = append(kept, group[0])
			continue
		}
		var bestLong, bestShort *domain.AggregatedSignal
		for _, s := range group {
			switch s.Signal.Direction {
			case domain.DirectionLong:
				if bestLong == nil || s.Priority > bestLong.Priority {
					bestLong = s
				}
			case domain.DirectionShort:
				if bestShort == nil || s.Priority > bestShort.Priority {
					bestShort = s
				}
			}
		}
		switch {
		case bestLong != nil && bestShort == nil:
			kept = append(kept, bestLong)
			dropped += len(group) - 1
		case bestShort != nil && bestLong == nil:
			kept = append(kept, bestShort)
			dropped += len(group) - 1
		case bestLong != nil && bestShort != nil:
			// 对立信号：歧义当无信号处理
			if bestLong.Priority > bestShort.Priority*dominanceRatio {
				kept = append(kept, bestLong)
				dropped += len(group) - 1
			} else if bestShort.Priority > bestLong.Priority*dominanceRatio {
				kept = append(kept, bestShort)
				dropped += len(group) - 1
			} else {
				log.Infof("%s 多空信号势均力敌，本轮弃权", symbol)
				dropped += len(group)
			}
		}
	}
	return kept, dropped
}

func partition(signals []*domain.AggregatedSignal) (live, shadow []*domain.AggregatedSignal) {
	for _, s := range signals {
		if s.Shadow {
			shadow = append(shadow, s)
		} else {
			live = append(live, s)
		}
	}
	return live, shadow
}

// executeLive 按优先级执行实盘信号，额度 = max(1, floor(equity/100)×2)，
// 已持仓的标的跳过（这条路径不加仓）。
func (a *Aggregator) executeLive(ctx context.Context, live []*domain.AggregatedSignal) int {
	if len(live) == 0 {
		return 0
	}
	equity := a.account.Equity()
	limit := int(math.Floor(equity/100)) * 2
	if limit < 1 {
		limit = 1
	}

	sort.SliceStable(live, func(i, j int) bool { return live[i].Priority > live[j].Priority })

	executed := 0
	for _, s := range live {
		if executed >= limit {
			break
		}
		if _, held := a.account.Get(s.Signal.Symbol); held {
			continue
		}
		res := a.exec.ExecuteSignal(ctx, s, equity)
		if res.Success {
			executed++
		} else {
			log.Warnf("信号 %s %s 执行失败: %s", s.Signal.Strategy, s.Signal.Symbol, res.Reason)
		}
	}
	return executed
}

// exitSweep 对每个持仓按序检查硬止损、硬止盈、策略离场判断；
// 第一个命中的条件平仓并停止该仓位本轮的后续检查。
func (a *Aggregator) exitSweep(ctx context.Context) int {
	exited := 0
	for _, pos := range a.account.List() {
		mid, err := a.prices.Mid(ctx, pos.Symbol)
		if err != nil {
			log.Warnf("离场扫描询价 %s 失败: %v", pos.Symbol, err)
			continue
		}

		reason := ""
		switch {
		case pos.HitStopLoss(mid):
			reason = "stop_loss"
		case pos.HitTakeProfit(mid):
			reason = "take_profit"
		default:
			if strat, ok := a.registry.Get(pos.Strategy); ok {
				decision, err := strat.ShouldExit(ctx, &pos, mid)
				if err != nil {
					log.Warnf("策略 %s 离场判断失败: %v", pos.Strategy, err)
				} else if decision.Exit {
					reason = decision.Reason
					if reason == "" {
						reason = "strategy_exit"
					}
				}
			}
		}
		if reason == "" {
			continue
		}
		res := a.exec.ClosePosition(ctx, pos.Symbol, reason)
		if res.Success {
			exited++
		} else {
			log.Errorf("离场平仓 %s 失败: %s", pos.Symbol, res.Reason)
		}
	}
	return exited
}
