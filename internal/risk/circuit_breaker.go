package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示执行断路器已打开，禁止继续开新仓。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 执行断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveFailures 连续下单失败上限。
	// 连续失败通常指向网关、签名或余额类问题，继续重试只会烧额度。
	MaxConsecutiveFailures int64

	// MaxDailyFailures 当日累计下单失败上限。达到后熔断到次日。
	MaxDailyFailures int64
}

// CircuitBreaker 开仓快路径上的熔断器。
// 与 Manager 的权益风控互补：Manager 看的是账户回撤，
// 这里看的是执行链路本身是否还健康。平仓不经过熔断器，
// 断路器打开时减仓永远是允许的。
type CircuitBreaker struct {
	halted atomic.Bool

	consecutiveFailures atomic.Int64
	dailyFailures       atomic.Int64
	dayKey              atomic.Int64 // YYYYMMDD

	maxConsecutiveFailures atomic.Int64
	maxDailyFailures       atomic.Int64
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveFailures.Store(cfg.MaxConsecutiveFailures)
	cb.maxDailyFailures.Store(cfg.MaxDailyFailures)
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// Resume 手动恢复（会同时清空连续失败计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveFailures.Store(0)
}

// AllowEntry 快路径检查是否允许开新仓。
func (cb *CircuitBreaker) AllowEntry() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}

	maxConsec := cb.maxConsecutiveFailures.Load()
	if maxConsec > 0 && cb.consecutiveFailures.Load() >= maxConsec {
		cb.halted.Store(true)
		return ErrCircuitBreakerOpen
	}

	maxDaily := cb.maxDailyFailures.Load()
	if maxDaily > 0 {
		cb.rollDayIfNeeded()
		if cb.dailyFailures.Load() >= maxDaily {
			cb.halted.Store(true)
			return ErrCircuitBreakerOpen
		}
	}

	return nil
}

// OnOrderSuccess 在一次下单成功后调用，清空连续失败计数。
func (cb *CircuitBreaker) OnOrderSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Store(0)
}

// OnOrderFailure 在一次下单失败后调用，累计连续与当日失败计数。
func (cb *CircuitBreaker) OnOrderFailure() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Add(1)
	cb.rollDayIfNeeded()
	cb.dailyFailures.Add(1)
}

func (cb *CircuitBreaker) rollDayIfNeeded() {
	// YYYYMMDD（本地时间即可；风控用途不要求跨时区精确）
	now := time.Now()
	key := int64(now.Year()*10000 + int(now.Month())*100 + now.Day())
	prev := cb.dayKey.Load()
	if prev == key {
		return
	}
	// 尝试切换 dayKey；成功者负责清零当日失败计数
	if cb.dayKey.CompareAndSwap(prev, key) {
		cb.dailyFailures.Store(0)
	}
}
