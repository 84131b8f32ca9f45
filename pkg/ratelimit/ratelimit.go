package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Class 逻辑端点类别。读接口和交易接口各自有独立的限速窗口。
type Class string

const (
	// ClassInfo 只读接口（mids/candles/funding/账户快照）
	ClassInfo Class = "info"
	// ClassExchange 交易接口（下单/撤单/调杠杆）
	ClassExchange Class = "exchange"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
	GetResetTime() time.Time
}

// TokenBucket 令牌桶速率限制器
type TokenBucket struct {
	capacity   int           // 桶容量
	tokens     int           // 当前令牌数
	refillRate int           // 每秒补充的令牌数
	windowSize time.Duration // 时间窗口大小
	lastRefill time.Time     // 上次补充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶
func NewTokenBucket(capacity, refillRate int, windowSize time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		windowSize: windowSize,
		lastRefill: time.Now(),
	}
}

// refill 补充令牌
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}
}

// Allow 检查是否允许请求
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到允许请求
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		tb.refill()
		waitTime := time.Duration(0)
		if tb.tokens == 0 && tb.refillRate > 0 {
			waitTime = time.Second / time.Duration(tb.refillRate)
		}
		tb.mu.Unlock()

		if waitTime <= 0 {
			waitTime = tb.windowSize
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// GetResetTime 获取重置时间
func (tb *TokenBucket) GetResetTime() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens < tb.capacity && tb.refillRate > 0 {
		needed := tb.capacity - tb.tokens
		seconds := float64(needed) / float64(tb.refillRate)
		return time.Now().Add(time.Duration(seconds * float64(time.Second)))
	}
	return time.Now()
}

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int           // 限制数量
	windowSize time.Duration // 窗口大小
	requests   []time.Time   // 请求时间戳
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		requests:   make([]time.Time, 0),
	}
}

// Allow 检查是否允许请求
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-sw.windowSize)

	valid := sw.requests[:0]
	for _, req := range sw.requests {
		if req.After(cutoff) {
			valid = append(valid, req)
		}
	}
	sw.requests = valid

	if len(sw.requests) >= sw.limit {
		return false
	}

	sw.requests = append(sw.requests, now)
	return true
}

// Wait 等待直到允许请求
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		oldest := time.Now()
		if len(sw.requests) > 0 {
			oldest = sw.requests[0]
		}
		waitTime := sw.windowSize - time.Since(oldest)
		sw.mu.Unlock()

		if waitTime <= 0 {
			waitTime = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-sw.windowSize)

	validCount := 0
	for _, req := range sw.requests {
		if req.After(cutoff) {
			validCount++
		}
	}

	return max(0, sw.limit-validCount)
}

// GetResetTime 获取重置时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if len(sw.requests) == 0 {
		return time.Now()
	}
	return sw.requests[0].Add(sw.windowSize)
}

// Manager 按端点类别管理速率限制器。
// 所有出站请求先在自己类别的限速器上拿到名额才能发出。
type Manager struct {
	limiters map[Class]RateLimiter
	mu       sync.RWMutex
}

// NewManager 创建速率限制管理器（带默认类别配置）
func NewManager() *Manager {
	m := &Manager{limiters: make(map[Class]RateLimiter)}

	// 只读接口：1200 权重/分钟，用令牌桶平滑
	m.limiters[ClassInfo] = NewTokenBucket(1200, 20, time.Minute)
	// 交易接口：更保守的滑动窗口，一分钟内最多 600 次变更请求
	m.limiters[ClassExchange] = NewSlidingWindow(600, time.Minute)

	return m
}

// SetLimiter 覆盖某个类别的限速器
func (m *Manager) SetLimiter(class Class, limiter RateLimiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[class] = limiter
}

// GetLimiter 获取指定类别的速率限制器
func (m *Manager) GetLimiter(class Class) RateLimiter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limiter, exists := m.limiters[class]; exists {
		return limiter
	}
	// 未知类别给一个宽松的默认限制
	return NewSlidingWindow(5000, 10*time.Second)
}

// Wait 等待直到允许请求
func (m *Manager) Wait(ctx context.Context, class Class) error {
	return m.GetLimiter(class).Wait(ctx)
}

// Allow 检查是否允许请求
func (m *Manager) Allow(class Class) bool {
	return m.GetLimiter(class).Allow()
}

// GetRemaining 获取剩余请求数
func (m *Manager) GetRemaining(class Class) int {
	return m.GetLimiter(class).GetRemaining()
}
