package cache

import (
	"sync"
	"time"
)

// InMemoryCache 内存缓存实现
type InMemoryCache[K comparable, V any] struct {
	items      map[K]*cacheItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
}

// cacheItem 缓存项
type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache 创建新的内存缓存
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	cache := &InMemoryCache[K, V]{
		items:      make(map[K]*cacheItem[V]),
		defaultTTL: defaultTTL,
	}

	go cache.startCleanup()

	return cache
}

// Get 获取缓存值
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set 设置缓存值
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.items[key] = &cacheItem[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete 删除缓存项
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// startCleanup 定期清理过期项
func (c *InMemoryCache[K, V]) startCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *InMemoryCache[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// MidCache 中间价缓存。行情 tick 内允许短暂复用 mid，
// 避免同一轮聚合里对 /info 的重复请求。
type MidCache struct {
	cache *InMemoryCache[string, float64]
	ttl   time.Duration
}

// NewMidCache 创建中间价缓存
func NewMidCache(ttl time.Duration) *MidCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &MidCache{
		cache: NewInMemoryCache[string, float64](ttl),
		ttl:   ttl,
	}
}

// Get 获取某个币种的中间价
func (mc *MidCache) Get(symbol string) (float64, bool) {
	return mc.cache.Get(symbol)
}

// Set 设置某个币种的中间价
func (mc *MidCache) Set(symbol string, mid float64) {
	mc.cache.Set(symbol, mid, mc.ttl)
}

// SetAll 批量写入一次 mids 查询的结果
func (mc *MidCache) SetAll(mids map[string]float64) {
	for sym, mid := range mids {
		mc.cache.Set(sym, mid, mc.ttl)
	}
}

// Invalidate 主动失效（成交后强制取新价）
func (mc *MidCache) Invalidate(symbol string) {
	mc.cache.Delete(symbol)
}
