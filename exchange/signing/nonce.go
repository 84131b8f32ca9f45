package signing

import (
	"sync"
	"time"
)

// NonceSource 生成严格递增的 nonce（毫秒时间戳，碰撞时 +1）。
// 同一账户的并发签名必须共用一个实例，否则交易所会拒掉乱序 nonce。
type NonceSource struct {
	mu   sync.Mutex
	last uint64
}

// NewNonceSource 创建 nonce 源
func NewNonceSource() *NonceSource {
	return &NonceSource{}
}

// Next 返回下一个 nonce
func (n *NonceSource) Next() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := uint64(time.Now().UnixMilli())
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms
	return ms
}
