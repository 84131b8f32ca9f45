package client

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/perpbot/goperp/exchange/types"
	"github.com/perpbot/goperp/pkg/cache"
	"github.com/perpbot/goperp/pkg/ratelimit"
)

var infoLog = logrus.WithField("component", "info_client")

// InfoClient 只读查询客户端。幂等调用，网络错误/超时/5xx/429 自动重试。
type InfoClient struct {
	rc       *resty.Client
	limiter  *ratelimit.Manager
	midCache *cache.MidCache
}

// NewInfoClient 创建只读客户端
func NewInfoClient(host string, limiter *ratelimit.Manager) *InfoClient {
	return &InfoClient{
		rc:       newReadClient(host),
		limiter:  limiter,
		midCache: cache.NewMidCache(2 * time.Second),
	}
}

// Meta 获取交易所 universe 元信息
func (c *InfoClient) Meta(ctx context.Context) (*types.Meta, error) {
	var meta types.Meta
	body := map[string]interface{}{"type": "meta"}
	if err := postJSON(ctx, c.rc, c.limiter, ratelimit.ClassInfo, infoPath, "meta", body, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// AllMids 获取全部标的的中间价
func (c *InfoClient) AllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]string
	body := map[string]interface{}{"type": "allMids"}
	if err := postJSON(ctx, c.rc, c.limiter, ratelimit.ClassInfo, infoPath, "allMids", body, &raw); err != nil {
		return nil, err
	}

	mids := make(map[string]float64, len(raw))
	for sym, s := range raw {
		mid, err := strconv.ParseFloat(s, 64)
		if err != nil {
			infoLog.Warnf("跳过无法解析的 mid: %s=%q", sym, s)
			continue
		}
		mids[sym] = mid
	}
	c.midCache.SetAll(mids)
	return mids, nil
}

// Mid 获取单个标的中间价（短 TTL 缓存，避免同一 tick 内重复拉全量）
func (c *InfoClient) Mid(ctx context.Context, symbol string) (float64, error) {
	if mid, ok := c.midCache.Get(symbol); ok {
		return mid, nil
	}

	mids, err := c.AllMids(ctx)
	if err != nil {
		return 0, err
	}
	mid, ok := mids[symbol]
	if !ok {
		return 0, &ValidationError{Op: "mid", Reason: "unknown symbol " + symbol}
	}
	return mid, nil
}

// InvalidateMid 主动失效某个标的的 mid 缓存（成交后取新价用）
func (c *InfoClient) InvalidateMid(symbol string) {
	c.midCache.Invalidate(symbol)
}

// Candles 获取 K 线快照
func (c *InfoClient) Candles(ctx context.Context, symbol, interval string, startTime, endTime int64) ([]types.Candle, error) {
	var out []types.Candle
	body := map[string]interface{}{
		"type": "candleSnapshot",
		"req": map[string]interface{}{
			"coin":      symbol,
			"interval":  interval,
			"startTime": startTime,
			"endTime":   endTime,
		},
	}
	if err := postJSON(ctx, c.rc, c.limiter, ratelimit.ClassInfo, infoPath, "candleSnapshot", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FundingHistory 获取资金费率历史
func (c *InfoClient) FundingHistory(ctx context.Context, symbol string, startTime int64) ([]types.FundingEntry, error) {
	var out []types.FundingEntry
	body := map[string]interface{}{
		"type":      "fundingHistory",
		"coin":      symbol,
		"startTime": startTime,
	}
	if err := postJSON(ctx, c.rc, c.limiter, ratelimit.ClassInfo, infoPath, "fundingHistory", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearinghouseState 获取账户状态快照（仓位、保证金、权益）
func (c *InfoClient) ClearinghouseState(ctx context.Context, user string) (*types.ClearinghouseState, error) {
	var out types.ClearinghouseState
	body := map[string]interface{}{
		"type": "clearinghouseState",
		"user": user,
	}
	if err := postJSON(ctx, c.rc, c.limiter, ratelimit.ClassInfo, infoPath, "clearinghouseState", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
