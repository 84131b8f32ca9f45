package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/perpbot/goperp/exchange/signing"
	"github.com/perpbot/goperp/exchange/types"
	"github.com/perpbot/goperp/pkg/keyring"
	"github.com/perpbot/goperp/pkg/ratelimit"
)

var exchangeLog = logrus.WithField("component", "exchange_client")

// OrderFill 一次市价单的成交结果
type OrderFill struct {
	OrderID uint64
	Size    float64
	AvgPx   float64
}

// ExchangeClient 变更型调用客户端：下单/撤单/调杠杆。
// 每个请求独立签名；任何失败都立即上抛，绝不自动重试（可能重复成交）。
type ExchangeClient struct {
	rc       *resty.Client
	limiter  *ratelimit.Manager
	signer   *keyring.Signer
	nonces   *signing.NonceSource
	assets   *AssetMap
	mainnet  bool
	vault    string
	slippage float64
}

// NewExchangeClient 创建交易客户端。vaultAddress 可为空。
func NewExchangeClient(
	host string,
	limiter *ratelimit.Manager,
	signer *keyring.Signer,
	assets *AssetMap,
	mainnet bool,
	vaultAddress string,
	slippagePct float64,
) *ExchangeClient {
	return &ExchangeClient{
		rc:       newMutateClient(host),
		limiter:  limiter,
		signer:   signer,
		nonces:   signing.NewNonceSource(),
		assets:   assets,
		mainnet:  mainnet,
		vault:    strings.ToLower(strings.TrimSpace(vaultAddress)),
		slippage: slippagePct,
	}
}

// Address 返回签名账户地址（小写）
func (c *ExchangeClient) Address() string {
	return c.signer.Address
}

// PlaceMarketOrder 下市价单（IoC 限价单 + 有界滑点）。
// mid 由调用方提供，保证定价与仓位计算用的是同一个价。
func (c *ExchangeClient) PlaceMarketOrder(
	ctx context.Context,
	symbol string,
	isBuy bool,
	size float64,
	mid float64,
	reduceOnly bool,
) (*OrderFill, error) {
	asset, err := c.assets.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, &ValidationError{Op: "place order", Reason: fmt.Sprintf("invalid size %v", size)}
	}
	if mid <= 0 {
		return nil, &ValidationError{Op: "place order", Reason: fmt.Sprintf("invalid mid %v", mid)}
	}

	px, err := SlippagePrice(mid, isBuy, c.slippage, asset.SzDecimals)
	if err != nil {
		return nil, err
	}
	sz, err := FloorSize(size, asset.SzDecimals)
	if err != nil {
		return nil, err
	}
	if sz == "0" {
		return nil, &ValidationError{Op: "place order", Reason: fmt.Sprintf("size %v floors to 0 at %d decimals", size, asset.SzDecimals)}
	}

	action := types.NewOrderAction(types.OrderWire{
		Asset:      asset.Index,
		IsBuy:      isBuy,
		Price:      px,
		Size:       sz,
		ReduceOnly: reduceOnly,
		OrderType: types.OrderTypeWire{
			Limit: &types.LimitOrderType{Tif: types.TifIoc},
		},
	})

	resp, err := c.post(ctx, "place order", action)
	if err != nil {
		return nil, err
	}

	status, err := firstStatus(resp, "place order")
	if err != nil {
		return nil, err
	}
	if status.Error != "" {
		return nil, &ExchangeRejected{Op: "place order", Reason: status.Error}
	}
	if status.Filled == nil {
		// IoC 没吃到任何量也算被拒（不会留挂单）
		return nil, &ExchangeRejected{Op: "place order", Reason: "ioc order not filled"}
	}

	filledSz, _ := ParseWireFloat(status.Filled.TotalSz)
	avgPx, _ := ParseWireFloat(status.Filled.AvgPx)

	exchangeLog.Infof("市价单成交: %s %s sz=%s avgPx=%s oid=%d",
		symbol, side(isBuy), status.Filled.TotalSz, status.Filled.AvgPx, status.Filled.Oid)

	return &OrderFill{
		OrderID: status.Filled.Oid,
		Size:    filledSz,
		AvgPx:   avgPx,
	}, nil
}

// CancelOrder 撤单
func (c *ExchangeClient) CancelOrder(ctx context.Context, symbol string, orderID uint64) error {
	asset, err := c.assets.Lookup(symbol)
	if err != nil {
		return err
	}

	action := types.NewCancelAction(asset.Index, orderID)
	resp, err := c.post(ctx, "cancel order", action)
	if err != nil {
		return err
	}

	status, err := firstStatus(resp, "cancel order")
	if err != nil {
		return err
	}
	if status.Error != "" {
		return &ExchangeRejected{Op: "cancel order", Reason: status.Error}
	}
	return nil
}

// UpdateLeverage 调整某个资产的杠杆
func (c *ExchangeClient) UpdateLeverage(ctx context.Context, symbol string, leverage int, isCross bool) error {
	asset, err := c.assets.Lookup(symbol)
	if err != nil {
		return err
	}
	if leverage < 1 {
		return &ValidationError{Op: "update leverage", Reason: fmt.Sprintf("invalid leverage %d", leverage)}
	}

	action := types.NewUpdateLeverageAction(asset.Index, leverage, isCross)
	_, err = c.post(ctx, "update leverage", action)
	return err
}

// ClosePosition 用 reduce-only 市价单平仓。size 为当前持仓绝对数量，
// isLong 表示被平的仓位方向（平多发卖单，平空发买单）。
func (c *ExchangeClient) ClosePosition(
	ctx context.Context,
	symbol string,
	isLong bool,
	size float64,
	mid float64,
) (*OrderFill, error) {
	return c.PlaceMarketOrder(ctx, symbol, !isLong, size, mid, true)
}

// post 签名并发送一个动作。签名与发送之间不再有别的动作插队
// （nonce 由 NonceSource 保证递增）。
func (c *ExchangeClient) post(ctx context.Context, op string, action interface{}) (*types.ExchangeResponse, error) {
	nonce := c.nonces.Next()

	sig, err := signing.SignL1Action(c.signer.PrivateKey, action, c.vault, nonce, c.mainnet)
	if err != nil {
		return nil, &ValidationError{Op: op, Reason: "sign: " + err.Error()}
	}

	req := types.ExchangeRequest{
		Action:    action,
		Nonce:     nonce,
		Signature: sig,
	}
	if c.vault != "" {
		v := c.vault
		req.VaultAddress = &v
	}

	var resp types.ExchangeResponse
	if err := postJSON(ctx, c.rc, c.limiter, ratelimit.ClassExchange, exchangePath, op, req, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "ok" {
		return nil, &ExchangeRejected{Op: op, Reason: resp.ErrorText()}
	}
	return &resp, nil
}

func firstStatus(resp *types.ExchangeResponse, op string) (*types.OrderStatus, error) {
	inner, err := resp.Inner()
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("decode response body: %w", err)}
	}
	if len(inner.Data.Statuses) == 0 {
		return nil, &ExchangeRejected{Op: op, Reason: "empty statuses in response"}
	}
	return &inner.Data.Statuses[0], nil
}

func side(isBuy bool) string {
	if isBuy {
		return "buy"
	}
	return "sell"
}
