package types

import "encoding/json"

// /info 查询的响应类型。数值字段在 wire 上都是字符串，解析由调用方负责。

// AssetMeta 资产元信息
type AssetMeta struct {
	Name       string `json:"name"`
	SzDecimals int    `json:"szDecimals"`
	MaxLeverage int   `json:"maxLeverage"`
}

// Meta 交易所 universe 元信息
type Meta struct {
	Universe []AssetMeta `json:"universe"`
}

// Candle K 线
type Candle struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Trades    int    `json:"n"`
}

// FundingEntry 资金费率历史记录
type FundingEntry struct {
	Symbol      string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Premium     string `json:"premium"`
	Time        int64  `json:"time"`
}

// Leverage 仓位杠杆信息
type Leverage struct {
	Type  string  `json:"type"` // "cross" | "isolated"
	Value int     `json:"value"`
}

// RawPosition 交易所返回的单个仓位
type RawPosition struct {
	Coin           string   `json:"coin"`
	Szi            string   `json:"szi"` // 有符号数量，负数为空头
	EntryPx        *string  `json:"entryPx"`
	PositionValue  string   `json:"positionValue"`
	UnrealizedPnl  string   `json:"unrealizedPnl"`
	LiquidationPx  *string  `json:"liquidationPx"`
	MarginUsed     string   `json:"marginUsed"`
	Leverage       Leverage `json:"leverage"`
	ReturnOnEquity string   `json:"returnOnEquity"`
}

// AssetPosition clearinghouseState 里的仓位包装
type AssetPosition struct {
	Type     string      `json:"type"` // "oneWay"
	Position RawPosition `json:"position"`
}

// MarginSummary 账户保证金汇总
type MarginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUsd     string `json:"totalRawUsd"`
	TotalMarginUsed string `json:"totalMarginUsed"`
}

// ClearinghouseState 账户状态快照（仓位 + 保证金）
type ClearinghouseState struct {
	AssetPositions []AssetPosition `json:"assetPositions"`
	MarginSummary  MarginSummary   `json:"marginSummary"`
	Withdrawable   string          `json:"withdrawable"`
	Time           int64           `json:"time"`
}

// RestingStatus 挂单回执
type RestingStatus struct {
	Oid uint64 `json:"oid"`
}

// FilledStatus 成交回执
type FilledStatus struct {
	Oid     uint64 `json:"oid"`
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
}

// OrderStatus 单个订单的处理结果，对象时三个变体只会出现一个；
// 撤单等接口也可能返回裸字符串（如 "success"），放在 Raw 里。
type OrderStatus struct {
	Resting *RestingStatus `json:"resting,omitempty"`
	Filled  *FilledStatus  `json:"filled,omitempty"`
	Error   string         `json:"error,omitempty"`
	Raw     string         `json:"-"`
}

// UnmarshalJSON 兼容对象和裸字符串两种形状
func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &s.Raw)
	}
	type alias OrderStatus
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*s = OrderStatus(a)
	return nil
}

// ExchangeResponseData 变更型请求响应体内层
type ExchangeResponseData struct {
	Statuses []OrderStatus `json:"statuses"`
}

// ExchangeResponseInner 变更型请求响应体
type ExchangeResponseInner struct {
	Type string               `json:"type"`
	Data ExchangeResponseData `json:"data"`
}

// ExchangeResponse 变更型请求的顶层响应。
// status == "ok" 时 response 是结构体；被拒绝时 response 是一段错误文本，
// 所以这里保留原始字节由客户端二次解析。
type ExchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Inner 解析受理成功时的响应体
func (r *ExchangeResponse) Inner() (*ExchangeResponseInner, error) {
	var inner ExchangeResponseInner
	if err := json.Unmarshal(r.Response, &inner); err != nil {
		return nil, err
	}
	return &inner, nil
}

// ErrorText 解析被拒绝时的错误文本（原样返回交易所的措辞）
func (r *ExchangeResponse) ErrorText() string {
	var s string
	if err := json.Unmarshal(r.Response, &s); err == nil && s != "" {
		return s
	}
	return string(r.Response)
}
