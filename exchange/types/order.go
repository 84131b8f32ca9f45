package types

// 线上动作（action）的 wire 形状。字段声明顺序就是序列化时的插入顺序，
// 交易所会对同一字节流重新哈希，顺序错一个字段签名即失效。

// Tif 限价单的 time-in-force
type Tif string

const (
	TifIoc Tif = "Ioc" // 立即成交否则取消（市价单的实现方式）
	TifGtc Tif = "Gtc"
	TifAlo Tif = "Alo"
)

// Grouping 订单分组方式，当前只用 "na"
const GroupingNA = "na"

// LimitOrderType 限价类型参数
type LimitOrderType struct {
	Tif Tif `msgpack:"tif" json:"tif"`
}

// OrderTypeWire 订单类型的 wire 表示（只会出现一个变体）
type OrderTypeWire struct {
	Limit *LimitOrderType `msgpack:"limit,omitempty" json:"limit,omitempty"`
}

// OrderWire 单个订单的 wire 表示
type OrderWire struct {
	Asset      int           `msgpack:"a" json:"a"` // 资产索引
	IsBuy      bool          `msgpack:"b" json:"b"`
	Price      string        `msgpack:"p" json:"p"` // 规范化后的价格字符串
	Size       string        `msgpack:"s" json:"s"` // 规范化后的数量字符串
	ReduceOnly bool          `msgpack:"r" json:"r"`
	OrderType  OrderTypeWire `msgpack:"t" json:"t"`
}

// OrderAction 下单动作
type OrderAction struct {
	Type     string      `msgpack:"type" json:"type"` // "order"
	Orders   []OrderWire `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

// NewOrderAction 构造单订单动作
func NewOrderAction(order OrderWire) OrderAction {
	return OrderAction{
		Type:     "order",
		Orders:   []OrderWire{order},
		Grouping: GroupingNA,
	}
}

// CancelWire 单个撤单的 wire 表示
type CancelWire struct {
	Asset   int    `msgpack:"a" json:"a"`
	OrderID uint64 `msgpack:"o" json:"o"`
}

// CancelAction 撤单动作
type CancelAction struct {
	Type    string       `msgpack:"type" json:"type"` // "cancel"
	Cancels []CancelWire `msgpack:"cancels" json:"cancels"`
}

// NewCancelAction 构造单撤单动作
func NewCancelAction(asset int, orderID uint64) CancelAction {
	return CancelAction{
		Type:    "cancel",
		Cancels: []CancelWire{{Asset: asset, OrderID: orderID}},
	}
}

// UpdateLeverageAction 调整杠杆动作
type UpdateLeverageAction struct {
	Type     string `msgpack:"type" json:"type"` // "updateLeverage"
	Asset    int    `msgpack:"asset" json:"asset"`
	IsCross  bool   `msgpack:"isCross" json:"isCross"`
	Leverage int    `msgpack:"leverage" json:"leverage"`
}

// NewUpdateLeverageAction 构造调杠杆动作
func NewUpdateLeverageAction(asset, leverage int, isCross bool) UpdateLeverageAction {
	return UpdateLeverageAction{
		Type:     "updateLeverage",
		Asset:    asset,
		IsCross:  isCross,
		Leverage: leverage,
	}
}

// Signature 65 字节 ECDSA 签名拆分出的 (r, s, v)
type Signature struct {
	R string `json:"r"` // 0x 前缀十六进制
	S string `json:"s"`
	V uint8  `json:"v"`
}

// ExchangeRequest 变更型请求的统一信封
type ExchangeRequest struct {
	Action       interface{} `json:"action"`
	Nonce        uint64      `json:"nonce"`
	Signature    Signature   `json:"signature"`
	VaultAddress *string     `json:"vaultAddress,omitempty"`
}
