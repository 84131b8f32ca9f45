package client

import (
	"context"
	"fmt"
)

// AssetInfo 本地缓存的资产元信息
type AssetInfo struct {
	Index       int
	SzDecimals  int
	MaxLeverage int
}

// AssetMap symbol → 资产元信息。启动时加载一次，之后只读。
// 引用未映射的 symbol 是硬错误，绝不猜测索引。
type AssetMap struct {
	assets map[string]AssetInfo
}

// LoadAssetMap 从交易所 meta 构建资产映射
func LoadAssetMap(ctx context.Context, info *InfoClient) (*AssetMap, error) {
	meta, err := info.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载资产元信息失败: %w", err)
	}
	if len(meta.Universe) == 0 {
		return nil, fmt.Errorf("交易所 universe 为空")
	}

	assets := make(map[string]AssetInfo, len(meta.Universe))
	for i, a := range meta.Universe {
		assets[a.Name] = AssetInfo{
			Index:       i,
			SzDecimals:  a.SzDecimals,
			MaxLeverage: a.MaxLeverage,
		}
	}
	return &AssetMap{assets: assets}, nil
}

// Lookup 查找 symbol 的资产信息
func (m *AssetMap) Lookup(symbol string) (AssetInfo, error) {
	a, ok := m.assets[symbol]
	if !ok {
		return AssetInfo{}, &ValidationError{Op: "asset lookup", Reason: "unmapped symbol " + symbol}
	}
	return a, nil
}

// Has 检查 symbol 是否在映射里
func (m *AssetMap) Has(symbol string) bool {
	_, ok := m.assets[symbol]
	return ok
}

// Symbols 返回全部已映射 symbol
func (m *AssetMap) Symbols() []string {
	out := make([]string, 0, len(m.assets))
	for sym := range m.assets {
		out = append(out, sym)
	}
	return out
}
