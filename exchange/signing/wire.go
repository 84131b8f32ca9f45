package signing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeWireFloat 把字符串数值规范化成交易所接受的 wire 形式：
// 最多保留 8 位小数（四舍五入），去掉尾随零，0 与 -0 统一写成 "0"。
// 对已规范化的输入是幂等的。
func NormalizeWireFloat(s string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid wire float %q: %w", s, err)
	}

	d = d.Round(8)
	if d.IsZero() {
		return "0", nil
	}

	out := d.String()
	if strings.Contains(out, ".") {
		out = strings.TrimRight(out, "0")
		out = strings.TrimRight(out, ".")
	}
	// 四舍五入后整数部分仍可能带负号的零（如 "-0.000000004"）
	if out == "-0" || out == "" {
		out = "0"
	}
	return out, nil
}

// FormatWireFloat 把 float64 渲染成规范化的 wire 字符串
func FormatWireFloat(f float64) (string, error) {
	return NormalizeWireFloat(decimal.NewFromFloat(f).String())
}
