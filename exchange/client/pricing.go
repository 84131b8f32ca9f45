package client

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/perpbot/goperp/exchange/signing"
)

// 市价单定价：在 mid 上加有界滑点逼出立即成交，再取整到交易所接受的
// tick 网格（5 位有效数字，小数位不超过 6-szDecimals）。

// SlippagePrice 计算带滑点的市价单价格（已规范化的 wire 字符串）
func SlippagePrice(mid float64, isBuy bool, slippagePct float64, szDecimals int) (string, error) {
	px := mid
	if isBuy {
		px = mid * (1 + slippagePct)
	} else {
		px = mid * (1 - slippagePct)
	}
	return RoundPrice(px, szDecimals)
}

// RoundPrice 价格取整：5 位有效数字 + 最多 6-szDecimals 位小数
func RoundPrice(px float64, szDecimals int) (string, error) {
	// 先压到 5 位有效数字
	sig5, err := decimal.NewFromString(strconv.FormatFloat(px, 'g', 5, 64))
	if err != nil {
		return "", &ValidationError{Op: "round price", Reason: err.Error()}
	}

	maxDecimals := int32(6 - szDecimals)
	if maxDecimals < 0 {
		maxDecimals = 0
	}
	rounded := sig5.Round(maxDecimals)

	return signing.NormalizeWireFloat(rounded.String())
}

// FloorSize 数量向下取整到资产的 szDecimals。
// 向下而不是四舍五入：避免多占保证金。
func FloorSize(size float64, szDecimals int) (string, error) {
	if size < 0 {
		return "", &ValidationError{Op: "floor size", Reason: "negative size"}
	}
	floored := decimal.NewFromFloat(size).RoundDown(int32(szDecimals))
	return signing.NormalizeWireFloat(floored.String())
}

// ParseWireFloat 解析交易所返回的字符串数值
func ParseWireFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
