package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

var decimalEps = decimal.NewFromFloat(1e-12)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

// positionChanged 判断两个仓位权重是否不同。策略可能输出浮点分数仓位，
// 这里用 decimal 比较避免二进制噪声触发虚假换手。
func positionChanged(a, b float64) bool {
	return decFromFloat(a).Sub(decFromFloat(b)).Abs().Cmp(decimalEps) > 0
}

// signOf 返回仓位方向：+1 多、-1 空、0 平。
func signOf(weight float64) int {
	d := decFromFloat(weight)
	switch {
	case d.Cmp(decimalEps) > 0:
		return 1
	case d.Cmp(decimalEps.Neg()) < 0:
		return -1
	default:
		return 0
	}
}
