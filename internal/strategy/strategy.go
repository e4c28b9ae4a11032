package strategy

import (
	"errors"

	"quantbt/internal/market"
)

// 信号取值约定：+1 做多、0 空仓、-1 做空。
// 策略也可以输出 [-1,1] 内的分数仓位，模拟器按幅度计费。
const (
	Long  = 1.0
	Flat  = 0.0
	Short = -1.0
)

// ErrInvalidParameter 表示策略参数在构造期校验失败（如 fast >= slow）。
// 参数错误立即返回，绝不静默修正。
var ErrInvalidParameter = errors.New("invalid strategy parameter")

// Strategy 将价格历史映射为信号序列。实现必须满足：
//   - 输出与输入序列等长、一一对齐；
//   - 第 t 个信号只依赖 t 及之前的价格（无未来函数）；
//   - 历史不足以定义的前缀输出 Flat，而不是留空。
type Strategy interface {
	Name() string
	GenerateSignals(series *market.Series) ([]float64, error)
}
