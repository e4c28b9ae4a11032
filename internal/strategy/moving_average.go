package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"quantbt/internal/market"
)

// MovingAverageCrossover 双均线策略：快线在慢线上方做多，否则做空。
// 前 slow-1 个点均线未定义，信号为 Flat。
type MovingAverageCrossover struct {
	fast int
	slow int
}

// NewMovingAverageCrossover 构造双均线策略。要求 0 < fast < slow。
func NewMovingAverageCrossover(fast, slow int) (*MovingAverageCrossover, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("%w: 均线窗口必须为正 (fast=%d slow=%d)", ErrInvalidParameter, fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast 必须小于 slow (fast=%d slow=%d)", ErrInvalidParameter, fast, slow)
	}
	return &MovingAverageCrossover{fast: fast, slow: slow}, nil
}

func (s *MovingAverageCrossover) Name() string {
	return fmt.Sprintf("ma_crossover_%d_%d", s.fast, s.slow)
}

func (s *MovingAverageCrossover) GenerateSignals(series *market.Series) ([]float64, error) {
	n := series.Len()
	signals := make([]float64, n)
	if n < s.slow {
		// 历史不足，整段 Flat。
		return signals, nil
	}
	closes := series.Prices()
	maFast := talib.Sma(closes, s.fast)
	maSlow := talib.Sma(closes, s.slow)
	for t := s.slow - 1; t < n; t++ {
		if maFast[t] > maSlow[t] {
			signals[t] = Long
		} else {
			signals[t] = Short
		}
	}
	return signals, nil
}
