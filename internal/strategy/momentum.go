package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"quantbt/internal/market"
)

// Momentum 动量策略：lookback 周期内价格上涨做多，否则做空。
// 前 lookback 个点动量未定义，信号为 Flat。
type Momentum struct {
	lookback int
}

// NewMomentum 构造动量策略。lookback 必须为正。
func NewMomentum(lookback int) (*Momentum, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("%w: 动量回看周期必须为正 (lookback=%d)", ErrInvalidParameter, lookback)
	}
	return &Momentum{lookback: lookback}, nil
}

func (s *Momentum) Name() string {
	return fmt.Sprintf("momentum_%d", s.lookback)
}

func (s *Momentum) GenerateSignals(series *market.Series) ([]float64, error) {
	n := series.Len()
	signals := make([]float64, n)
	if n <= s.lookback {
		return signals, nil
	}
	roc := talib.Roc(series.Prices(), s.lookback)
	for t := s.lookback; t < n; t++ {
		if roc[t] > 0 {
			signals[t] = Long
		} else {
			signals[t] = Short
		}
	}
	return signals, nil
}
