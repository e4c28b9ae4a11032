package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"quantbt/internal/market"
)

// MeanReversionZScore 均值回归策略：价格偏离滚动均值超过 threshold 个
// 标准差时反向开仓（超买做空、超卖做多），否则空仓。
type MeanReversionZScore struct {
	window    int
	threshold float64
}

// NewMeanReversionZScore 构造均值回归策略。window 必须 >= 2（单点窗口
// 标准差恒为 0），threshold 必须为正。
func NewMeanReversionZScore(window int, threshold float64) (*MeanReversionZScore, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: z-score 窗口必须 >= 2 (window=%d)", ErrInvalidParameter, window)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: z-score 阈值必须为正 (threshold=%.4f)", ErrInvalidParameter, threshold)
	}
	return &MeanReversionZScore{window: window, threshold: threshold}, nil
}

func (s *MeanReversionZScore) Name() string {
	return fmt.Sprintf("mean_reversion_%d_%.1f", s.window, s.threshold)
}

func (s *MeanReversionZScore) GenerateSignals(series *market.Series) ([]float64, error) {
	n := series.Len()
	signals := make([]float64, n)
	if n < s.window {
		return signals, nil
	}
	closes := series.Prices()
	mean := talib.Sma(closes, s.window)
	std := talib.StdDev(closes, s.window, 1.0)
	for t := s.window - 1; t < n; t++ {
		if std[t] == 0 {
			// 窗口内价格恒定，z-score 无定义，保持空仓。
			continue
		}
		z := (closes[t] - mean[t]) / std[t]
		switch {
		case z > s.threshold:
			signals[t] = Short
		case z < -s.threshold:
			signals[t] = Long
		}
	}
	return signals, nil
}
