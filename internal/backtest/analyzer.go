package backtest

import (
	"fmt"
	"math"
)

// Analyzer 从完整的资金曲线与交易列表计算绩效指标。
// 纯函数：相同输入得到逐位一致的输出。退化情形（零方差、零回撤、
// 无亏损交易）一律回退为 0，绝不向调用方泄漏 NaN/Inf。
type Analyzer struct {
	periodsPerYear float64
}

// NewAnalyzer 构造分析器。periodsPerYear 是年化因子（日线通常 252）。
func NewAnalyzer(periodsPerYear int) (*Analyzer, error) {
	if periodsPerYear <= 0 {
		return nil, fmt.Errorf("%w: 年化周期数必须为正 (%d)", ErrInvalidParameter, periodsPerYear)
	}
	return &Analyzer{periodsPerYear: float64(periodsPerYear)}, nil
}

// Compute 计算指标集。buyHold 为同期满仓基准曲线，可为空。
func (a *Analyzer) Compute(equity []EquityPoint, trades []Trade, buyHold []EquityPoint) Metrics {
	var m Metrics
	if len(equity) == 0 || equity[0].Value <= 0 {
		return m
	}
	first := equity[0].Value
	last := equity[len(equity)-1].Value
	m.TotalReturn = last/first - 1

	periods := float64(len(equity) - 1)
	if periods > 0 && last > 0 {
		m.CAGR = math.Pow(last/first, a.periodsPerYear/periods) - 1
	}

	returns := periodReturns(equity)
	mean, std := meanStd(returns)
	m.Volatility = std * math.Sqrt(a.periodsPerYear)
	if std > 0 {
		m.Sharpe = mean / std * math.Sqrt(a.periodsPerYear)
	}

	m.MaxDrawdown = maxDrawdown(equity)
	if m.MaxDrawdown != 0 {
		m.Calmar = m.CAGR / math.Abs(m.MaxDrawdown)
	}

	m.TotalTrades = len(trades)
	var wins, losses int
	var winSum, lossSum float64
	for _, tr := range trades {
		switch {
		case tr.PnL > 0:
			wins++
			winSum += tr.PnL
		case tr.PnL < 0:
			losses++
			lossSum += tr.PnL
		}
	}
	if len(trades) > 0 {
		m.WinRate = float64(wins) / float64(len(trades))
	}
	if wins > 0 {
		m.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = lossSum / float64(losses)
		m.WinLossRatio = math.Abs(m.AvgWin / m.AvgLoss)
	}

	if len(buyHold) > 0 && buyHold[0].Value > 0 {
		m.BuyHoldReturn = buyHold[len(buyHold)-1].Value/buyHold[0].Value - 1
		m.Outperformance = m.TotalReturn - m.BuyHoldReturn
	}
	return m
}

func periodReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1].Value == 0 {
			continue
		}
		out[i-1] = equity[i].Value/equity[i-1].Value - 1
	}
	return out
}

// meanStd 返回均值与样本标准差（n-1），不足两个样本时标准差为 0。
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}

// maxDrawdown 返回相对运行峰值的最大回撤，恒 <= 0。
func maxDrawdown(equity []EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		if peak <= 0 {
			continue
		}
		dd := p.Value/peak - 1
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
