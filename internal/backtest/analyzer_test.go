package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func equityOf(values ...float64) []EquityPoint {
	out := make([]EquityPoint, len(values))
	for i, v := range values {
		out[i] = EquityPoint{TS: int64(i+1) * 1000, Value: v}
	}
	return out
}

func TestNewAnalyzerRejectsBadPeriods(t *testing.T) {
	_, err := NewAnalyzer(0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewAnalyzer(-252)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

// 恒定资金曲线：所有退化指标回退为 0，绝不输出 NaN。
func TestAnalyzerConstantEquityAllZero(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	m := a.Compute(equityOf(1000, 1000, 1000, 1000), nil, nil)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.CAGR)
	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.Calmar)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.WinLossRatio)
}

// 单调上涨且等比：收益方差为 0，Sharpe 回退 0，回撤为 0。
func TestAnalyzerMonotonicGrowth(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	m := a.Compute(equityOf(100, 110, 121), nil, nil)
	assert.InDelta(t, 0.21, m.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.21, 252.0/2.0)-1, m.CAGR, 1e-9)
	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.Calmar)
}

func TestAnalyzerMaxDrawdown(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	m := a.Compute(equityOf(100, 120, 90, 100), nil, nil)
	assert.InDelta(t, 90.0/120.0-1, m.MaxDrawdown, 1e-12)
	assert.Negative(t, m.MaxDrawdown)
	// Calmar = CAGR / |MaxDD|
	assert.InDelta(t, m.CAGR/0.25, m.Calmar, 1e-9)
}

func TestAnalyzerSharpeAndVolatility(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	// 收益序列 [0.10, -0.05]：均值 0.025，样本标准差 0.075*sqrt(2)≈0.10607
	m := a.Compute(equityOf(100, 110, 104.5), nil, nil)
	mean := 0.025
	std := math.Sqrt((math.Pow(0.10-mean, 2) + math.Pow(-0.05-mean, 2)) / 1.0)
	assert.InDelta(t, std*math.Sqrt(252), m.Volatility, 1e-9)
	assert.InDelta(t, mean/std*math.Sqrt(252), m.Sharpe, 1e-9)
}

func TestAnalyzerTradeStats(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	trades := []Trade{
		{PnL: 10}, {PnL: 20}, {PnL: -5},
	}
	m := a.Compute(equityOf(100, 101), trades, nil)
	assert.Equal(t, 3, m.TotalTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-12)
	assert.InDelta(t, 15.0, m.AvgWin, 1e-12)
	assert.InDelta(t, -5.0, m.AvgLoss, 1e-12)
	assert.InDelta(t, 3.0, m.WinLossRatio, 1e-12)
}

// 零盈亏交易计入总数但不算赢，无亏损时盈亏比回退 0。
func TestAnalyzerTradeStatsEdgeCases(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	m := a.Compute(equityOf(100, 101), []Trade{{PnL: 10}, {PnL: 0}}, nil)
	assert.Equal(t, 2, m.TotalTrades)
	assert.InDelta(t, 0.5, m.WinRate, 1e-12)
	assert.Zero(t, m.AvgLoss)
	assert.Zero(t, m.WinLossRatio)
}

func TestAnalyzerBuyHoldComparison(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	m := a.Compute(equityOf(100, 120), nil, equityOf(100, 110))
	assert.InDelta(t, 0.10, m.BuyHoldReturn, 1e-12)
	assert.InDelta(t, 0.10, m.Outperformance, 1e-12)
}

// 退化输入（空/单点曲线）不得产生 NaN 或 Inf。
func TestAnalyzerDegenerateInputsNoNaN(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	for _, equity := range [][]EquityPoint{nil, equityOf(1000)} {
		m := a.Compute(equity, nil, nil)
		for _, row := range m.Rows() {
			assert.False(t, math.IsNaN(row.Value), "%s 为 NaN", row.Label)
			assert.False(t, math.IsInf(row.Value, 0), "%s 为 Inf", row.Label)
		}
	}
}

// 相同输入必须得到逐位一致的输出。
func TestAnalyzerDeterministic(t *testing.T) {
	a, err := NewAnalyzer(252)
	require.NoError(t, err)

	equity := equityOf(100, 104, 99, 108, 103)
	trades := []Trade{{PnL: 4}, {PnL: -2}, {PnL: 1}}
	first := a.Compute(equity, trades, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Compute(equity, trades, nil))
	}
}
