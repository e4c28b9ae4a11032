package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/market"
	"quantbt/internal/strategy"
)

func mustSeries(t *testing.T, prices ...float64) *market.Series {
	t.Helper()
	points := make([]market.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = market.PricePoint{TS: int64(i+1) * 1000, Price: p}
	}
	s, err := market.NewSeries(points)
	require.NoError(t, err)
	return s
}

func TestNewSimulatorRejectsNegativeCost(t *testing.T) {
	_, err := NewSimulator(-0.001)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSimulatorRejectsBadInputs(t *testing.T) {
	sim, err := NewSimulator(0)
	require.NoError(t, err)
	series := mustSeries(t, 100, 101)

	_, _, err = sim.Run(series, []float64{0, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, _, err = sim.Run(series, []float64{0}, 1000)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, _, err = sim.Run(series, []float64{2, 0}, 1000)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSimulatorEmptyAndSinglePoint(t *testing.T) {
	sim, err := NewSimulator(0.001)
	require.NoError(t, err)

	empty := mustSeries(t)
	equity, trades, err := sim.Run(empty, nil, 1000)
	require.NoError(t, err)
	assert.Empty(t, equity)
	assert.Empty(t, trades)

	single := mustSeries(t, 100)
	equity, trades, err = sim.Run(single, []float64{1}, 1000)
	require.NoError(t, err)
	require.Len(t, equity, 1)
	assert.Equal(t, 1000.0, equity[0].Value)
	assert.Empty(t, trades)
}

// 双均线 2/3 信号 [0,0,1,1,1]：仓位滞后一期，多头只吃到 101→105→103 段。
func TestSimulatorMACrossoverFixture(t *testing.T) {
	sim, err := NewSimulator(0)
	require.NoError(t, err)

	series := mustSeries(t, 100, 102, 101, 105, 103)
	signals := []float64{0, 0, 1, 1, 1}
	equity, trades, err := sim.Run(series, signals, 10000)
	require.NoError(t, err)
	require.Len(t, equity, 5)

	assert.Equal(t, 10000.0, equity[0].Value)
	assert.Equal(t, 10000.0, equity[1].Value)
	assert.Equal(t, 10000.0, equity[2].Value)
	assert.InDelta(t, 10000*105.0/101.0, equity[3].Value, 1e-9)
	assert.InDelta(t, 10000*103.0/101.0, equity[4].Value, 1e-9)

	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, "long", tr.Side)
	assert.Equal(t, int64(3000), tr.EntryTS)
	assert.Equal(t, 101.0, tr.EntryPrice)
	assert.Equal(t, int64(5000), tr.ExitTS)
	assert.Equal(t, 103.0, tr.ExitPrice)
	assert.InDelta(t, 10000*103.0/101.0-10000, tr.PnL, 1e-9)
}

// 动量 1 期信号 [0,-1,-1]：空头吃到 90→80 段，资金 ×(1+1/9)。
func TestSimulatorMomentumShortFixture(t *testing.T) {
	sim, err := NewSimulator(0)
	require.NoError(t, err)

	series := mustSeries(t, 100, 90, 80)
	signals := []float64{0, -1, -1}
	equity, trades, err := sim.Run(series, signals, 1000)
	require.NoError(t, err)
	require.Len(t, equity, 3)

	assert.Equal(t, 1000.0, equity[1].Value)
	assert.InDelta(t, 1000*(1+1.0/9.0), equity[2].Value, 1e-9)

	require.Len(t, trades, 1)
	assert.Equal(t, "short", trades[0].Side)
	assert.InDelta(t, 1000.0/9.0, trades[0].PnL, 1e-9)
}

func TestSimulatorChargesCostOnTransition(t *testing.T) {
	sim, err := NewSimulator(0.001)
	require.NoError(t, err)

	series := mustSeries(t, 100, 102, 101, 105, 103)
	signals := []float64{0, 0, 1, 1, 1}
	equity, trades, err := sim.Run(series, signals, 10000)
	require.NoError(t, err)

	// 0→1 的切换发生在 t=3 生效，按切换前资金 10000 计费 10。
	assert.InDelta(t, 10000*105.0/101.0-10, equity[3].Value, 1e-9)
	require.Len(t, trades, 1)
	assert.InDelta(t, 10.0, trades[0].Cost, 1e-9)
	// 强制平仓不再收费。
	assert.InDelta(t, (10000*105.0/101.0-10)*103.0/105.0, equity[4].Value, 1e-9)
}

func TestSimulatorCostMonotonicity(t *testing.T) {
	series := mustSeries(t, 100, 102, 101, 105, 103, 99, 104)
	signals := []float64{0, 1, 1, -1, -1, 1, 0}

	var prevFinal float64
	for i, costRate := range []float64{0, 0.0005, 0.001, 0.005} {
		sim, err := NewSimulator(costRate)
		require.NoError(t, err)
		equity, _, err := sim.Run(series, signals, 10000)
		require.NoError(t, err)
		final := equity[len(equity)-1].Value
		if i > 0 {
			assert.LessOrEqual(t, final, prevFinal, "成本率 %.4f", costRate)
		}
		prevFinal = final
	}
}

// 方向反转拆成两笔交易，盈亏可叠加回资金曲线总变动。
func TestSimulatorReversalSplitsTrades(t *testing.T) {
	sim, err := NewSimulator(0)
	require.NoError(t, err)

	series := mustSeries(t, 100, 110, 100, 90)
	signals := []float64{1, -1, -1, -1}
	equity, trades, err := sim.Run(series, signals, 1000)
	require.NoError(t, err)

	assert.InDelta(t, 1100.0, equity[1].Value, 1e-9)
	assert.InDelta(t, 1200.0, equity[2].Value, 1e-9)
	assert.InDelta(t, 1320.0, equity[3].Value, 1e-9)

	require.Len(t, trades, 2)
	assert.Equal(t, "long", trades[0].Side)
	assert.InDelta(t, 100.0, trades[0].PnL, 1e-9)
	assert.Equal(t, "short", trades[1].Side)
	assert.InDelta(t, 220.0, trades[1].PnL, 1e-9)
}

// 交易盈亏之和始终等于资金曲线首尾差，成本不为零时也成立。
func TestSimulatorTradePnLTelescopes(t *testing.T) {
	sim, err := NewSimulator(0.002)
	require.NoError(t, err)

	series := mustSeries(t, 100, 102, 101, 105, 103, 99, 104, 108)
	signals := []float64{0, 1, 1, -1, 0, 1, 1, 0}
	equity, trades, err := sim.Run(series, signals, 10000)
	require.NoError(t, err)
	require.NotEmpty(t, trades)

	sum := 0.0
	for _, tr := range trades {
		sum += tr.PnL
	}
	assert.InDelta(t, equity[len(equity)-1].Value-equity[0].Value, sum, 1e-6)
}

// 全程 Flat 的信号不产生任何交易与成本。
func TestSimulatorAllFlat(t *testing.T) {
	sim, err := NewSimulator(0.01)
	require.NoError(t, err)

	series := mustSeries(t, 100, 90, 120, 80)
	equity, trades, err := sim.Run(series, []float64{0, 0, 0, 0}, 5000)
	require.NoError(t, err)
	assert.Empty(t, trades)
	for _, p := range equity {
		assert.Equal(t, 5000.0, p.Value)
	}
}

func TestBuyHoldCurve(t *testing.T) {
	series := mustSeries(t, 100, 110, 99)
	curve := BuyHoldCurve(series, 1000)
	require.Len(t, curve, 3)
	assert.Equal(t, 1000.0, curve[0].Value)
	assert.InDelta(t, 1100.0, curve[1].Value, 1e-9)
	assert.InDelta(t, 990.0, curve[2].Value, 1e-9)

	assert.Nil(t, BuyHoldCurve(mustSeries(t), 1000))
}

// 端到端：策略信号 → 模拟 → 指标，确认一期滞后贯穿整个流水线。
func TestRunBacktestEndToEnd(t *testing.T) {
	strat, err := strategy.NewMovingAverageCrossover(2, 3)
	require.NoError(t, err)

	series := mustSeries(t, 100, 102, 101, 105, 103)
	result, err := RunBacktest(series, strat, RunParams{
		InitialCapital: 10000,
		CostRate:       0,
		PeriodsPerYear: 252,
	})
	require.NoError(t, err)

	assert.Equal(t, "ma_crossover_2_3", result.Params.StrategyName)
	require.Len(t, result.Equity, 5)
	assert.InDelta(t, 10000*103.0/101.0, result.Equity[4].Value, 1e-9)
	assert.InDelta(t, 103.0/101.0-1, result.Metrics.TotalReturn, 1e-12)
	assert.InDelta(t, 103.0/100.0-1, result.Metrics.BuyHoldReturn, 1e-12)
	assert.Equal(t, 1, result.Metrics.TotalTrades)
}
