package backtest

import (
	"fmt"

	"quantbt/internal/market"
	"quantbt/internal/strategy"
)

// RunBacktest 串起一次完整回测：策略 → 仓位模拟 → 绩效分析。
// 纯函数，无共享可变状态，可在多个 goroutine 中并行调用。
func RunBacktest(series *market.Series, strat strategy.Strategy, params RunParams) (*Result, error) {
	if strat == nil {
		return nil, fmt.Errorf("%w: 策略不能为空", ErrInvalidParameter)
	}
	if params.PeriodsPerYear <= 0 {
		return nil, fmt.Errorf("%w: 年化周期数必须为正 (%d)", ErrInvalidParameter, params.PeriodsPerYear)
	}
	sim, err := NewSimulator(params.CostRate)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(params.PeriodsPerYear)
	if err != nil {
		return nil, err
	}

	signals, err := strat.GenerateSignals(series)
	if err != nil {
		return nil, fmt.Errorf("生成信号失败: %w", err)
	}
	equity, trades, err := sim.Run(series, signals, params.InitialCapital)
	if err != nil {
		return nil, err
	}
	buyHold := BuyHoldCurve(series, params.InitialCapital)

	params.StrategyName = strat.Name()
	return &Result{
		Params:  params,
		Equity:  equity,
		BuyHold: buyHold,
		Trades:  trades,
		Metrics: analyzer.Compute(equity, trades, buyHold),
	}, nil
}
