package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"quantbt/internal/market"
	"quantbt/internal/strategy"
)

// GridEntry 是一次参数扫描的单元结果。
type GridEntry struct {
	Spec    strategy.Spec `json:"spec"`
	Name    string        `json:"name"`
	Metrics Metrics       `json:"metrics"`
}

// GridSearch 在同一价格序列上并行回测多组策略参数。
// 每次回测是纯函数，无需协调；并发度由 concurrency 限制。
// 结果顺序与 specs 一致，保证重复执行时输出可复现。
func GridSearch(ctx context.Context, series *market.Series, specs []strategy.Spec, params RunParams, concurrency int) ([]GridEntry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: 参数网格为空", ErrInvalidParameter)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	entries := make([]GridEntry, len(specs))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, spec := range specs {
		i, spec := i, spec
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			strat, err := strategy.New(spec)
			if err != nil {
				return fmt.Errorf("网格第 %d 项: %w", i, err)
			}
			result, err := RunBacktest(series, strat, params)
			if err != nil {
				return fmt.Errorf("网格第 %d 项 (%s): %w", i, strat.Name(), err)
			}
			entries[i] = GridEntry{Spec: spec, Name: strat.Name(), Metrics: result.Metrics}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
