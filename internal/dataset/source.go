package dataset

import (
	"context"

	"quantbt/internal/market"
)

// Source 是 K 线数据源抽象，按时间区间分页拉取。
type Source interface {
	// Name 返回数据源标识，用于日志与清单。
	Name() string
	// Fetch 拉取 [start, end) 区间内的 K 线，按 OpenTime 升序返回。
	// 实现方自行处理分页上限，调用方负责按返回进度推进窗口。
	Fetch(ctx context.Context, symbol string, tf Timeframe, start, end int64) ([]market.Candle, error)
}
