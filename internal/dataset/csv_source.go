package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"quantbt/internal/market"
)

// CSVSource 从本地 CSV 文件读取 K 线，文件名为 {SYMBOL}-{timeframe}.csv。
// 首行为表头，至少包含 date 与 close 列，可选 open/high/low/volume。
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Fetch(ctx context.Context, symbol string, tf Timeframe, start, end int64) ([]market.Candle, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.csv", strings.ToUpper(strings.TrimSpace(symbol)), tf.Key))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 CSV 数据文件失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	dateIdx, ok := cols["date"]
	if !ok {
		dateIdx, ok = cols["time"]
	}
	closeIdx, hasClose := cols["close"]
	if !ok || !hasClose {
		return nil, fmt.Errorf("CSV 缺少 date/close 列: %s", path)
	}

	var out []market.Candle
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 行失败: %w", err)
		}
		ts, err := parseCSVTime(record[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("解析时间 %q 失败: %w", record[dateIdx], err)
		}
		if (start > 0 && ts < start) || (end > 0 && ts >= end) {
			continue
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(record[closeIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("解析收盘价 %q 失败: %w", record[closeIdx], err)
		}
		c := market.Candle{
			OpenTime:  ts,
			CloseTime: ts + tf.durationMillis() - 1,
			Close:     closePrice,
			Open:      optionalFloat(record, cols, "open", closePrice),
			High:      optionalFloat(record, cols, "high", closePrice),
			Low:       optionalFloat(record, cols, "low", closePrice),
			Volume:    optionalFloat(record, cols, "volume", 0),
		}
		out = append(out, c)
	}
	return out, nil
}

func optionalFloat(record []string, cols map[string]int, name string, fallback float64) float64 {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
	if err != nil {
		return fallback
	}
	return v
}

// parseCSVTime 支持 unix 毫秒、unix 秒、RFC3339 与 2006-01-02 日期。
func parseCSVTime(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return n, nil
		}
		return n * 1000, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
