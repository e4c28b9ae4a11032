package market

import (
	"errors"
	"fmt"
)

// ErrInvalidSeries 表示价格序列不满足边界契约（时间戳乱序/重复、非正价格）。
var ErrInvalidSeries = errors.New("invalid price series")

// PricePoint 表示某一时刻的收盘价，时间戳为 Unix 毫秒。
type PricePoint struct {
	TS    int64   `json:"ts"`
	Price float64 `json:"price"`
}

// Series 是不可变的价格历史：时间戳严格递增、价格为正。
// 通过 NewSeries 构造后不再修改，可被多个回测并发读取。
type Series struct {
	points []PricePoint
}

// NewSeries 校验并封装价格序列。乱序、重复时间戳或非正价格在此被拒绝，
// 不会进入模拟环节。空序列合法（对应空回测结果）。
func NewSeries(points []PricePoint) (*Series, error) {
	for i, p := range points {
		if p.Price <= 0 {
			return nil, fmt.Errorf("%w: 第 %d 个点价格非正 (%.6f)", ErrInvalidSeries, i, p.Price)
		}
		if i > 0 && p.TS <= points[i-1].TS {
			return nil, fmt.Errorf("%w: 第 %d 个点时间戳未递增 (%d <= %d)", ErrInvalidSeries, i, p.TS, points[i-1].TS)
		}
	}
	copied := make([]PricePoint, len(points))
	copy(copied, points)
	return &Series{points: copied}, nil
}

// FromCandles 以收盘价与收盘时间构造价格序列。
func FromCandles(candles []Candle) (*Series, error) {
	points := make([]PricePoint, len(candles))
	for i, c := range candles {
		points[i] = PricePoint{TS: c.CloseTime, Price: c.Close}
	}
	return NewSeries(points)
}

// Len 返回价格点数量。
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// At 返回第 i 个价格点。
func (s *Series) At(i int) PricePoint {
	return s.points[i]
}

// Prices 返回价格切片副本。
func (s *Series) Prices() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Price
	}
	return out
}

// Timestamps 返回时间戳切片副本。
func (s *Series) Timestamps() []int64 {
	out := make([]int64, len(s.points))
	for i, p := range s.points {
		out[i] = p.TS
	}
	return out
}

// Returns 返回相邻价格点之间的简单收益率，长度为 Len()-1。
// 第 i 个元素对应区间 (t[i], t[i+1]]。
func (s *Series) Returns() []float64 {
	if s.Len() < 2 {
		return nil
	}
	out := make([]float64, len(s.points)-1)
	for i := 1; i < len(s.points); i++ {
		out[i-1] = s.points[i].Price/s.points[i-1].Price - 1
	}
	return out
}
