package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSeries(t *testing.T, prices ...float64) *Series {
	t.Helper()
	points := make([]PricePoint, len(prices))
	for i, p := range prices {
		points[i] = PricePoint{TS: int64(i+1) * 1000, Price: p}
	}
	s, err := NewSeries(points)
	require.NoError(t, err)
	return s
}

func TestNewSeriesRejectsNonPositivePrice(t *testing.T) {
	_, err := NewSeries([]PricePoint{{TS: 1000, Price: 100}, {TS: 2000, Price: 0}})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = NewSeries([]PricePoint{{TS: 1000, Price: -5}})
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestNewSeriesRejectsNonIncreasingTimestamps(t *testing.T) {
	_, err := NewSeries([]PricePoint{{TS: 2000, Price: 100}, {TS: 1000, Price: 101}})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = NewSeries([]PricePoint{{TS: 1000, Price: 100}, {TS: 1000, Price: 101}})
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestNewSeriesAcceptsEmpty(t *testing.T) {
	s, err := NewSeries(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Returns())
}

func TestSeriesIsImmutable(t *testing.T) {
	points := []PricePoint{{TS: 1000, Price: 100}, {TS: 2000, Price: 110}}
	s, err := NewSeries(points)
	require.NoError(t, err)

	points[1].Price = 999
	assert.Equal(t, 110.0, s.At(1).Price)

	prices := s.Prices()
	prices[0] = 1
	assert.Equal(t, 100.0, s.At(0).Price)
}

func TestSeriesReturns(t *testing.T) {
	s := mustSeries(t, 100, 110, 99)
	rets := s.Returns()
	require.Len(t, rets, 2)
	assert.InDelta(t, 0.10, rets[0], 1e-12)
	assert.InDelta(t, -0.10, rets[1], 1e-12)
}

func TestFromCandlesUsesCloseAndCloseTime(t *testing.T) {
	candles := []Candle{
		{OpenTime: 0, CloseTime: 999, Open: 99, Close: 100},
		{OpenTime: 1000, CloseTime: 1999, Open: 100, Close: 102},
	}
	s, err := FromCandles(candles)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, int64(999), s.At(0).TS)
	assert.Equal(t, 102.0, s.At(1).Price)
}
