package backtest

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMetricsCSVLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetricsCSV(&buf, Metrics{TotalReturn: 0.25, TotalTrades: 7}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 14)
	assert.Equal(t, []string{"Metric", "Value"}, records[0])

	labels := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		labels = append(labels, rec[0])
	}
	assert.Equal(t, []string{
		"Total Return", "CAGR", "Volatility", "Sharpe Ratio", "Max Drawdown",
		"Calmar Ratio", "Win Rate", "Total Trades", "Avg Win", "Avg Loss",
		"Win/Loss Ratio", "Buy & Hold Return", "Outperformance",
	}, labels)
	assert.Equal(t, "0.25", records[1][1])
	assert.Equal(t, "7", records[8][1])
}

func TestWriteEquityCSV(t *testing.T) {
	equity := []EquityPoint{
		{TS: 1700000000000, Value: 10000},
		{TS: 1700086400000, Value: 10100},
	}
	bench := []EquityPoint{
		{TS: 1700000000000, Value: 10000},
		{TS: 1700086400000, Value: 10050},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, equity, bench))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Value", "Buy & Hold"}, records[0])
	assert.Equal(t, "2023-11-14 22:13:20", records[1][0])
	assert.Equal(t, "10100", records[2][1])
	assert.Equal(t, "10050", records[2][2])
}

func TestWriteEquityCSVWithoutBenchmark(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, []EquityPoint{{TS: 1000, Value: 1}}, nil))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Value"}, records[0])
}

func TestWriteTradesCSV(t *testing.T) {
	trades := []Trade{
		{EntryTS: 1700000000000, ExitTS: 1700086400000, Side: "long", Weight: 1, EntryPrice: 101, ExitPrice: 103, Cost: 10, PnL: 188.21},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, trades))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Entry Date", "Exit Date", "Side", "Weight", "Entry Price", "Exit Price", "Cost", "PnL"}, records[0])
	assert.Equal(t, "long", records[1][2])
	assert.Equal(t, "188.21", records[1][7])
}
