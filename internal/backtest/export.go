package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// 平面表格导出：指标每行一个名称/数值对，资金曲线每行一个时间戳/数值对。
// 字段名与指标标签严格一致，供外部报表直接消费。

// WriteMetricsCSV 导出指标表。
func WriteMetricsCSV(w io.Writer, metrics Metrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	for _, row := range metrics.Rows() {
		if err := cw.Write([]string{row.Label, formatFloat(row.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV 导出资金曲线，benchmark 可为空。
func WriteEquityCSV(w io.Writer, equity, benchmark []EquityPoint) error {
	cw := csv.NewWriter(w)
	header := []string{"Date", "Value"}
	withBench := len(benchmark) == len(equity) && len(equity) > 0
	if withBench {
		header = append(header, "Buy & Hold")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, p := range equity {
		row := []string{formatTS(p.TS), formatFloat(p.Value)}
		if withBench {
			row = append(row, formatFloat(benchmark[i].Value))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV 导出交易列表。
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Entry Date", "Exit Date", "Side", "Weight", "Entry Price", "Exit Price", "Cost", "PnL"}); err != nil {
		return err
	}
	for _, tr := range trades {
		row := []string{
			formatTS(tr.EntryTS),
			formatTS(tr.ExitTS),
			tr.Side,
			formatFloat(tr.Weight),
			formatFloat(tr.EntryPrice),
			formatFloat(tr.ExitPrice),
			formatFloat(tr.Cost),
			formatFloat(tr.PnL),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTS(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02 15:04:05")
}
