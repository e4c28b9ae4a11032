package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"quantbt/internal/backtest"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorBenchmark     = "#fbbf24"
	colorDrawdown      = "#f87171"
	colorWin           = "#34d399"
	colorLoss          = "#f87171"

	chartWidthPx     = 1400
	equityHeightPx   = 560
	drawdownHeightPx = 280
	tradesHeightPx   = 280
)

// Renderer 把一次回测渲染为自包含的 HTML 报表页面。
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// RenderHTML 生成资金曲线、回撤与逐笔盈亏三张图。
func (r *Renderer) RenderHTML(run backtest.Run, equity, benchmark []backtest.EquityPoint, trades []backtest.Trade) ([]byte, error) {
	if len(equity) == 0 {
		return nil, fmt.Errorf("回测 %s 没有资金曲线数据", run.ID)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("%s %s 回测报表", strings.ToUpper(run.Params.Symbol), run.Params.StrategyName)

	xAxis := buildXAxis(equity)
	page.AddCharts(buildEquityChart(run, xAxis, equity, benchmark))
	page.AddCharts(buildDrawdownChart(xAxis, equity))
	if len(trades) > 0 {
		page.AddCharts(buildTradePnLChart(trades))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("渲染报表失败: %w", err)
	}
	return buf.Bytes(), nil
}

func buildXAxis(equity []backtest.EquityPoint) []string {
	x := make([]string, len(equity))
	for i, p := range equity {
		x[i] = time.UnixMilli(p.TS).UTC().Format("2006-01-02 15:04")
	}
	return x
}

func buildEquityChart(run backtest.Run, xAxis []string, equity, benchmark []backtest.EquityPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s %s", strings.ToUpper(run.Params.Symbol), run.Params.Timeframe, run.Params.StrategyName),
			Subtitle:      metricsSubtitle(run.Metrics),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(xAxis)
	line.AddSeries("策略", equityLineData(equity), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	if len(benchmark) == len(equity) {
		line.AddSeries("买入持有", equityLineData(benchmark), charts.WithLineStyleOpts(opts.LineStyle{Color: colorBenchmark, Width: 2}))
	}
	return line
}

func metricsSubtitle(m backtest.Metrics) string {
	return fmt.Sprintf("总收益 %.2f%% | 夏普 %.2f | 最大回撤 %.2f%% | 胜率 %.1f%% | 交易 %d 笔",
		m.TotalReturn*100, m.Sharpe, m.MaxDrawdown*100, m.WinRate*100, m.TotalTrades)
}

func buildDrawdownChart(xAxis []string, equity []backtest.EquityPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", drawdownHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "回撤", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.35)}),
	)

	peak := equity[0].Value
	data := make([]opts.LineData, len(equity))
	for i, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		dd := 0.0
		if peak > 0 {
			dd = p.Value/peak - 1
		}
		data[i] = opts.LineData{Value: round(dd*100, 4)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Drawdown %", data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}))
	return line
}

func buildTradePnLChart(trades []backtest.Trade) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", tradesHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "逐笔盈亏", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, len(trades))
	data := make([]opts.BarData, len(trades))
	for i, t := range trades {
		xAxis[i] = fmt.Sprintf("#%d %s", i+1, t.Side)
		color := colorLoss
		if t.PnL > 0 {
			color = colorWin
		}
		data[i] = opts.BarData{
			Value:     round(t.PnL, 4),
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("PnL", data)
	return bar
}

func equityLineData(points []backtest.EquityPoint) []opts.LineData {
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		data[i] = opts.LineData{Value: round(p.Value, 4)}
	}
	return data
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
