package backtest

import (
	"encoding/json"
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunParams 记录一次回测的输入参数快照，便于复现。
type RunParams struct {
	Symbol         string          `json:"symbol"`
	Timeframe      string          `json:"timeframe"`
	StartTS        int64           `json:"start_ts"`
	EndTS          int64           `json:"end_ts"`
	StrategyName   string          `json:"strategy_name"`
	StrategyKind   string          `json:"strategy_kind"`
	StrategyParams json.RawMessage `json:"strategy_params,omitempty"`
	InitialCapital float64         `json:"initial_capital"`
	CostRate       float64         `json:"cost_rate"`
	PeriodsPerYear int             `json:"periods_per_year"`
}

// EquityPoint 是资金曲线上的一个点。
type EquityPoint struct {
	TS    int64   `json:"ts"`
	Value float64 `json:"value"`
}

// Trade 记录一次完整持仓。开平仓价格为成交时刻的收盘价，
// PnL 已扣除归属于本笔交易的换手成本。平仓后不再修改。
type Trade struct {
	EntryTS    int64   `json:"entry_ts"`
	ExitTS     int64   `json:"exit_ts"`
	Side       string  `json:"side"` // long/short
	Weight     float64 `json:"weight"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Cost       float64 `json:"cost"`
	PnL        float64 `json:"pnl"`
}

// Metrics 是从完整资金曲线与交易列表一次性算出的绩效指标，只读。
type Metrics struct {
	TotalReturn    float64 `json:"total_return"`
	CAGR           float64 `json:"cagr"`
	Volatility     float64 `json:"volatility"`
	Sharpe         float64 `json:"sharpe_ratio"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	Calmar         float64 `json:"calmar_ratio"`
	WinRate        float64 `json:"win_rate"`
	TotalTrades    int     `json:"total_trades"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	WinLossRatio   float64 `json:"win_loss_ratio"`
	BuyHoldReturn  float64 `json:"buy_hold_return"`
	Outperformance float64 `json:"outperformance"`
}

// MetricRow 是导出用的名称/数值对。
type MetricRow struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Rows 按固定顺序返回指标行，标签与导出格式一一对应。
func (m Metrics) Rows() []MetricRow {
	return []MetricRow{
		{Label: "Total Return", Value: m.TotalReturn},
		{Label: "CAGR", Value: m.CAGR},
		{Label: "Volatility", Value: m.Volatility},
		{Label: "Sharpe Ratio", Value: m.Sharpe},
		{Label: "Max Drawdown", Value: m.MaxDrawdown},
		{Label: "Calmar Ratio", Value: m.Calmar},
		{Label: "Win Rate", Value: m.WinRate},
		{Label: "Total Trades", Value: float64(m.TotalTrades)},
		{Label: "Avg Win", Value: m.AvgWin},
		{Label: "Avg Loss", Value: m.AvgLoss},
		{Label: "Win/Loss Ratio", Value: m.WinLossRatio},
		{Label: "Buy & Hold Return", Value: m.BuyHoldReturn},
		{Label: "Outperformance", Value: m.Outperformance},
	}
}

// Result 是一次回测的完整产物：资金曲线、基准曲线、交易列表与指标。
// 构造后只读，可安全地在协程间共享。
type Result struct {
	Params  RunParams     `json:"params"`
	Equity  []EquityPoint `json:"equity"`
	BuyHold []EquityPoint `json:"buy_hold"`
	Trades  []Trade       `json:"trades"`
	Metrics Metrics       `json:"metrics"`
}

// Run 表示一次回测任务的元数据（持久化视图）。
type Run struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Params      RunParams `json:"params"`
	Metrics     Metrics   `json:"metrics"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}
