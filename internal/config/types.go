package config

import "strings"

// Config 是 quantbt 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Backtest BacktestConfig `toml:"backtest"`
	Strategy StrategyConfig `toml:"strategy"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 控制历史 K 线的来源与本地缓存。
type DataConfig struct {
	Dir               string  `toml:"dir"`
	Source            string  `toml:"source"` // "binance" | "csv" | "none"
	CSVDir            string  `toml:"csv_dir"`
	BinanceRESTURL    string  `toml:"binance_rest_url"`
	HTTPTimeoutSec    int     `toml:"http_timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxConcurrentJobs int     `toml:"max_concurrent_jobs"`
}

// BacktestConfig 控制回测执行与结果存储。
type BacktestConfig struct {
	ResultsDir       string  `toml:"results_dir"`
	InitialCapital   float64 `toml:"initial_capital"`
	CostRate         float64 `toml:"cost_rate"`
	PeriodsPerYear   int     `toml:"periods_per_year"`
	DefaultTimeframe string  `toml:"default_timeframe"`
	MaxConcurrent    int     `toml:"max_concurrent"`
	GridMax          int     `toml:"grid_max"`
}

// StrategyConfig 指向策略预设文件。
type StrategyConfig struct {
	PresetsPath string `toml:"presets_path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
