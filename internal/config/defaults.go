package config

import "strings"

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9981"
	defaultAppLogPath        = "data/logs/quantbt.log"
	defaultDataDir           = "data/candles"
	defaultDataSource        = "binance"
	defaultDataCSVDir        = "data/csv"
	defaultBinanceREST       = "https://fapi.binance.com"
	defaultHTTPTimeoutSec    = 15
	defaultRequestsPerSec    = 2.0
	defaultMaxConcurrentJobs = 1
	defaultResultsDir        = "data/results"
	defaultInitialCapital    = 100000.0
	defaultCostRate          = 0.001
	defaultPeriodsPerYear    = 252
	defaultTimeframe         = "1d"
	defaultMaxConcurrent     = 2
	defaultGridMax           = 4
	defaultPresetsPath       = "configs/strategies.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.dir", &d.Dir, defaultDataDir),
		stringFieldDefault("data.source", &d.Source, defaultDataSource),
		stringFieldDefault("data.csv_dir", &d.CSVDir, defaultDataCSVDir),
		stringFieldDefault("data.binance_rest_url", &d.BinanceRESTURL, defaultBinanceREST),
		fieldDefault{
			key:   "data.http_timeout_seconds",
			need:  func() bool { return d.HTTPTimeoutSec <= 0 },
			apply: func() { d.HTTPTimeoutSec = defaultHTTPTimeoutSec },
		},
		fieldDefault{
			key:   "data.requests_per_second",
			need:  func() bool { return d.RequestsPerSecond <= 0 },
			apply: func() { d.RequestsPerSecond = defaultRequestsPerSec },
		},
		fieldDefault{
			key:   "data.max_concurrent_jobs",
			need:  func() bool { return d.MaxConcurrentJobs <= 0 },
			apply: func() { d.MaxConcurrentJobs = defaultMaxConcurrentJobs },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.results_dir", &b.ResultsDir, defaultResultsDir),
		stringFieldDefault("backtest.default_timeframe", &b.DefaultTimeframe, defaultTimeframe),
		fieldDefault{
			key:   "backtest.initial_capital",
			need:  func() bool { return b.InitialCapital <= 0 },
			apply: func() { b.InitialCapital = defaultInitialCapital },
		},
		fieldDefault{
			key:   "backtest.cost_rate",
			need:  func() bool { return b.CostRate == 0 },
			apply: func() { b.CostRate = defaultCostRate },
		},
		fieldDefault{
			key:   "backtest.periods_per_year",
			need:  func() bool { return b.PeriodsPerYear <= 0 },
			apply: func() { b.PeriodsPerYear = defaultPeriodsPerYear },
		},
		fieldDefault{
			key:   "backtest.max_concurrent",
			need:  func() bool { return b.MaxConcurrent <= 0 },
			apply: func() { b.MaxConcurrent = defaultMaxConcurrent },
		},
		fieldDefault{
			key:   "backtest.grid_max",
			need:  func() bool { return b.GridMax <= 0 },
			apply: func() { b.GridMax = defaultGridMax },
		},
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.presets_path", &s.PresetsPath, defaultPresetsPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
