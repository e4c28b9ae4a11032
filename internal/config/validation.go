package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DataConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Source)) {
	case "binance", "csv", "none":
	default:
		return fmt.Errorf("data.source must be binance/csv/none, got %q", d.Source)
	}
	if strings.TrimSpace(d.Dir) == "" {
		return fmt.Errorf("data.dir cannot be empty")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if b.CostRate < 0 {
		return fmt.Errorf("backtest.cost_rate must be >= 0")
	}
	if b.PeriodsPerYear <= 0 {
		return fmt.Errorf("backtest.periods_per_year must be > 0")
	}
	return nil
}
