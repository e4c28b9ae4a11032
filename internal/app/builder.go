package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quantbt/internal/backtest"
	"quantbt/internal/config"
	"quantbt/internal/dataset"
	"quantbt/internal/logger"
	"quantbt/internal/report"
	"quantbt/internal/strategy"
)

// AppBuilder 按依赖顺序组装应用：数据层 → 策略预设 → 回测服务 → HTTP。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	store, err := dataset.NewStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("初始化数据缓存失败: %w", err)
	}
	source, err := buildSource(cfg.Data)
	if err != nil {
		store.Close()
		return nil, err
	}
	data, err := dataset.NewService(dataset.ServiceConfig{
		Store:             store,
		Source:            source,
		RequestsPerSecond: cfg.Data.RequestsPerSecond,
		MaxConcurrentJobs: cfg.Data.MaxConcurrentJobs,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化数据服务失败: %w", err)
	}

	registry, err := strategy.NewRegistry(cfg.Strategy.PresetsPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("加载策略预设失败: %w", err)
	}

	results, err := backtest.NewResultStore(cfg.Backtest.ResultsDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化结果库失败: %w", err)
	}

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store:          results,
		Provider:       data,
		Registry:       registry,
		InitialCapital: cfg.Backtest.InitialCapital,
		CostRate:       cfg.Backtest.CostRate,
		PeriodsPerYear: cfg.Backtest.PeriodsPerYear,
		Timeframe:      cfg.Backtest.DefaultTimeframe,
		MaxConcurrent:  cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		results.Close()
		store.Close()
		return nil, fmt.Errorf("初始化回测服务失败: %w", err)
	}

	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:     cfg.App.HTTPAddr,
		Service:  svc,
		Results:  results,
		Registry: registry,
		Dataset:  data,
		Provider: data,
		Report:   report.NewRenderer(),
		GridMax:  cfg.Backtest.GridMax,
	})
	if err != nil {
		results.Close()
		store.Close()
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	logger.Infof("应用组装完成: source=%s presets=%d http=%s",
		sourceName(source), len(registry.IDs()), cfg.App.HTTPAddr)
	return &App{
		cfg:     cfg,
		store:   store,
		data:    data,
		results: results,
		svc:     svc,
		http:    httpSrv,
	}, nil
}

func buildSource(cfg config.DataConfig) (dataset.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "binance":
		return dataset.NewBinanceSource(dataset.BinanceConfig{
			BaseURL:     cfg.BinanceRESTURL,
			HTTPTimeout: time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		}), nil
	case "csv":
		return dataset.NewCSVSource(cfg.CSVDir), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知数据源: %s", cfg.Source)
	}
}

func sourceName(s dataset.Source) string {
	if s == nil {
		return "none"
	}
	return s.Name()
}
