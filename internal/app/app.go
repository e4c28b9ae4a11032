package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"quantbt/internal/backtest"
	"quantbt/internal/config"
	"quantbt/internal/dataset"
	"quantbt/internal/logger"
)

// App 负责应用级编排：加载配置→初始化依赖→启动回测服务。
type App struct {
	cfg     *config.Config
	store   *dataset.Store
	data    *dataset.Service
	results *backtest.ResultStore
	svc     *backtest.Service
	http    *backtest.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务并阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	a.svc.SetContext(ctx)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Run(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 释放存储资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			logger.Warnf("关闭结果库失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭数据缓存失败: %v", err)
		}
	}
}

// BacktestService 暴露底层回测服务（供测试与脚本使用）。
func (a *App) BacktestService() *backtest.Service {
	if a == nil {
		return nil
	}
	return a.svc
}
