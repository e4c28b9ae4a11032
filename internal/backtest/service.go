package backtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"quantbt/internal/logger"
	"quantbt/internal/market"
	"quantbt/internal/strategy"
)

// PriceProvider 由数据层实现：返回区间内已物化的不可变价格序列。
// 拉取、缓存与网络失败都是数据层的职责，引擎只消费结果。
type PriceProvider interface {
	PriceSeries(ctx context.Context, symbol, timeframe string, start, end int64) (*market.Series, error)
}

// ServiceConfig 配置回测服务。
type ServiceConfig struct {
	Store          *ResultStore
	Provider       PriceProvider
	Registry       *strategy.Registry
	InitialCapital float64
	CostRate       float64
	PeriodsPerYear int
	Timeframe      string
	MaxConcurrent  int
}

// Service 管理回测任务：创建、排队、后台执行与结果落库。
type Service struct {
	store    *ResultStore
	provider PriceProvider
	registry *strategy.Registry

	defCapital   float64
	defCostRate  float64
	defPeriods   int
	defTimeframe string

	sem     chan struct{}
	baseCtx context.Context
}

// NewService 构造回测服务。
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("price provider 不能为空")
	}
	capital := cfg.InitialCapital
	if capital <= 0 {
		capital = 100000
	}
	costRate := cfg.CostRate
	if costRate < 0 {
		return nil, fmt.Errorf("%w: 默认成本率不能为负", ErrInvalidParameter)
	}
	periods := cfg.PeriodsPerYear
	if periods <= 0 {
		periods = 252
	}
	timeframe := cfg.Timeframe
	if timeframe == "" {
		timeframe = "1d"
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		store:        cfg.Store,
		provider:     cfg.Provider,
		registry:     cfg.Registry,
		defCapital:   capital,
		defCostRate:  costRate,
		defPeriods:   periods,
		defTimeframe: timeframe,
		sem:          make(chan struct{}, maxConcurrent),
		baseCtx:      context.Background(),
	}, nil
}

// SetContext 注入进程级 context，用于后台任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// RunRequest 为 HTTP 提交使用。Preset 与 Strategy 二选一。
// CostRate 用指针区分"未填"与显式 0。
type RunRequest struct {
	Symbol         string        `json:"symbol" binding:"required"`
	Timeframe      string        `json:"timeframe"`
	StartTS        int64         `json:"start_ts" binding:"required"`
	EndTS          int64         `json:"end_ts" binding:"required"`
	Preset         string        `json:"preset"`
	Strategy       strategy.Spec `json:"strategy"`
	InitialCapital float64       `json:"initial_capital"`
	CostRate       *float64      `json:"cost_rate"`
	PeriodsPerYear int           `json:"periods_per_year"`
}

// resolve 把请求补全为参数快照并提前构造策略，参数问题在入口失败。
func (s *Service) resolve(req RunRequest) (RunParams, strategy.Strategy, error) {
	spec := req.Strategy
	if req.Preset != "" {
		if s.registry == nil {
			return RunParams{}, nil, fmt.Errorf("未配置策略预设文件")
		}
		preset, ok := s.registry.Preset(req.Preset)
		if !ok {
			return RunParams{}, nil, fmt.Errorf("未知预设: %s", req.Preset)
		}
		var err error
		spec, err = preset.Spec()
		if err != nil {
			return RunParams{}, nil, err
		}
	}
	strat, err := strategy.New(spec)
	if err != nil {
		return RunParams{}, nil, err
	}

	params := RunParams{
		Symbol:         strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Timeframe:      strings.ToLower(strings.TrimSpace(req.Timeframe)),
		StartTS:        req.StartTS,
		EndTS:          req.EndTS,
		StrategyName:   strat.Name(),
		StrategyKind:   spec.Kind,
		StrategyParams: spec.Params,
		InitialCapital: req.InitialCapital,
		CostRate:       s.defCostRate,
		PeriodsPerYear: req.PeriodsPerYear,
	}
	if params.Symbol == "" {
		return RunParams{}, nil, fmt.Errorf("symbol 不能为空")
	}
	if params.Timeframe == "" {
		params.Timeframe = s.defTimeframe
	}
	if params.StartTS <= 0 || params.EndTS <= 0 || params.EndTS <= params.StartTS {
		return RunParams{}, nil, fmt.Errorf("start/end 非法")
	}
	if params.InitialCapital == 0 {
		params.InitialCapital = s.defCapital
	}
	if params.InitialCapital <= 0 {
		return RunParams{}, nil, fmt.Errorf("%w: 初始资金必须为正", ErrInvalidParameter)
	}
	if req.CostRate != nil {
		if *req.CostRate < 0 {
			return RunParams{}, nil, fmt.Errorf("%w: 成本率不能为负", ErrInvalidParameter)
		}
		params.CostRate = *req.CostRate
	}
	if params.PeriodsPerYear == 0 {
		params.PeriodsPerYear = s.defPeriods
	}
	if params.PeriodsPerYear < 0 {
		return RunParams{}, nil, fmt.Errorf("%w: 年化周期数必须为正", ErrInvalidParameter)
	}
	return params, strat, nil
}

// StartRun 创建回测任务并立即返回，模拟在后台进行。
func (s *Service) StartRun(req RunRequest) (Run, error) {
	params, strat, err := s.resolve(req)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:     uuid.NewString(),
		Status: RunStatusPending,
		Params: params,
	}
	if err := s.store.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run.ID, params, strat)
	return run, nil
}

// Execute 同步执行一次回测并落库，供 CLI/测试使用。
func (s *Service) Execute(ctx context.Context, req RunRequest) (Run, *Result, error) {
	params, strat, err := s.resolve(req)
	if err != nil {
		return Run{}, nil, err
	}
	run := Run{ID: uuid.NewString(), Status: RunStatusPending, Params: params}
	if err := s.store.InsertRun(ctx, run); err != nil {
		return Run{}, nil, err
	}
	result, err := s.execute(ctx, run.ID, params, strat)
	if err != nil {
		_ = s.store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return run, nil, err
	}
	saved, err := s.store.GetRun(ctx, run.ID)
	if err != nil {
		return run, result, nil
	}
	return saved, result, nil
}

func (s *Service) runLoop(runID string, params RunParams, strat strategy.Strategy) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s 等待可用 worker", runID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	if _, err := s.execute(ctx, runID, params, strat); err != nil {
		logger.Warnf("[backtest] run %s 失败: %v", runID, err)
		_ = s.store.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
	}
}

func (s *Service) execute(ctx context.Context, runID string, params RunParams, strat strategy.Strategy) (*Result, error) {
	if err := s.store.UpdateRunStatus(ctx, runID, RunStatusRunning, "加载价格数据…"); err != nil {
		logger.Debugf("update run status failed: %v", err)
	}
	series, err := s.provider.PriceSeries(ctx, params.Symbol, params.Timeframe, params.StartTS, params.EndTS)
	if err != nil {
		return nil, fmt.Errorf("加载价格序列失败: %w", err)
	}
	result, err := RunBacktest(series, strat, params)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveResult(ctx, runID, result); err != nil {
		return nil, fmt.Errorf("保存回测结果失败: %w", err)
	}
	logger.Infof("[backtest] run %s 完成: return=%.4f sharpe=%.3f maxDD=%.4f trades=%d",
		runID, result.Metrics.TotalReturn, result.Metrics.Sharpe, result.Metrics.MaxDrawdown, result.Metrics.TotalTrades)
	return result, nil
}
