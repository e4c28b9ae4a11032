package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ResultStore 用 Gorm + SQLite 持久化回测任务、交易与资金曲线。
type ResultStore struct {
	db *gorm.DB
}

type runModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Status       string `gorm:"size:16;index"`
	Message      string
	Symbol       string `gorm:"size:32;index"`
	Timeframe    string `gorm:"size:8"`
	StrategyName string `gorm:"size:64"`
	ParamsJSON   datatypes.JSON
	MetricsJSON  datatypes.JSON
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"size:36;index"`
	EntryTS    int64
	ExitTS     int64
	Side       string `gorm:"size:8"`
	Weight     float64
	EntryPrice float64
	ExitPrice  float64
	Cost       float64
	PnL        float64
}

func (tradeModel) TableName() string { return "backtest_trades" }

type equityModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"size:36;index"`
	TS        int64
	Value     float64
	Benchmark float64
}

func (equityModel) TableName() string { return "backtest_equity" }

// NewResultStore 打开（必要时创建）结果库。
func NewResultStore(root string) (*ResultStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开结果库失败: %w", err)
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &equityModel{}); err != nil {
		return nil, fmt.Errorf("迁移结果库失败: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Close 关闭底层连接。
func (s *ResultStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 写入新任务。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	model := runModel{
		ID:           run.ID,
		Status:       run.Status,
		Message:      run.Message,
		Symbol:       run.Params.Symbol,
		Timeframe:    run.Params.Timeframe,
		StrategyName: run.Params.StrategyName,
		ParamsJSON:   datatypes.JSON(paramsJSON),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateRunStatus 更新任务状态与进度信息。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, runID, status, message string) error {
	updates := map[string]any{"status": status, "message": message}
	if status == RunStatusDone || status == RunStatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", runID).Updates(updates).Error
}

// SaveResult 原子地写入指标、交易与资金曲线，并把任务标记为完成。
func (s *ResultStore) SaveResult(ctx context.Context, runID string, result *Result) error {
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return err
	}
	trades := make([]tradeModel, len(result.Trades))
	for i, tr := range result.Trades {
		trades[i] = tradeModel{
			RunID:      runID,
			EntryTS:    tr.EntryTS,
			ExitTS:     tr.ExitTS,
			Side:       tr.Side,
			Weight:     tr.Weight,
			EntryPrice: tr.EntryPrice,
			ExitPrice:  tr.ExitPrice,
			Cost:       tr.Cost,
			PnL:        tr.PnL,
		}
	}
	points := make([]equityModel, len(result.Equity))
	for i, p := range result.Equity {
		bench := 0.0
		if i < len(result.BuyHold) {
			bench = result.BuyHold[i].Value
		}
		points[i] = equityModel{RunID: runID, TS: p.TS, Value: p.Value, Benchmark: bench}
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&runModel{}).Where("id = ?", runID).Updates(map[string]any{
			"status":       RunStatusDone,
			"message":      "完成",
			"metrics_json": datatypes.JSON(metricsJSON),
			"completed_at": &now,
		}).Error; err != nil {
			return err
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, 200).Error; err != nil {
				return err
			}
		}
		if len(points) > 0 {
			if err := tx.CreateInBatches(points, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun 读取单个任务。
func (s *ResultStore) GetRun(ctx context.Context, runID string) (Run, error) {
	var model runModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", runID).Error; err != nil {
		return Run{}, err
	}
	return modelToRun(model)
}

// ListRuns 按创建时间倒序列出任务。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := modelToRun(m)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Trades 返回某任务的交易列表。
func (s *ResultStore) Trades(ctx context.Context, runID string) ([]Trade, error) {
	var models []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("entry_ts ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	trades := make([]Trade, len(models))
	for i, m := range models {
		trades[i] = Trade{
			EntryTS:    m.EntryTS,
			ExitTS:     m.ExitTS,
			Side:       m.Side,
			Weight:     m.Weight,
			EntryPrice: m.EntryPrice,
			ExitPrice:  m.ExitPrice,
			Cost:       m.Cost,
			PnL:        m.PnL,
		}
	}
	return trades, nil
}

// Equity 返回某任务的资金曲线与基准曲线。
func (s *ResultStore) Equity(ctx context.Context, runID string) ([]EquityPoint, []EquityPoint, error) {
	var models []equityModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("ts ASC").Find(&models).Error; err != nil {
		return nil, nil, err
	}
	equity := make([]EquityPoint, len(models))
	bench := make([]EquityPoint, len(models))
	for i, m := range models {
		equity[i] = EquityPoint{TS: m.TS, Value: m.Value}
		bench[i] = EquityPoint{TS: m.TS, Value: m.Benchmark}
	}
	return equity, bench, nil
}

func modelToRun(m runModel) (Run, error) {
	run := Run{
		ID:        m.ID,
		Status:    m.Status,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.CompletedAt != nil {
		run.CompletedAt = *m.CompletedAt
	}
	if len(m.ParamsJSON) > 0 {
		if err := json.Unmarshal(m.ParamsJSON, &run.Params); err != nil {
			return Run{}, fmt.Errorf("解析任务参数失败: %w", err)
		}
	}
	if len(m.MetricsJSON) > 0 {
		if err := json.Unmarshal(m.MetricsJSON, &run.Metrics); err != nil {
			return Run{}, fmt.Errorf("解析任务指标失败: %w", err)
		}
	}
	return run, nil
}
