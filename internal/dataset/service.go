package dataset

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"quantbt/internal/logger"
	"quantbt/internal/market"
)

// 拉取任务状态。
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// FetchParams 描述一次历史数据拉取请求。
type FetchParams struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
}

// FetchJob 是拉取任务的只读快照。
type FetchJob struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Status    string `json:"status"`
	Fetched   int    `json:"fetched"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// ServiceConfig 配置数据服务。
type ServiceConfig struct {
	Store  *Store
	Source Source
	// RequestsPerSecond 限制对远端数据源的请求速率，<=0 表示 2 rps。
	RequestsPerSecond float64
	// MaxConcurrentJobs 限制并发拉取任务数，<=0 表示 1。
	MaxConcurrentJobs int
}

// Service 负责历史 K 线的物化与查询，为回测层提供价格序列。
type Service struct {
	store   *Store
	source  Source
	limiter *rate.Limiter
	sem     chan struct{}

	mu   sync.Mutex
	jobs map[string]*FetchJob
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("dataset store 不能为空")
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	maxJobs := cfg.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}
	return &Service{
		store:   cfg.Store,
		source:  cfg.Source,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		sem:     make(chan struct{}, maxJobs),
		jobs:    make(map[string]*FetchJob),
	}, nil
}

// SubmitFetch 异步拉取指定区间的 K 线并落盘，返回任务快照。
func (s *Service) SubmitFetch(params FetchParams) (FetchJob, error) {
	if s.source == nil {
		return FetchJob{}, fmt.Errorf("未配置数据源，无法拉取")
	}
	tf, err := ParseTimeframe(params.Timeframe)
	if err != nil {
		return FetchJob{}, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(params.Symbol))
	if symbol == "" {
		return FetchJob{}, fmt.Errorf("symbol 不能为空")
	}
	start, end := tf.AlignRange(params.Start, params.End)
	if start <= 0 || end <= start {
		return FetchJob{}, fmt.Errorf("时间区间非法: [%d, %d)", params.Start, params.End)
	}

	now := time.Now().UnixMilli()
	job := &FetchJob{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Timeframe: tf.Key,
		Start:     start,
		End:       end,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := *job
	s.mu.Unlock()

	go s.runFetch(job.ID, symbol, tf, start, end)
	return snapshot, nil
}

// JobSnapshot 返回拉取任务当前状态。
func (s *Service) JobSnapshot(id string) (FetchJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return FetchJob{}, false
	}
	return *job, true
}

func (s *Service) updateJob(id string, fn func(job *FetchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UnixMilli()
}

func (s *Service) runFetch(id, symbol string, tf Timeframe, start, end int64) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("数据拉取任务 %s 等待可用 worker", id)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	s.updateJob(id, func(job *FetchJob) { job.Status = JobStatusRunning })
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	fetched, err := s.materializeRange(ctx, symbol, tf, start, end)
	if err != nil {
		logger.Errorf("数据拉取任务 %s 失败: %v", id, err)
		s.updateJob(id, func(job *FetchJob) {
			job.Status = JobStatusFailed
			job.Error = err.Error()
			job.Fetched = fetched
		})
		return
	}
	logger.Infof("数据拉取任务 %s 完成: %s %s 共 %d 根", id, symbol, tf.Key, fetched)
	s.updateJob(id, func(job *FetchJob) {
		job.Status = JobStatusDone
		job.Fetched = fetched
	})
}

// materializeRange 分页拉取 [start, end) 并写入本地缓存，返回累计根数。
func (s *Service) materializeRange(ctx context.Context, symbol string, tf Timeframe, start, end int64) (int, error) {
	total := 0
	cursor := start
	for cursor < end {
		if err := s.limiter.Wait(ctx); err != nil {
			return total, err
		}
		candles, err := s.source.Fetch(ctx, symbol, tf, cursor, end)
		if err != nil {
			return total, err
		}
		if len(candles) == 0 {
			break
		}
		if err := s.store.InsertCandles(ctx, symbol, tf.Key, candles); err != nil {
			return total, err
		}
		total += len(candles)
		next := candles[len(candles)-1].OpenTime + tf.durationMillis()
		if next <= cursor {
			break
		}
		cursor = next
	}
	return total, nil
}

// Manifests 汇总本地缓存清单。
func (s *Service) Manifests(ctx context.Context) ([]Manifest, error) {
	return s.store.Manifests(ctx)
}

// PriceSeries 返回区间内已物化的不可变价格序列。
// 本地缓存未覆盖区间且配置了数据源时，先同步补齐再读取。
func (s *Service) PriceSeries(ctx context.Context, symbol, timeframe string, start, end int64) (*market.Series, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	start, end = tf.AlignRange(start, end)
	if start <= 0 || end <= start {
		return nil, fmt.Errorf("时间区间非法: [%d, %d)", start, end)
	}

	if s.source != nil {
		covered, err := s.rangeCovered(ctx, symbol, tf, start, end)
		if err != nil {
			return nil, err
		}
		if !covered {
			if _, err := s.materializeRange(ctx, symbol, tf, start, end); err != nil {
				return nil, fmt.Errorf("补齐 %s %s 数据失败: %w", symbol, tf.Key, err)
			}
		}
	}

	candles, err := s.store.RangeCandles(ctx, symbol, tf.Key, start, end)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("区间内没有 %s %s 数据", symbol, tf.Key)
	}
	return market.FromCandles(candles)
}

// rangeCovered 以清单端点粗判区间覆盖，已收录端点之间的缺口由幂等写入兜底。
func (s *Service) rangeCovered(ctx context.Context, symbol string, tf Timeframe, start, end int64) (bool, error) {
	m, err := s.store.Manifest(ctx, symbol, tf.Key)
	if err != nil {
		return false, err
	}
	if m.CandleCount == 0 {
		return false, nil
	}
	return m.MinTime <= start && m.MaxTime >= end-tf.durationMillis(), nil
}
