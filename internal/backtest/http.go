package backtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"quantbt/internal/dataset"
	"quantbt/internal/logger"
	"quantbt/internal/strategy"
)

// ReportRenderer 由报表层实现：把一次回测渲染为 HTML 页面。
type ReportRenderer interface {
	RenderHTML(run Run, equity, benchmark []EquityPoint, trades []Trade) ([]byte, error)
}

// ReportSnapshotter 是可选能力：把 HTML 报表截图为 PNG。
type ReportSnapshotter interface {
	Snapshot(ctx context.Context, html []byte) ([]byte, error)
}

// HTTPConfig 配置 HTTP 服务。
type HTTPConfig struct {
	Addr     string
	Service  *Service
	Results  *ResultStore
	Registry *strategy.Registry
	Dataset  *dataset.Service
	Provider PriceProvider
	Report   ReportRenderer
	GridMax  int
}

// HTTPServer 提供 Gin 接口：提交/查询回测、参数扫描、数据拉取与导出。
type HTTPServer struct {
	addr     string
	svc      *Service
	results  *ResultStore
	registry *strategy.Registry
	dataset  *dataset.Service
	provider PriceProvider
	report   ReportRenderer
	gridMax  int
	router   *gin.Engine
}

// NewHTTPServer 构造 HTTP 服务。
func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Service == nil {
		return nil, errors.New("backtest service 不能为空")
	}
	if cfg.Results == nil {
		return nil, errors.New("result store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9981"
	}
	gridMax := cfg.GridMax
	if gridMax <= 0 {
		gridMax = 4
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:     cfg.Addr,
		svc:      cfg.Service,
		results:  cfg.Results,
		registry: cfg.Registry,
		dataset:  cfg.Dataset,
		provider: cfg.Provider,
		report:   cfg.Report,
		gridMax:  gridMax,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api/backtest")
	api.GET("/strategies", s.handleStrategies)
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)
	api.GET("/runs/:id/export/metrics.csv", s.handleExportMetrics)
	api.GET("/runs/:id/export/equity.csv", s.handleExportEquity)
	api.GET("/runs/:id/export/trades.csv", s.handleExportTrades)
	api.GET("/runs/:id/report", s.handleRunReport)
	api.POST("/grid", s.handleGrid)

	if s.dataset != nil {
		data := s.router.Group("/api/dataset")
		data.POST("/fetch", s.handleDatasetFetch)
		data.GET("/fetch/:id", s.handleDatasetFetchStatus)
		data.GET("/manifest", s.handleDatasetManifest)
	}
}

// Run 启动 HTTP 服务并在 ctx 取消时优雅退出。
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("backtest http 监听 %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

func (s *HTTPServer) handleStrategies(c *gin.Context) {
	resp := gin.H{"kinds": strategy.Kinds()}
	if s.registry != nil {
		snap := s.registry.Snapshot()
		resp["presets"] = snap.Presets
		resp["presets_version"] = snap.Version
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) handleRunStart(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.svc.StartRun(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	run, ok := s.findRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *HTTPServer) handleRunTrades(c *gin.Context) {
	trades, err := s.results.Trades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *HTTPServer) handleRunEquity(c *gin.Context) {
	equity, benchmark, err := s.results.Equity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity, "benchmark": benchmark})
}

func (s *HTTPServer) handleExportMetrics(c *gin.Context) {
	run, ok := s.findRun(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-metrics.csv", run.ID))
	if err := WriteMetricsCSV(c.Writer, run.Metrics); err != nil {
		logger.Warnf("导出指标 CSV 失败: %v", err)
	}
}

func (s *HTTPServer) handleExportEquity(c *gin.Context) {
	equity, benchmark, err := s.results.Equity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-equity.csv", c.Param("id")))
	if err := WriteEquityCSV(c.Writer, equity, benchmark); err != nil {
		logger.Warnf("导出资金曲线 CSV 失败: %v", err)
	}
}

func (s *HTTPServer) handleExportTrades(c *gin.Context) {
	trades, err := s.results.Trades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-trades.csv", c.Param("id")))
	if err := WriteTradesCSV(c.Writer, trades); err != nil {
		logger.Warnf("导出交易 CSV 失败: %v", err)
	}
}

func (s *HTTPServer) handleRunReport(c *gin.Context) {
	if s.report == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "未配置报表渲染"})
		return
	}
	run, ok := s.findRun(c)
	if !ok {
		return
	}
	equity, benchmark, err := s.results.Equity(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	trades, err := s.results.Trades(c.Request.Context(), run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	html, err := s.report.RenderHTML(run, equity, benchmark, trades)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "png" {
		snap, ok := s.report.(ReportSnapshotter)
		if !ok {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "报表渲染器不支持截图"})
			return
		}
		png, err := snap.Snapshot(c.Request.Context(), html)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

type gridRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Timeframe      string          `json:"timeframe"`
	StartTS        int64           `json:"start_ts" binding:"required"`
	EndTS          int64           `json:"end_ts" binding:"required"`
	Specs          []strategy.Spec `json:"specs" binding:"required"`
	InitialCapital float64         `json:"initial_capital"`
	CostRate       *float64        `json:"cost_rate"`
	PeriodsPerYear int             `json:"periods_per_year"`
}

func (s *HTTPServer) handleGrid(c *gin.Context) {
	if s.provider == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "未配置数据源"})
		return
	}
	var req gridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	base := RunRequest{
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		StartTS:        req.StartTS,
		EndTS:          req.EndTS,
		InitialCapital: req.InitialCapital,
		CostRate:       req.CostRate,
		PeriodsPerYear: req.PeriodsPerYear,
	}
	if len(req.Specs) > 0 {
		base.Strategy = req.Specs[0]
	}
	params, _, err := s.svc.resolve(base)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	series, err := s.provider.PriceSeries(c.Request.Context(), params.Symbol, params.Timeframe, params.StartTS, params.EndTS)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	entries, err := GridSearch(c.Request.Context(), series, req.Specs, params, s.gridMax)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *HTTPServer) handleDatasetFetch(c *gin.Context) {
	var req struct {
		Symbol    string `json:"symbol" binding:"required"`
		Timeframe string `json:"timeframe" binding:"required"`
		StartTS   int64  `json:"start_ts" binding:"required"`
		EndTS     int64  `json:"end_ts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.dataset.SubmitFetch(dataset.FetchParams{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Start:     req.StartTS,
		End:       req.EndTS,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *HTTPServer) handleDatasetFetchStatus(c *gin.Context) {
	job, ok := s.dataset.JobSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *HTTPServer) handleDatasetManifest(c *gin.Context) {
	manifests, err := s.dataset.Manifests(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"datasets": manifests})
}

func (s *HTTPServer) findRun(c *gin.Context) (Run, bool) {
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return Run{}, false
	}
	return run, true
}

func statusFor(err error) int {
	if errors.Is(err, ErrInvalidParameter) || errors.Is(err, strategy.ErrInvalidParameter) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
