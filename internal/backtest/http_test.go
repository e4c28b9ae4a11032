package backtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/strategy"
)

func newTestHTTPServer(t *testing.T) (*HTTPServer, *Service) {
	t.Helper()
	svc, provider := newTestService(t)
	_ = provider
	srv, err := NewHTTPServer(HTTPConfig{
		Service:  svc,
		Results:  svc.store,
		Provider: svc.provider,
	})
	require.NoError(t, err)
	return srv, svc
}

func doJSON(t *testing.T, srv *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHTTPStrategies(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/backtest/strategies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Kinds []string `json:"kinds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{"ma_crossover", "mean_reversion", "momentum"}, resp.Kinds)
}

func TestHTTPRunLifecycle(t *testing.T) {
	srv, svc := newTestHTTPServer(t)

	// 同步执行一条回测，再通过 HTTP 读回。
	run, _, err := svc.Execute(context.Background(), RunRequest{
		Symbol:   "BTCUSDT",
		StartTS:  1000,
		EndTS:    5000,
		Strategy: strategy.Spec{Kind: strategy.KindMACrossover, Params: json.RawMessage(`{"fast":2,"slow":3}`)},
	})
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), RunStatusDone)

	rec = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+run.ID+"/equity", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+run.ID+"/export/metrics.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sharpe Ratio")
}

func TestHTTPRunNotFound(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/backtest/runs/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPRunStartValidation(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	// 缺少必填字段
	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", `{"symbol": "BTCUSDT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 参数非法（fast >= slow）
	rec = doJSON(t, srv, http.MethodPost, "/api/backtest/runs", `{
		"symbol": "BTCUSDT", "start_ts": 1000, "end_ts": 5000,
		"strategy": {"kind": "ma_crossover", "params": {"fast": 50, "slow": 20}}
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPRunStartAccepted(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", `{
		"symbol": "BTCUSDT", "start_ts": 1000, "end_ts": 5000,
		"strategy": {"kind": "momentum", "params": {"lookback": 1}}
	}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), RunStatusPending)
}

func TestHTTPGrid(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/grid", `{
		"symbol": "BTCUSDT", "start_ts": 1000, "end_ts": 5000,
		"specs": [
			{"kind": "momentum", "params": {"lookback": 1}},
			{"kind": "momentum", "params": {"lookback": 2}}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []GridEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "momentum_1", resp.Entries[0].Name)
}

func TestHTTPDatasetRoutesAbsentWithoutService(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/dataset/manifest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
