package dataset

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/market"
)

// fakeSource 按请求区间生成确定性 K 线。
type fakeSource struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, _ string, tf Timeframe, start, end int64) ([]market.Candle, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	var out []market.Candle
	d := tf.Duration.Milliseconds()
	for ts := start; ts < end; ts += d {
		price := 100 + float64(ts/d)
		out = append(out, market.Candle{
			OpenTime: ts, CloseTime: ts + d - 1,
			Open: price, High: price, Low: price, Close: price, Volume: 1,
		})
	}
	return out, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestService(t *testing.T, source Source) *Service {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc, err := NewService(ServiceConfig{
		Store:             store,
		Source:            source,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return svc
}

func TestPriceSeriesMaterializesAndCaches(t *testing.T) {
	source := &fakeSource{}
	svc := newTestService(t, source)
	ctx := context.Background()

	day := int64(24 * time.Hour / time.Millisecond)
	start, end := day, 6*day

	series, err := svc.PriceSeries(ctx, "BTCUSDT", "1d", start, end)
	require.NoError(t, err)
	assert.Equal(t, 5, series.Len())
	assert.Equal(t, 101.0, series.At(0).Price)
	firstCalls := source.callCount()
	assert.Positive(t, firstCalls)

	// 第二次命中本地缓存，不再访问数据源。
	again, err := svc.PriceSeries(ctx, "BTCUSDT", "1d", start, end)
	require.NoError(t, err)
	assert.Equal(t, series.Len(), again.Len())
	assert.Equal(t, firstCalls, source.callCount())
}

func TestPriceSeriesRejectsBadRange(t *testing.T) {
	svc := newTestService(t, &fakeSource{})
	_, err := svc.PriceSeries(context.Background(), "BTCUSDT", "1d", 5000, 1000)
	assert.Error(t, err)

	_, err = svc.PriceSeries(context.Background(), "BTCUSDT", "13m", 1000, 5000)
	assert.Error(t, err)
}

func TestPriceSeriesNoSourceNoData(t *testing.T) {
	svc := newTestService(t, nil)
	day := int64(24 * time.Hour / time.Millisecond)
	_, err := svc.PriceSeries(context.Background(), "BTCUSDT", "1d", day, 3*day)
	assert.Error(t, err)
}

func TestSubmitFetchLifecycle(t *testing.T) {
	source := &fakeSource{}
	svc := newTestService(t, source)

	day := int64(24 * time.Hour / time.Millisecond)
	job, err := svc.SubmitFetch(FetchParams{Symbol: "ethusdt", Timeframe: "1d", Start: day, End: 4 * day})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", job.Symbol)
	assert.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		snap, ok := svc.JobSnapshot(job.ID)
		return ok && snap.Status == JobStatusDone
	}, 5*time.Second, 10*time.Millisecond)

	snap, ok := svc.JobSnapshot(job.ID)
	require.True(t, ok)
	assert.Equal(t, 3, snap.Fetched)

	manifests, err := svc.Manifests(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, int64(3), manifests[0].CandleCount)
}

func TestSubmitFetchValidation(t *testing.T) {
	svc := newTestService(t, &fakeSource{})

	_, err := svc.SubmitFetch(FetchParams{Symbol: "", Timeframe: "1d", Start: 1, End: 2})
	assert.Error(t, err)

	_, err = svc.SubmitFetch(FetchParams{Symbol: "BTCUSDT", Timeframe: "bad", Start: 1, End: 2})
	assert.Error(t, err)

	noSource := newTestService(t, nil)
	_, err = noSource.SubmitFetch(FetchParams{Symbol: "BTCUSDT", Timeframe: "1d", Start: 1, End: 2})
	assert.Error(t, err)
}

func TestJobSnapshotMissing(t *testing.T) {
	svc := newTestService(t, &fakeSource{})
	_, ok := svc.JobSnapshot("ghost")
	assert.False(t, ok)
}
