package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/macross/internal/backtest"
	"github.com/skalibog/macross/internal/config"
	"github.com/skalibog/macross/internal/series"
	"github.com/skalibog/macross/pkg/models"
)

// fakeInflux отвечает на /health и собирает тела запросов /api/v2/write
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
	fail   bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"influxdb","message":"ready for queries and writes","status":"pass","checks":[],"version":"v2.7.0","commit":"abc"}`)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
		if f.fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":"invalid","message":"bad point"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func newTestStorage(t *testing.T, fake *fakeInflux) *InfluxDBStorage {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewInfluxDBStorage(context.Background(), config.StorageConfig{
		URL:          srv.URL,
		Token:        "token",
		Organization: "org",
		Bucket:       "macross",
		Lookback:     "-30d",
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func testCandles() []*models.Candle {
	closes := []float64{10, 10, 10, 12, 12, 12, 8, 8, 8, 8}
	out := make([]*models.Candle, len(closes))
	for i, c := range closes {
		out[i] = &models.Candle{
			Symbol:   "BTCUSDT",
			Interval: "1d",
			OpenTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
			Volume:   1,
		}
	}
	return out
}

func testRun(t *testing.T) *backtest.Result {
	t.Helper()
	res, err := backtest.Execute(series.FromCandles(testCandles()), backtest.Params{
		Symbol:         "BTCUSDT",
		Interval:       "1d",
		ShortWindow:    2,
		LongWindow:     4,
		InitialCapital: 100000,
	})
	require.NoError(t, err)
	return res
}

func TestCandlePoint(t *testing.T) {
	c := testCandles()[3]
	line := write.PointToLineProtocol(candlePoint(c), time.Second)

	assert.True(t, strings.HasPrefix(line, "candles,interval=1d,symbol=BTCUSDT "), line)
	assert.Contains(t, line, "close=12")
	assert.Contains(t, line, fmt.Sprintf(" %d", c.OpenTime.Unix()))
}

func TestRunPointsSkipUndefined(t *testing.T) {
	run := testRun(t)
	points := runPoints(run)

	require.Len(t, points, 2*10+1)

	first := write.PointToLineProtocol(points[0], time.Second)
	assert.True(t, strings.HasPrefix(first, "signals,"), first)
	assert.Contains(t, first, "run_id="+run.ID)
	assert.Contains(t, first, "short_window=2")
	assert.Contains(t, first, "state=0i")
	assert.NotContains(t, first, "short_avg")
	assert.NotContains(t, first, "long_avg")

	firstPortfolio := write.PointToLineProtocol(points[1], time.Second)
	assert.True(t, strings.HasPrefix(firstPortfolio, "portfolio,"), firstPortfolio)
	assert.Contains(t, firstPortfolio, "cash=100000")
	assert.NotContains(t, firstPortfolio, "returns=")

	entry := write.PointToLineProtocol(points[2*3], time.Second)
	assert.Contains(t, entry, "transition=1i")
	assert.Contains(t, entry, "long_avg=10.5")

	summary := write.PointToLineProtocol(points[len(points)-1], time.Second)
	assert.True(t, strings.HasPrefix(summary, "runs,"), summary)
	assert.Contains(t, summary, "final_total=96000")
	assert.Contains(t, summary, "entries=1i")
}

func TestCandlesQuery(t *testing.T) {
	q := candlesQuery("macross", "-30d", "BTCUSDT", "4h", 250)

	assert.Contains(t, q, `from(bucket: "macross")`)
	assert.Contains(t, q, "range(start: -30d)")
	assert.Contains(t, q, `r.symbol == "BTCUSDT"`)
	assert.Contains(t, q, `r.interval == "4h"`)
	assert.Contains(t, q, "tail(n: 250)")
}

func TestGetIntervalDuration(t *testing.T) {
	assert.Equal(t, 4*time.Hour, getIntervalDuration("4h"))
	assert.Equal(t, 7*24*time.Hour, getIntervalDuration("1w"))
	assert.Equal(t, 24*time.Hour, getIntervalDuration("unknown"))
}

func TestSaveRunAndCandles(t *testing.T) {
	fake := &fakeInflux{}
	store := newTestStorage(t, fake)
	ctx := context.Background()

	require.NoError(t, store.SaveCandles(ctx, testCandles()))
	require.NoError(t, store.SaveRun(ctx, testRun(t)))

	body := fake.body()
	assert.Contains(t, body, "candles,interval=1d,symbol=BTCUSDT")
	assert.Contains(t, body, "signals,")
	assert.Contains(t, body, "portfolio,")
	assert.Contains(t, body, "runs,")
}

func TestSaveRunError(t *testing.T) {
	fake := &fakeInflux{fail: true}
	store := newTestStorage(t, fake)

	err := store.SaveRun(context.Background(), testRun(t))
	assert.Error(t, err)
}

type staticSource struct {
	candles []*models.Candle
	err     error
}

func (s staticSource) GetCandles(context.Context, string, string, int) ([]*models.Candle, error) {
	return s.candles, s.err
}

func TestMirrorCopiesCandles(t *testing.T) {
	fake := &fakeInflux{}
	store := newTestStorage(t, fake)

	candles, err := store.Mirror(staticSource{candles: testCandles()}).GetCandles(context.Background(), "BTCUSDT", "1d", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 10)
	assert.Contains(t, fake.body(), "candles,interval=1d,symbol=BTCUSDT")

	boom := errors.New("boom")
	_, err = store.Mirror(staticSource{err: boom}).GetCandles(context.Background(), "BTCUSDT", "1d", 10)
	assert.ErrorIs(t, err, boom)
}

func TestMirrorIgnoresWriteFailure(t *testing.T) {
	fake := &fakeInflux{fail: true}
	store := newTestStorage(t, fake)

	candles, err := store.Mirror(staticSource{candles: testCandles()}).GetCandles(context.Background(), "BTCUSDT", "1d", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 10)
}
