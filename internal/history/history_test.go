package history

import (
	"context"
	"testing"
	"time"

	"crypto-dashboard-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testKlines(startMs int64, n int) []models.Kline {
	out := make([]models.Kline, n)
	for i := range out {
		out[i] = models.Kline{
			OpenTime: startMs + int64(i)*60_000,
			Open:     100 + float64(i),
			High:     101 + float64(i),
			Low:      99 + float64(i),
			Close:    100.5 + float64(i),
			Volume:   10,
		}
	}
	return out
}

func TestBackfillDownloadsAndCaches(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	var fetches int
	b := &Backfiller{dir: t.TempDir(), log: zap.NewNop().Sugar()}
	b.fetch = func(_ context.Context, symbol, interval string, startMs int64) ([]models.Kline, error) {
		fetches++
		assert.Equal(t, "BTCUSDT", symbol)
		assert.Equal(t, "1m", interval)
		return testKlines(startMs, 30), nil
	}

	got, err := b.Backfill(context.Background(), "BTCUSDT", "1m", start, end)
	require.NoError(t, err)
	require.Len(t, got, 30)
	assert.Equal(t, 1, fetches)

	// The second call must be served from the CSV cache.
	again, err := b.Backfill(context.Background(), "BTCUSDT", "1m", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches, "cached series must not trigger a download")
	assert.Equal(t, got, again)
}

func TestBackfillStopsAtEnd(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	b := &Backfiller{dir: t.TempDir(), log: zap.NewNop().Sugar()}
	b.fetch = func(_ context.Context, _, _ string, startMs int64) ([]models.Kline, error) {
		return testKlines(startMs, 30), nil
	}

	got, err := b.Backfill(context.Background(), "ETHUSDT", "1m", start, end)
	require.NoError(t, err)
	assert.Len(t, got, 10, "klines at or past the end time must be dropped")
}

func TestCSVRoundTrip(t *testing.T) {
	path := t.TempDir() + "/BTCUSDT_1m.csv"
	in := testKlines(1735689600000, 5)
	require.NoError(t, saveCSV(path, in))

	out, err := loadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
