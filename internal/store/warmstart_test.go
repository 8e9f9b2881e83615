package store

import (
	"testing"

	"crypto-dashboard-go/internal/models"
	"crypto-dashboard-go/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportCacheSeedsEmptyStoreOnly(t *testing.T) {
	s := newTestStore()
	s.ImportCache(&persistence.CachedView{
		Watchlist: []models.WatchlistItem{{ID: 1, Symbol: "BTCUSDT"}},
		TopCoins:  []models.TopCoin{{InstrumentName: "BTCUSDT", Price: 48000}},
		Dashboard: &models.DashboardState{TotalValue: 777},
		SavedAt:   1700000000000,
	})

	_, source, _ := s.Dashboard()
	assert.Equal(t, SourceCache, source)
	c, ok := s.TopCoin("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 48000.0, c.Price)

	// Live data overrides the cache in every direction.
	s.MergeTopCoins([]models.TopCoin{{InstrumentName: "BTCUSDT", Price: 50000}})
	s.ApplySnapshot(&models.DashboardState{TotalValue: 900})

	c, _ = s.TopCoin("BTCUSDT")
	assert.Equal(t, 50000.0, c.Price)
	state, source, _ := s.Dashboard()
	assert.Equal(t, SourceSnapshot, source)
	assert.Equal(t, 900.0, state.TotalValue)

	// A second import must not clobber live data.
	s.ImportCache(&persistence.CachedView{
		TopCoins:  []models.TopCoin{{InstrumentName: "BTCUSDT", Price: 1}},
		Dashboard: &models.DashboardState{TotalValue: 1},
	})
	c, _ = s.TopCoin("BTCUSDT")
	assert.Equal(t, 50000.0, c.Price)
	_, source, _ = s.Dashboard()
	assert.Equal(t, SourceSnapshot, source)
}

func TestExportCacheRoundTrip(t *testing.T) {
	s := newTestStore()
	s.SetWatchlist([]models.WatchlistItem{{ID: 1, Symbol: "BTCUSDT"}})
	s.MergeTopCoins([]models.TopCoin{{InstrumentName: "BTCUSDT", Price: 50000}})
	s.ApplyFullState(&models.DashboardState{TotalValue: 1234})

	view := s.ExportCache()
	require.NotNil(t, view.Dashboard)
	assert.Equal(t, 1234.0, view.Dashboard.TotalValue)
	assert.Len(t, view.Watchlist, 1)
	assert.Len(t, view.TopCoins, 1)
	assert.NotZero(t, view.SavedAt)

	fresh := newTestStore()
	fresh.ImportCache(view)
	_, source, _ := fresh.Dashboard()
	assert.Equal(t, SourceCache, source)
	assert.Len(t, fresh.Watchlist(), 1)
}

func TestExportCacheOmitsCacheSourcedDashboard(t *testing.T) {
	s := newTestStore()
	s.ImportCache(&persistence.CachedView{Dashboard: &models.DashboardState{TotalValue: 5}})

	// Re-exporting a cache-sourced view would let stale data outlive its
	// timestamp; only live-fetched dashboards are mirrored back out.
	view := s.ExportCache()
	assert.Nil(t, view.Dashboard)
}
