package persistence

import "crypto-dashboard-go/internal/models"

// CachedView is the subset of the dashboard mirrored to local storage so a
// restart can render something immediately while the first fetches are in
// flight. It is a warm-start cache only: backend values always override it on
// reconciliation.
type CachedView struct {
	Watchlist []models.WatchlistItem `json:"watchlist,omitempty"`
	TopCoins  []models.TopCoin       `json:"top_coins,omitempty"`
	Dashboard *models.DashboardState `json:"dashboard,omitempty"`
	SavedAt   int64                  `json:"saved_at"` // Unix ms
}

// ViewRepository abstracts the local key-value store holding the cached view.
type ViewRepository interface {
	// SaveView atomically replaces the cached view.
	SaveView(view *CachedView) error

	// LoadView loads the cached view. When nothing has been cached yet it
	// returns (nil, nil).
	LoadView() (*CachedView, error)

	// Close gracefully closes the underlying database.
	Close() error
}
