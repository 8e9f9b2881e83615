package store

import (
	"time"

	"crypto-dashboard-go/internal/persistence"
)

// ImportCache seeds the store from the warm-start cache. Cached data is the
// weakest source there is: it never overrides anything already fetched, and
// the dashboard view it installs is marked SourceCache so the UI can flag it.
func (s *Store) ImportCache(view *persistence.CachedView) {
	if view == nil {
		return
	}
	if len(view.Watchlist) > 0 {
		s.SetWatchlist(view.Watchlist)
	}

	s.mu.Lock()
	for _, c := range view.TopCoins {
		if c.InstrumentName == "" {
			continue
		}
		if _, ok := s.topCoins[c.InstrumentName]; !ok {
			s.topCoins[c.InstrumentName] = c
		}
	}
	if view.Dashboard != nil && s.source == SourceNone {
		s.dashboard = *view.Dashboard
		s.source = SourceCache
		s.refreshedAt = time.UnixMilli(view.SavedAt)
	}
	s.mu.Unlock()
	s.notify()
}

// ExportCache captures the mirrorable subset of the current view.
func (s *Store) ExportCache() *persistence.CachedView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := &persistence.CachedView{SavedAt: s.now().UnixMilli()}
	for _, it := range s.watchlist {
		view.Watchlist = append(view.Watchlist, it)
	}
	for _, c := range s.topCoins {
		view.TopCoins = append(view.TopCoins, c)
	}
	if s.source == SourceSnapshot || s.source == SourceFull {
		d := s.dashboard
		view.Dashboard = &d
	}
	return view
}
