package store

import (
	"sort"
	"sync"
	"time"

	"crypto-dashboard-go/internal/models"
	"crypto-dashboard-go/internal/pairing"

	"go.uber.org/zap"
)

// Source says where the current dashboard view came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceCache    Source = "cache"    // badger warm-start mirror
	SourceSnapshot Source = "snapshot" // pre-aggregated, possibly stale
	SourceFull     Source = "full"     // authoritative state
)

// Store is the aggregated client-side view of the dashboard. The scheduler,
// the API accessors and the warm-start cache all write into it; the renderer
// and the websocket hub read consistent copies out of it.
type Store struct {
	log *zap.SugaredLogger

	mu          sync.RWMutex
	watchlist   map[string]models.WatchlistItem
	topCoins    map[string]models.TopCoin
	dashboard   models.DashboardState
	source      Source
	refreshedAt time.Time
	openOrders  []models.Order
	history     []models.Order
	positions   []models.OpenPosition
	realizedPnL float64
	alertRatios map[string]float64
	expectedTP  []models.ExpectedTakeProfitEntry
	monitoring  []models.MonitoringStatus

	onChange func()
	now      func() time.Time
}

// New creates an empty store.
func New(log *zap.SugaredLogger) *Store {
	return &Store{
		log:         log,
		watchlist:   make(map[string]models.WatchlistItem),
		topCoins:    make(map[string]models.TopCoin),
		source:      SourceNone,
		alertRatios: make(map[string]float64),
		now:         time.Now,
	}
}

// OnChange registers a single callback fired after every mutation, outside the
// store's lock. The websocket hub uses it to push view updates.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SetWatchlist replaces the watchlist with the canonical row per symbol.
// The backend may hold several rows for one symbol; selection prefers
// non-deleted rows, then alert-enabled ones, then the most recently updated,
// then the highest id.
func (s *Store) SetWatchlist(items []models.WatchlistItem) {
	canonical := make(map[string]models.WatchlistItem, len(items))
	for _, it := range items {
		cur, ok := canonical[it.Symbol]
		if !ok || preferWatchlistRow(it, cur) {
			canonical[it.Symbol] = it
		}
	}
	if len(canonical) < len(items) {
		s.log.Debugw("collapsed duplicate watchlist rows",
			"rows", len(items), "symbols", len(canonical))
	}

	s.mu.Lock()
	s.watchlist = canonical
	s.mu.Unlock()
	s.notify()
}

// preferWatchlistRow reports whether a should replace b as the canonical row.
func preferWatchlistRow(a, b models.WatchlistItem) bool {
	if a.IsDeleted != b.IsDeleted {
		return !a.IsDeleted
	}
	if a.AlertEnabled != b.AlertEnabled {
		return a.AlertEnabled
	}
	if a.UpdatedAt != b.UpdatedAt {
		return a.UpdatedAt > b.UpdatedAt
	}
	return a.ID > b.ID
}

// Watchlist returns the canonical non-deleted rows sorted by symbol.
func (s *Store) Watchlist() []models.WatchlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.WatchlistItem, 0, len(s.watchlist))
	for _, it := range s.watchlist {
		if it.IsDeleted {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ApplySignal attaches a strategy decision to the symbol's market row. The
// backend decision is authoritative; locally recomputed indicators never
// overwrite it.
func (s *Store) ApplySignal(symbol string, decision *models.StrategyDecision) {
	if decision == nil {
		return
	}
	s.mu.Lock()
	coin := s.topCoins[symbol]
	if coin.InstrumentName == "" {
		coin.InstrumentName = symbol
	}
	coin.Decision = decision
	coin.UpdatedAt = s.now().UnixMilli()
	s.topCoins[symbol] = coin
	s.mu.Unlock()
	s.notify()
}

// MergeTopCoins merges a snapshot into the market view field by field. An
// incoming zero where the previous value was non-zero means "unknown this
// round" and keeps the old value, so a partial snapshot never blanks the UI.
// Merging the same snapshot twice is a no-op.
func (s *Store) MergeTopCoins(coins []models.TopCoin) {
	if len(coins) == 0 {
		return
	}
	now := s.now().UnixMilli()

	s.mu.Lock()
	for _, incoming := range coins {
		if incoming.InstrumentName == "" {
			continue
		}
		prev := s.topCoins[incoming.InstrumentName]
		s.topCoins[incoming.InstrumentName] = mergeTopCoin(prev, incoming, now)
	}
	s.mu.Unlock()
	s.notify()
}

func mergeTopCoin(prev, in models.TopCoin, now int64) models.TopCoin {
	out := in
	out.Price = keepNonZero(in.Price, prev.Price)
	out.Volume24h = keepNonZero(in.Volume24h, prev.Volume24h)
	out.PriceChangePercent = keepNonZero(in.PriceChangePercent, prev.PriceChangePercent)
	out.RSI = keepNonZero(in.RSI, prev.RSI)
	out.MAFast = keepNonZero(in.MAFast, prev.MAFast)
	out.MASlow = keepNonZero(in.MASlow, prev.MASlow)
	out.ATR = keepNonZero(in.ATR, prev.ATR)
	out.VolumeRatio = keepNonZero(in.VolumeRatio, prev.VolumeRatio)
	if len(out.ResistanceLevels) == 0 {
		out.ResistanceLevels = prev.ResistanceLevels
	}
	if out.Decision == nil {
		out.Decision = prev.Decision
	}
	out.UpdatedAt = now
	return out
}

func keepNonZero(incoming, prev float64) float64 {
	if incoming == 0 && prev != 0 {
		return prev
	}
	return incoming
}

// TopCoins returns the merged market view sorted by 24h volume, descending.
func (s *Store) TopCoins() []models.TopCoin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TopCoin, 0, len(s.topCoins))
	for _, c := range s.topCoins {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volume24h > out[j].Volume24h })
	return out
}

// TopCoin returns one market row by instrument name.
func (s *Store) TopCoin(symbol string) (models.TopCoin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.topCoins[symbol]
	return c, ok
}

// ApplySnapshot installs a pre-aggregated snapshot for immediate render. It
// never downgrades an authoritative full-state view that already arrived.
func (s *Store) ApplySnapshot(state *models.DashboardState) {
	if state == nil {
		return
	}
	s.mu.Lock()
	if s.source == SourceFull {
		s.mu.Unlock()
		return
	}
	s.dashboard = *state
	s.source = SourceSnapshot
	s.refreshedAt = s.now()
	s.mu.Unlock()
	s.notify()
}

// ApplyFullState installs the authoritative dashboard state, overwriting
// whatever snapshot- or cache-derived view was showing. Callers only invoke it
// on a successful fetch, so a failed background refresh leaves the last good
// view untouched.
func (s *Store) ApplyFullState(state *models.DashboardState) {
	if state == nil {
		return
	}
	s.mu.Lock()
	s.dashboard = *state
	s.source = SourceFull
	s.refreshedAt = s.now()
	s.mu.Unlock()
	s.notify()
}

// Dashboard returns the current aggregate view with its provenance and age.
// Age counts from local receive time; the state's own GeneratedAt additionally
// exposes how stale the backend's snapshot was at that point.
func (s *Store) Dashboard() (models.DashboardState, Source, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.source == SourceNone {
		return s.dashboard, s.source, 0
	}
	return s.dashboard, s.source, s.now().Sub(s.refreshedAt)
}

// SetOrders replaces the order lists and rebuilds everything derived from
// them: open positions and the realized P&L total.
func (s *Store) SetOrders(open, history []models.Order) {
	positions := derivePositions(open)
	realized := pairing.RealizedTotal(history)

	s.mu.Lock()
	s.openOrders = open
	s.history = history
	s.positions = positions
	s.realizedPnL = realized
	s.mu.Unlock()
	s.notify()
}

// OpenOrders returns the last fetched open-order list.
func (s *Store) OpenOrders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Order(nil), s.openOrders...)
}

// OrderHistory returns the last fetched executed-order list.
func (s *Store) OrderHistory() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Order(nil), s.history...)
}

// OpenPositions returns the derived entry+TP/SL groupings.
func (s *Store) OpenPositions() []models.OpenPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OpenPosition(nil), s.positions...)
}

// RealizedPnL returns the realized profit total over the order history.
func (s *Store) RealizedPnL() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.realizedPnL
}

// SetAlertRatios replaces the per-symbol alert ratios.
func (s *Store) SetAlertRatios(ratios []models.AlertRatio) {
	m := make(map[string]float64, len(ratios))
	for _, r := range ratios {
		m[r.Symbol] = r.Ratio
	}
	s.mu.Lock()
	s.alertRatios = m
	s.mu.Unlock()
	s.notify()
}

// AlertRatio returns the alert ratio for one symbol.
func (s *Store) AlertRatio(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.alertRatios[symbol]
	return r, ok
}

// SetExpectedTakeProfit replaces the expected-TP report rows.
func (s *Store) SetExpectedTakeProfit(entries []models.ExpectedTakeProfitEntry) {
	s.mu.Lock()
	s.expectedTP = entries
	s.mu.Unlock()
	s.notify()
}

// ExpectedTakeProfit returns the expected-TP report rows.
func (s *Store) ExpectedTakeProfit() []models.ExpectedTakeProfitEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ExpectedTakeProfitEntry(nil), s.expectedTP...)
}

// SetMonitoring replaces the ops telemetry rows.
func (s *Store) SetMonitoring(rows []models.MonitoringStatus) {
	s.mu.Lock()
	s.monitoring = rows
	s.mu.Unlock()
	s.notify()
}

// Monitoring returns the ops telemetry rows.
func (s *Store) Monitoring() []models.MonitoringStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.MonitoringStatus(nil), s.monitoring...)
}
