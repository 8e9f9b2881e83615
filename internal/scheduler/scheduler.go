package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crypto-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// Fetcher is the slice of the API client the scheduler needs.
type Fetcher interface {
	FetchSignals(ctx context.Context, symbol string) (*models.StrategyDecision, error)
	FetchTopCoins(ctx context.Context, symbols []string) ([]models.TopCoin, error)
}

// Sink receives refreshed data. The dashboard store implements it.
type Sink interface {
	ApplySignal(symbol string, decision *models.StrategyDecision)
	MergeTopCoins(coins []models.TopCoin)
}

// Config holds the cadences and batching discipline of both queues.
type Config struct {
	FastInterval time.Duration // target cadence for trade-enabled symbols
	SlowInterval time.Duration // target cadence for everything else
	FastStagger  time.Duration // delay between fast batches
	SlowStagger  time.Duration // delay between slow batches
	FastBatch    int
	SlowBatch    int
	// CapMultiplier bounds backoff: fast ceiling = multiplier × rateLimitFloor,
	// slow ceiling = multiplier × SlowInterval.
	CapMultiplier          int
	SnapshotEverySlowTicks int // every Nth slow tick refreshes the unfiltered snapshot
}

// DefaultConfig mirrors the cadences the dashboard has always used.
func DefaultConfig() Config {
	return Config{
		FastInterval:           15 * time.Second,
		SlowInterval:           60 * time.Second,
		FastStagger:            time.Second,
		SlowStagger:            2 * time.Second,
		FastBatch:              1,
		SlowBatch:              1,
		CapMultiplier:          4,
		SnapshotEverySlowTicks: 3,
	}
}

// Status is a point-in-time view of the scheduler for the UI and metrics.
type Status struct {
	FastBackoff     time.Duration
	SlowBackoff     time.Duration
	RateLimited     bool
	FastPausedUntil time.Time
	ActiveJobs      int
	FastQueueLen    int
	SlowQueueLen    int
}

// Scheduler runs two independent self-rescheduling polling loops. Each tick
// reschedules itself on completion, so runs never overlap within a queue and a
// slow tick can never starve the timer the way a fixed-rate interval would.
//
// Exactly one timer chain exists per queue. Every armed tick carries the
// queue's generation; SetWatchlist bumps it, so a tick from a superseded chain
// exits at entry without doing work and without re-arming. While a tick is in
// flight SetWatchlist never arms a timer of its own either: the running tick
// observes the generation change on completion and reschedules immediately
// itself. Together these keep the chain single even when a queue change races
// a firing timer.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	sink    Sink
	log     *zap.SugaredLogger

	mu           sync.Mutex
	fastQueue    []string
	slowQueue    []string
	fastSig      string
	slowSig      string
	fastGen      uint64
	slowGen      uint64
	fastInFlight bool
	slowInFlight bool
	fastDelay    time.Duration
	slowDelay    time.Duration
	rateLimited  bool
	pausedUntil  time.Time
	slowTicks    int
	fastTimer    *time.Timer
	slowTimer    *time.Timer
	running      bool

	// activeJobs counts concurrently in-flight ticks across both queues so the
	// UI can show a single aggregated "updating" indicator.
	activeJobs atomic.Int32

	// injected for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a scheduler. Sink and fetcher must be non-nil.
func New(cfg Config, fetcher Fetcher, sink Sink, log *zap.SugaredLogger) *Scheduler {
	if cfg.FastBatch <= 0 {
		cfg.FastBatch = 1
	}
	if cfg.SlowBatch <= 0 {
		cfg.SlowBatch = 1
	}
	if cfg.CapMultiplier <= 0 {
		cfg.CapMultiplier = 4
	}
	if cfg.SnapshotEverySlowTicks <= 0 {
		cfg.SnapshotEverySlowTicks = 3
	}
	return &Scheduler{
		cfg:       cfg,
		fetcher:   fetcher,
		sink:      sink,
		log:       log,
		fastDelay: cfg.FastInterval,
		slowDelay: cfg.SlowInterval,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Scheduler) fastCeiling() time.Duration {
	return time.Duration(s.cfg.CapMultiplier) * rateLimitFloor
}

func (s *Scheduler) slowCeiling() time.Duration {
	return time.Duration(s.cfg.CapMultiplier) * s.cfg.SlowInterval
}

// armFastLocked arms the fast timer with the current generation.
// Callers must hold s.mu.
func (s *Scheduler) armFastLocked(ctx context.Context, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	gen := s.fastGen
	s.fastTimer = time.AfterFunc(delay, func() { s.fastTick(ctx, gen) })
}

// armSlowLocked arms the slow timer with the current generation.
// Callers must hold s.mu.
func (s *Scheduler) armSlowLocked(ctx context.Context, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	gen := s.slowGen
	s.slowTimer = time.AfterFunc(delay, func() { s.slowTick(ctx, gen) })
}

// pauseFloorLocked raises delay to the remainder of the rate-limit pause, so
// nothing on the fast queue fires inside the window. Callers must hold s.mu.
func (s *Scheduler) pauseFloorLocked(delay time.Duration) time.Duration {
	if s.pausedUntil.IsZero() {
		return delay
	}
	if remaining := s.pausedUntil.Sub(s.now()); remaining > delay {
		return remaining
	}
	return delay
}

// Start arms both timers. The context bounds all fetches issued by ticks.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.armFastLocked(ctx, s.fastDelay)
	s.armSlowLocked(ctx, s.slowDelay)
	s.log.Infow("refresh scheduler started",
		"fast_interval", s.cfg.FastInterval, "slow_interval", s.cfg.SlowInterval)
}

// Stop clears both timers. In-flight requests are not aborted; the HTTP
// client's own timeout is the only cancellation path for those.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.fastTimer != nil {
		s.fastTimer.Stop()
	}
	if s.slowTimer != nil {
		s.slowTimer.Stop()
	}
	s.log.Info("refresh scheduler stopped")
}

// SetWatchlist recomputes queue membership from the current symbol set and
// trade-enabled flags. A queue is only rescheduled when its symbol-set
// signature actually changed, to avoid pointless timer churn. When that
// queue's tick is in flight the reschedule is left to the tick itself, and an
// active rate-limit pause is never cut short.
func (s *Scheduler) SetWatchlist(ctx context.Context, items []models.WatchlistItem) {
	fast := make([]string, 0, len(items))
	slow := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.IsDeleted || seen[it.Symbol] {
			continue
		}
		seen[it.Symbol] = true
		if it.TradeEnabled {
			fast = append(fast, it.Symbol)
		} else {
			slow = append(slow, it.Symbol)
		}
	}
	sort.Strings(fast)
	sort.Strings(slow)
	fastSig := strings.Join(fast, ",")
	slowSig := strings.Join(slow, ",")

	s.mu.Lock()
	defer s.mu.Unlock()

	if fastSig != s.fastSig {
		s.fastQueue = fast
		s.fastSig = fastSig
		s.fastGen++
		if s.running && !s.fastInFlight {
			if s.fastTimer != nil {
				s.fastTimer.Stop()
			}
			s.armFastLocked(ctx, s.pauseFloorLocked(0))
		}
		s.log.Infow("fast queue recomputed", "symbols", len(fast))
	}
	if slowSig != s.slowSig {
		s.slowQueue = slow
		s.slowSig = slowSig
		s.slowGen++
		if s.running && !s.slowInFlight {
			if s.slowTimer != nil {
				s.slowTimer.Stop()
			}
			s.armSlowLocked(ctx, 0)
		}
		s.log.Infow("slow queue recomputed", "symbols", len(slow))
	}
}

// Snapshot returns the current scheduler status.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		FastBackoff:     s.fastDelay,
		SlowBackoff:     s.slowDelay,
		RateLimited:     s.rateLimited,
		FastPausedUntil: s.pausedUntil,
		ActiveJobs:      int(s.activeJobs.Load()),
		FastQueueLen:    len(s.fastQueue),
		SlowQueueLen:    len(s.slowQueue),
	}
}

// fastTick refreshes signals for trade-enabled symbols and opportunistically
// refreshes the top-coins snapshot filtered to them, then reschedules itself.
func (s *Scheduler) fastTick(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if gen != s.fastGen || s.fastInFlight {
		// Superseded chain, or a current-generation tick is already running.
		s.mu.Unlock()
		return
	}
	s.fastInFlight = true
	symbols := append([]string(nil), s.fastQueue...)
	prev := s.fastDelay
	s.mu.Unlock()

	s.activeJobs.Add(1)
	defer s.activeJobs.Add(-1)

	tickErr := s.refreshSymbols(ctx, symbols, s.cfg.FastBatch, s.cfg.FastStagger)

	// Opportunistic snapshot refresh, filtered to the fast queue.
	if len(symbols) > 0 {
		coins, err := s.fetcher.FetchTopCoins(ctx, symbols)
		if err == nil {
			s.sink.MergeTopCoins(coins)
		} else if tickErr == nil || models.IsRateLimited(err) {
			// A 429 must win the classification: it carries the retry-after
			// hint that decides the pause length.
			tickErr = err
		}
	}

	delay, limited := nextDelay(prev, s.cfg.FastInterval, s.fastCeiling(), tickErr)

	s.mu.Lock()
	s.fastInFlight = false
	s.fastDelay = delay
	s.rateLimited = limited
	if limited {
		s.pausedUntil = s.now().Add(delay)
		s.log.Warnw("fast queue rate limited", "paused_until", s.pausedUntil, "backoff", delay)
	} else {
		s.pausedUntil = time.Time{}
	}
	if s.running {
		next := delay
		if gen != s.fastGen {
			// The queue changed while this tick ran; refresh right away.
			next = 0
		}
		s.armFastLocked(ctx, s.pauseFloorLocked(next))
	}
	s.mu.Unlock()
}

// slowTick refreshes signals for the remaining symbols; every Nth run it also
// refreshes the unfiltered snapshot to catch symbols on neither queue.
func (s *Scheduler) slowTick(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if gen != s.slowGen || s.slowInFlight {
		s.mu.Unlock()
		return
	}
	s.slowInFlight = true
	symbols := append([]string(nil), s.slowQueue...)
	prev := s.slowDelay
	s.slowTicks++
	fullSnapshot := s.slowTicks%s.cfg.SnapshotEverySlowTicks == 0
	s.mu.Unlock()

	s.activeJobs.Add(1)
	defer s.activeJobs.Add(-1)

	tickErr := s.refreshSymbols(ctx, symbols, s.cfg.SlowBatch, s.cfg.SlowStagger)

	if fullSnapshot {
		coins, err := s.fetcher.FetchTopCoins(ctx, nil)
		if err == nil {
			s.sink.MergeTopCoins(coins)
		} else if tickErr == nil || models.IsRateLimited(err) {
			tickErr = err
		}
	}

	delay, _ := nextDelay(prev, s.cfg.SlowInterval, s.slowCeiling(), tickErr)

	s.mu.Lock()
	s.slowInFlight = false
	s.slowDelay = delay
	if s.running {
		next := delay
		if gen != s.slowGen {
			next = 0
		}
		s.armSlowLocked(ctx, next)
	}
	s.mu.Unlock()
}

// refreshSymbols walks the queue in batches. Within a batch, calls fan out and
// the tick waits for all of them to settle; batch N+1 never starts before
// batch N finished and the stagger delay elapsed. Response-arrival order
// within a batch is not guaranteed and the sink must not rely on it.
func (s *Scheduler) refreshSymbols(ctx context.Context, symbols []string, batch int, stagger time.Duration) error {
	var firstErr error
	for i := 0; i < len(symbols); i += batch {
		if i > 0 {
			s.sleep(ctx, stagger)
		}
		end := i + batch
		if end > len(symbols) {
			end = len(symbols)
		}

		var wg sync.WaitGroup
		errCh := make(chan error, end-i)
		for _, symbol := range symbols[i:end] {
			wg.Add(1)
			go func(sym string) {
				defer wg.Done()
				decision, err := s.fetcher.FetchSignals(ctx, sym)
				if err != nil {
					errCh <- err
					return
				}
				if decision != nil {
					s.sink.ApplySignal(sym, decision)
				}
			}(symbol)
		}
		wg.Wait()
		close(errCh)

		for err := range errCh {
			// Rate limiting dominates everything else seen in this tick.
			if firstErr == nil || models.IsRateLimited(err) {
				firstErr = err
			}
		}
	}
	return firstErr
}
