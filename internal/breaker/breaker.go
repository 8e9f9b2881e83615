package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"crypto-dashboard-go/internal/models"
)

// State is the observable state of the breaker.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

const (
	// DefaultThreshold is the number of consecutive hard failures that opens the breaker.
	DefaultThreshold = 5
	// DefaultCooldown is how long the breaker stays open after the last recorded failure.
	DefaultCooldown = 30 * time.Second
)

// CircuitBreaker guards the signals endpoint family. It has no half-open state:
// once the cooldown since the last failure elapses it closes again, checked
// lazily on each Allow call rather than by a background timer.
//
// The counters are shared across goroutines (scheduler ticks and manual
// refreshes overlap), so all access goes through the mutex.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time

	now func() time.Time // injected for tests
}

// New creates a breaker with the given threshold and cooldown.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. When the breaker is open it
// returns the remaining cooldown so the caller can synthesize a 503 with a
// retry-after hint. Expiry of the cooldown closes the breaker immediately.
func (b *CircuitBreaker) Allow() (retryAfter time.Duration, allowed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return 0, true
	}

	elapsed := b.now().Sub(b.lastFailure)
	if elapsed >= b.cooldown {
		// Cooldown expired: auto-close, no probing.
		b.failures = 0
		return 0, true
	}

	return b.cooldown - elapsed, false
}

// Record feeds a call outcome into the breaker. A nil error resets the failure
// count immediately. Timeouts are explicitly excluded: a slow-but-completing
// signals call must never trip the breaker. The breaker's own synthetic
// circuit-open error is ignored as well, so short-circuited calls don't
// re-count as failures. Caller-side cancellations say nothing about backend
// health and are ignored too.
func (b *CircuitBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if models.IsTimeout(err) || models.IsCircuitOpen(err) {
		return
	}

	b.failures++
	b.lastFailure = b.now()
}

// Reset force-closes the breaker. Exposed for operator/debug use.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// State returns the current observable state without mutating anything.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures >= b.threshold && b.now().Sub(b.lastFailure) < b.cooldown {
		return Open
	}
	return Closed
}

// Failures returns the current consecutive failure count.
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
