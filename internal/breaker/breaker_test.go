package breaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crypto-dashboard-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker() (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	b := New(DefaultThreshold, DefaultCooldown)
	b.now = clock.Now
	return b, clock
}

func hardError() error {
	return models.NewHTTPError(500, "internal server error", 0)
}

func TestBreakerOpensAfterThresholdFailures(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < DefaultThreshold-1; i++ {
		b.Record(hardError())
		_, allowed := b.Allow()
		assert.True(t, allowed, "breaker must stay closed below the threshold")
	}

	b.Record(hardError())
	retryAfter, allowed := b.Allow()
	assert.False(t, allowed, "breaker must open at the threshold")
	assert.Greater(t, retryAfter, time.Duration(0), "open breaker must suggest a positive retry-after")
	assert.LessOrEqual(t, retryAfter, DefaultCooldown)
	assert.Equal(t, Open, b.State())
}

func TestBreakerAutoClosesAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < DefaultThreshold; i++ {
		b.Record(hardError())
	}
	_, allowed := b.Allow()
	require.False(t, allowed)

	// Just before expiry it is still open, with a shrinking retry-after.
	clock.Advance(DefaultCooldown - time.Second)
	retryAfter, allowed := b.Allow()
	require.False(t, allowed)
	assert.Equal(t, time.Second, retryAfter)

	// At expiry the next attempt goes through; no half-open probing.
	clock.Advance(time.Second)
	_, allowed = b.Allow()
	assert.True(t, allowed, "breaker must close once the cooldown has elapsed")
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures(), "auto-close must reset the failure count")
}

func TestTimeoutsNeverCountAsFailures(t *testing.T) {
	b, _ := newTestBreaker()

	// N > threshold consecutive timeouts must leave the breaker closed.
	for i := 0; i < DefaultThreshold+3; i++ {
		b.Record(models.NewTimeoutError(5 * time.Second))
	}

	_, allowed := b.Allow()
	assert.True(t, allowed, "timeouts must not trip the breaker")
	assert.Equal(t, 0, b.Failures())
}

func TestCanceledCallsNeverCountAsFailures(t *testing.T) {
	b, _ := newTestBreaker()

	// Superseded in-flight requests surface context.Canceled, often wrapped.
	// None of them says anything about backend health.
	for i := 0; i < DefaultThreshold+3; i++ {
		b.Record(context.Canceled)
		b.Record(fmt.Errorf("signals fetch aborted: %w", context.Canceled))
	}

	_, allowed := b.Allow()
	assert.True(t, allowed, "cancellations must not trip the breaker")
	assert.Equal(t, 0, b.Failures())

	// A cancellation between hard failures must not reset the count either.
	for i := 0; i < DefaultThreshold-1; i++ {
		b.Record(hardError())
	}
	b.Record(context.Canceled)
	assert.Equal(t, DefaultThreshold-1, b.Failures())
}

func TestSyntheticCircuitOpenErrorsDoNotRecount(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < DefaultThreshold; i++ {
		b.Record(hardError())
	}
	require.Equal(t, Open, b.State())

	// Short-circuited calls report the breaker's own error back; that must
	// not push lastFailure forward and extend the cooldown.
	before := b.Failures()
	b.Record(models.NewCircuitOpenError(10 * time.Second))
	assert.Equal(t, before, b.Failures())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < DefaultThreshold-1; i++ {
		b.Record(hardError())
	}
	b.Record(nil)
	assert.Equal(t, 0, b.Failures(), "a success must reset the count immediately")

	// The previous near-trip must not linger: it takes a full run of
	// failures to open again.
	for i := 0; i < DefaultThreshold-1; i++ {
		b.Record(hardError())
	}
	_, allowed := b.Allow()
	assert.True(t, allowed)
}

func TestManualReset(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < DefaultThreshold; i++ {
		b.Record(hardError())
	}
	require.Equal(t, Open, b.State())

	b.Reset()
	_, allowed := b.Allow()
	assert.True(t, allowed)
	assert.Equal(t, Closed, b.State())
}
