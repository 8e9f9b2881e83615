package scheduler

import (
	"time"

	"crypto-dashboard-go/internal/models"
)

// rateLimitFloor is the minimum pause after an HTTP 429, regardless of which
// queue was throttled. The backend's own retry-after hint can only raise it.
const rateLimitFloor = time.Minute

// nextDelay computes the delay before the next tick of a queue, as a pure
// function of the previous delay, the queue's nominal cadence and ceiling, and
// the tick's error classification. It reports whether the delay was caused by
// rate limiting so the caller can surface the flag to the UI.
//
// Rules:
//   - success resets to the nominal cadence and clears the flag
//   - 429 jumps to max(rateLimitFloor, retry-after hint), capped at the ceiling
//   - any other failure (5xx, network, timeout) doubles the previous delay,
//     capped at the ceiling
func nextDelay(prev, nominal, ceiling time.Duration, err error) (delay time.Duration, rateLimited bool) {
	if err == nil {
		return nominal, false
	}

	if models.IsRateLimited(err) {
		delay = rateLimitFloor
		if apiErr, ok := models.AsAPIError(err); ok && apiErr.RetryAfter > delay {
			delay = apiErr.RetryAfter
		}
		if delay > ceiling {
			delay = ceiling
		}
		return delay, true
	}

	delay = prev * 2
	if delay < nominal {
		delay = nominal
	}
	if delay > ceiling {
		delay = ceiling
	}
	return delay, false
}
