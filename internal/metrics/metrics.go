// Package metrics exposes the daemon's Prometheus metrics:
//   - dashboard_requests_total{operation,outcome} — API calls by result
//     (outcome: ok|http_error|timeout|network|rate_limited|circuit_open)
//   - dashboard_breaker_state                     — signals breaker (0 closed, 1 open)
//   - dashboard_breaker_failures                  — consecutive signals failures
//   - dashboard_backoff_seconds{queue}            — current scheduler backoff
//   - dashboard_rate_limited                      — 1 while the fast queue is paused by a 429
//   - dashboard_active_jobs                       — in-flight scheduler ticks
//   - dashboard_ws_clients                        — connected websocket subscribers
//
// Served at /metrics in Prometheus text exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"crypto-dashboard-go/internal/breaker"
	"crypto-dashboard-go/internal/models"
	"crypto-dashboard-go/internal/scheduler"
)

var (
	mtxRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_requests_total",
			Help: "Backend API requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	mtxBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_breaker_state",
			Help: "Signals circuit breaker state (0 closed, 1 open)",
		},
	)

	mtxBreakerFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_breaker_failures",
			Help: "Consecutive signals failures counted by the breaker",
		},
	)

	mtxBackoff = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_backoff_seconds",
			Help: "Current scheduler backoff per queue",
		},
		[]string{"queue"},
	)

	mtxRateLimited = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_rate_limited",
			Help: "1 while the fast queue is paused by rate limiting",
		},
	)

	mtxActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_active_jobs",
			Help: "Concurrently in-flight scheduler ticks",
		},
	)

	mtxWSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_ws_clients",
			Help: "Connected websocket subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxRequests,
		mtxBreakerState,
		mtxBreakerFailures,
		mtxBackoff,
		mtxRateLimited,
		mtxActiveJobs,
		mtxWSClients,
	)
}

// ObserveRequest records one API call outcome.
func ObserveRequest(operation string, err error) {
	mtxRequests.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	apiErr, ok := models.AsAPIError(err)
	if !ok {
		return "error"
	}
	switch {
	case apiErr.Kind == models.ErrTimeout:
		return "timeout"
	case apiErr.Kind == models.ErrNetworkUnavailable:
		return "network"
	case apiErr.Kind == models.ErrCircuitOpen:
		return "circuit_open"
	case apiErr.Status == 429:
		return "rate_limited"
	default:
		return "http_error"
	}
}

// ObserveBreaker mirrors the signals breaker into gauges.
func ObserveBreaker(cb *breaker.CircuitBreaker) {
	if cb.State() == breaker.Open {
		mtxBreakerState.Set(1)
	} else {
		mtxBreakerState.Set(0)
	}
	mtxBreakerFailures.Set(float64(cb.Failures()))
}

// ObserveScheduler mirrors a scheduler status snapshot into gauges.
func ObserveScheduler(st scheduler.Status) {
	mtxBackoff.WithLabelValues("fast").Set(st.FastBackoff.Seconds())
	mtxBackoff.WithLabelValues("slow").Set(st.SlowBackoff.Seconds())
	if st.RateLimited {
		mtxRateLimited.Set(1)
	} else {
		mtxRateLimited.Set(0)
	}
	mtxActiveJobs.Set(float64(st.ActiveJobs))
}

// ObserveWSClients reports the current subscriber count.
func ObserveWSClients(n int) {
	mtxWSClients.Set(float64(n))
}
