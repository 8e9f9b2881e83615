// Package indicators recomputes a few technical indicators locally from
// backfilled klines. The values are a display fallback for market rows the
// backend has not scored yet; backend-computed figures always win.
package indicators

import (
	"math"

	"crypto-dashboard-go/internal/models"
)

// SMA returns the n-period simple moving average of Close, aligned to ks.
// Indices before the first full window are NaN.
func SMA(ks []models.Kline, n int) []float64 {
	out := make([]float64, len(ks))
	if n <= 0 || len(ks) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range ks {
		sum += ks[i].Close
		if i >= n {
			sum -= ks[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA returns the n-period exponential moving average of Close, seeded with
// the SMA of the first window. Indices before the window are NaN.
func EMA(ks []models.Kline, n int) []float64 {
	out := make([]float64, len(ks))
	if n <= 0 || len(ks) < n {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var seed float64
	for i := 0; i < n; i++ {
		seed += ks[i].Close
		out[i] = math.NaN()
	}
	prev := seed / float64(n)
	out[n-1] = prev
	k := 2.0 / float64(n+1)
	for i := n; i < len(ks); i++ {
		prev = ks[i].Close*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder's smoothing.
// Indices before the first full window are zero.
func RSI(ks []models.Kline, n int) []float64 {
	out := make([]float64, len(ks))
	if n <= 0 || len(ks) == 0 {
		return out
	}
	var gain, loss float64
	for i := 1; i < len(ks); i++ {
		d := ks[i].Close - ks[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				out[i] = rsiValue(gain/float64(n), loss/float64(n))
			}
		} else {
			if d > 0 {
				gain = (gain*float64(n-1) + d) / float64(n)
				loss = (loss * float64(n-1)) / float64(n)
			} else {
				gain = (gain * float64(n-1)) / float64(n)
				loss = (loss*float64(n-1) - d) / float64(n)
			}
			out[i] = rsiValue(gain, loss)
		}
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR returns the n-period Average True Range with Wilder's smoothing.
// Indices before the first full window are zero.
func ATR(ks []models.Kline, n int) []float64 {
	out := make([]float64, len(ks))
	if n <= 0 || len(ks) < 2 {
		return out
	}
	var sum, prev float64
	for i := 1; i < len(ks); i++ {
		tr := trueRange(ks[i], ks[i-1])
		if i <= n {
			sum += tr
			if i == n {
				prev = sum / float64(n)
				out[i] = prev
			}
		} else {
			prev = (prev*float64(n-1) + tr) / float64(n)
			out[i] = prev
		}
	}
	return out
}

func trueRange(cur, prev models.Kline) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// Snapshot is the set of locally recomputed values for one symbol.
type Snapshot struct {
	RSI    float64
	MAFast float64
	MASlow float64
	ATR    float64
}

// Periods used for the fallback snapshot. They mirror what the backend's
// signal engine uses so the fallback numbers are at least comparable.
const (
	rsiPeriod    = 14
	maFastPeriod = 7
	maSlowPeriod = 25
	atrPeriod    = 14
)

// Compute derives the fallback snapshot from a kline series. It returns false
// when the series is too short for the slowest indicator.
func Compute(ks []models.Kline) (Snapshot, bool) {
	if len(ks) <= maSlowPeriod {
		return Snapshot{}, false
	}
	last := len(ks) - 1
	return Snapshot{
		RSI:    RSI(ks, rsiPeriod)[last],
		MAFast: SMA(ks, maFastPeriod)[last],
		MASlow: SMA(ks, maSlowPeriod)[last],
		ATR:    ATR(ks, atrPeriod)[last],
	}, true
}
