package pairing

import (
	"math"
	"time"

	"crypto-dashboard-go/internal/models"
)

const (
	// pairWindow is how far apart a BUY and SELL may be created and still be
	// treated as an intentionally linked TP/SL pair.
	pairWindow = 5 * time.Minute

	// volumeTolerance is the relative quantity mismatch allowed when falling
	// back to volume-based matching.
	volumeTolerance = 0.20
)

// Result is the outcome of a profit/loss estimate for a single order.
// IsRealized reports whether a matching BUY was found; theoretical estimates
// for open BUY orders always carry IsRealized=false and must never be summed
// into realized totals.
type Result struct {
	PnL        float64
	PnLPercent float64
	IsRealized bool
	MatchedBuy *models.Order
}

// ProfitLoss estimates the P&L of one order against the full executed-order
// list. SELL orders are matched to a prior BUY; BUY orders get a theoretical
// unrealized estimate against livePrice (pass 0 when unknown).
//
// The matching is best-effort: when several BUY/SELL pairs interleave there is
// no lot ledger to disambiguate them, and an unmatched SELL simply reports
// IsRealized=false rather than an error.
func ProfitLoss(order models.Order, all []models.Order, livePrice float64) Result {
	if order.Side == models.Buy {
		return unrealized(order, livePrice)
	}
	return realized(order, all)
}

// realized matches a SELL to a filled BUY of the same symbol. A BUY created
// within pairWindow of the SELL wins outright (closest quantity among those);
// otherwise BUYs within volumeTolerance qualify, preferring the most recent
// one strictly before the SELL, else the earliest one after it.
func realized(sell models.Order, all []models.Order) Result {
	candidates := buyCandidates(sell, all)
	if len(candidates) == 0 {
		return Result{}
	}

	match := matchByWindow(sell, candidates)
	if match == nil {
		match = matchByVolume(sell, candidates)
	}
	if match == nil {
		return Result{}
	}

	pnl := (sell.Price - match.Price) * sell.Quantity
	return Result{
		PnL:        pnl,
		PnLPercent: percent(pnl, match.Price*sell.Quantity),
		IsRealized: true,
		MatchedBuy: match,
	}
}

// unrealized is a display-only estimate of what a BUY would yield if closed at
// the live market price.
func unrealized(buy models.Order, livePrice float64) Result {
	if livePrice <= 0 || buy.Price <= 0 {
		return Result{}
	}
	pnl := (livePrice - buy.Price) * buy.Quantity
	return Result{
		PnL:        pnl,
		PnLPercent: percent(pnl, buy.Price*buy.Quantity),
	}
}

func buyCandidates(sell models.Order, all []models.Order) []models.Order {
	var out []models.Order
	for _, o := range all {
		if o.OrderID == sell.OrderID {
			continue
		}
		if o.Side != models.Buy || o.Symbol != sell.Symbol || o.Status != models.StatusFilled {
			continue
		}
		out = append(out, o)
	}
	return out
}

// matchByWindow picks the candidate created within pairWindow of the SELL
// whose quantity is closest to the SELL's.
func matchByWindow(sell models.Order, candidates []models.Order) *models.Order {
	var best *models.Order
	bestDiff := math.MaxFloat64
	for i := range candidates {
		c := &candidates[i]
		gap := sell.CreatedAt().Sub(c.CreatedAt())
		if gap < 0 {
			gap = -gap
		}
		if gap > pairWindow {
			continue
		}
		diff := math.Abs(c.Quantity - sell.Quantity)
		if diff < bestDiff {
			best = c
			bestDiff = diff
		}
	}
	return best
}

// matchByVolume picks among candidates within volumeTolerance of the SELL
// quantity: the latest BUY strictly before the SELL, or failing that the
// earliest BUY after it.
func matchByVolume(sell models.Order, candidates []models.Order) *models.Order {
	var before, after *models.Order
	for i := range candidates {
		c := &candidates[i]
		if sell.Quantity <= 0 {
			continue
		}
		if math.Abs(c.Quantity-sell.Quantity)/sell.Quantity > volumeTolerance {
			continue
		}
		if c.CreatedAt().Before(sell.CreatedAt()) {
			if before == nil || c.CreatedAt().After(before.CreatedAt()) {
				before = c
			}
		} else {
			if after == nil || c.CreatedAt().Before(after.CreatedAt()) {
				after = c
			}
		}
	}
	if before != nil {
		return before
	}
	return after
}

// RealizedTotal sums the realized P&L over every SELL in the list. Theoretical
// BUY estimates are excluded by construction.
func RealizedTotal(all []models.Order) float64 {
	var total float64
	for _, o := range all {
		if o.Side != models.Sell {
			continue
		}
		if r := realized(o, all); r.IsRealized {
			total += r.PnL
		}
	}
	return total
}

func percent(pnl, basis float64) float64 {
	if basis == 0 {
		return 0
	}
	return pnl / basis * 100
}
