package store

import (
	"sort"
	"strings"

	"crypto-dashboard-go/internal/models"
)

// derivePositions groups the open-order list into entry+TP/SL positions.
// Orders are linked through a shared client_order_id: the quick-order flow
// stamps one id onto the BUY entry and both of its protective SELL children.
// The grouping is rebuilt from scratch on every fetch and never persisted.
func derivePositions(open []models.Order) []models.OpenPosition {
	groups := make(map[string][]models.Order)
	var keys []string
	for _, o := range open {
		key := o.ClientOrderID
		if key == "" {
			// No linkage id means no children can exist; the order id itself
			// keeps the entry in its own group.
			key = "order:" + o.OrderID
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], o)
	}

	var positions []models.OpenPosition
	for _, key := range keys {
		if pos, ok := buildPosition(groups[key]); ok {
			positions = append(positions, pos)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Entry.CreateTime > positions[j].Entry.CreateTime
	})
	return positions
}

func buildPosition(group []models.Order) (models.OpenPosition, bool) {
	var pos models.OpenPosition
	var haveEntry bool
	for i := range group {
		o := group[i]
		switch {
		case isEntry(o):
			pos.Entry = o
			haveEntry = true
		case isTakeProfit(o):
			pos.TakeProfit = &group[i]
			pos.TakeProfitPrice = o.Price
		case isStopLoss(o):
			pos.StopLoss = &group[i]
			pos.StopLossPrice = o.Price
		}
	}
	if !haveEntry {
		// SELL-only groups (orphaned protective legs) are not positions.
		return models.OpenPosition{}, false
	}

	qty := pos.Entry.Quantity
	if pos.TakeProfitPrice > 0 {
		pos.ProjectedProfit = (pos.TakeProfitPrice - pos.Entry.Price) * qty
	}
	if pos.StopLossPrice > 0 {
		pos.ProjectedLoss = (pos.Entry.Price - pos.StopLossPrice) * qty
	}
	return pos, true
}

func isEntry(o models.Order) bool {
	if o.LinkageRole != "" {
		return o.LinkageRole == "ENTRY"
	}
	return o.Side == models.Buy
}

func isTakeProfit(o models.Order) bool {
	if o.LinkageRole != "" {
		return o.LinkageRole == "TAKE_PROFIT"
	}
	return o.Side == models.Sell && strings.Contains(o.Type, "TAKE_PROFIT")
}

func isStopLoss(o models.Order) bool {
	if o.LinkageRole != "" {
		return o.LinkageRole == "STOP_LOSS"
	}
	return o.Side == models.Sell && strings.Contains(o.Type, "STOP_LOSS")
}
