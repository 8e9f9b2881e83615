package render

import (
	"bytes"
	"testing"

	"crypto-dashboard-go/internal/breaker"
	"crypto-dashboard-go/internal/models"
	"crypto-dashboard-go/internal/scheduler"
	"crypto-dashboard-go/internal/store"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRenderer(st *store.Store) (*Renderer, *bytes.Buffer) {
	var buf bytes.Buffer
	sched := scheduler.New(scheduler.DefaultConfig(), nil, nil, zap.NewNop().Sugar())
	cb := breaker.New(breaker.DefaultThreshold, breaker.DefaultCooldown)
	return New(st, sched, cb, &buf), &buf
}

func TestRenderEmptyStoreShowsHeaderOnly(t *testing.T) {
	st := store.New(zap.NewNop().Sugar())
	r, buf := newTestRenderer(st)
	r.Render()
	assert.Contains(t, buf.String(), "no data yet")
	assert.NotContains(t, buf.String(), "Market")
}

func TestRenderTables(t *testing.T) {
	st := store.New(zap.NewNop().Sugar())
	st.MergeTopCoins([]models.TopCoin{{
		InstrumentName: "BTCUSDT", Price: 50123.45, PriceChangePercent: 2.5, RSI: 61.2,
		Decision: &models.StrategyDecision{Decision: "BUY"},
	}})
	st.SetOrders([]models.Order{
		{OrderID: "1", ClientOrderID: "dash-a", Symbol: "ETHUSDT", Side: models.Buy,
			Type: "LIMIT", Quantity: 2, Price: 3000, CreateTime: 1},
		{OrderID: "2", ClientOrderID: "dash-a", Symbol: "ETHUSDT", Side: models.Sell,
			Type: "TAKE_PROFIT_LIMIT", Quantity: 2, Price: 3300, CreateTime: 2},
	}, nil)
	st.ApplyFullState(&models.DashboardState{
		Assets:     []models.PortfolioAsset{{Asset: "BTC", Amount: 0.5, USDValue: 25000}},
		TotalValue: 25000,
	})
	st.SetExpectedTakeProfit([]models.ExpectedTakeProfitEntry{
		{Symbol: "ETHUSDT", Quantity: 2, EntryPrice: 3000, TakeProfitPrice: 3300, ExpectedProfit: 600},
	})
	st.SetMonitoring([]models.MonitoringStatus{
		{Component: "signal-engine", Healthy: false, Message: "queue lag"},
	})

	r, buf := newTestRenderer(st)
	r.Render()
	out := buf.String()

	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "Open Positions")
	assert.Contains(t, out, "600.00")
	assert.Contains(t, out, "25000.00")
	assert.Contains(t, out, "Expected Take Profit")
	assert.Contains(t, out, "Backend Health")
	assert.Contains(t, out, "DOWN")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "-", formatPrice(0))
	assert.Equal(t, "0.000035", formatPrice(0.000035))
	assert.Equal(t, "3.1416", formatPrice(3.14159))
	assert.Equal(t, "50123.45", formatPrice(50123.45))
}
