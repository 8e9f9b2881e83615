// Package render draws periodic terminal tables of the aggregated dashboard
// view for headless operation over SSH, where the web UI is unavailable.
package render

import (
	"fmt"
	"io"
	"time"

	"crypto-dashboard-go/internal/breaker"
	"crypto-dashboard-go/internal/scheduler"
	"crypto-dashboard-go/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Renderer writes the dashboard tables to out.
type Renderer struct {
	store *store.Store
	sched *scheduler.Scheduler
	cb    *breaker.CircuitBreaker
	out   io.Writer
}

// New creates a renderer over the given store, scheduler and breaker.
func New(st *store.Store, sched *scheduler.Scheduler, cb *breaker.CircuitBreaker, out io.Writer) *Renderer {
	return &Renderer{store: st, sched: sched, cb: cb, out: out}
}

// Render draws the full set of tables once.
func (r *Renderer) Render() {
	r.renderHeader()
	r.renderMarket()
	r.renderPositions()
	r.renderPortfolio()
	r.renderExpectedTP()
	r.renderMonitoring()
}

func (r *Renderer) renderHeader() {
	_, source, age := r.store.Dashboard()
	st := r.sched.Snapshot()

	status := "fresh"
	if source == store.SourceCache || source == store.SourceSnapshot {
		status = fmt.Sprintf("%s (age %s)", source, age.Round(time.Second))
	} else if source == store.SourceNone {
		status = "no data yet"
	}

	line := fmt.Sprintf("== dashboard | data: %s | fast backoff: %s | slow backoff: %s",
		status, st.FastBackoff, st.SlowBackoff)
	if st.RateLimited {
		line += " | RATE LIMITED until " + st.FastPausedUntil.Format("15:04:05")
	}
	if r.cb.State() == breaker.Open {
		line += " | SIGNALS BREAKER OPEN"
	}
	fmt.Fprintln(r.out, line)
}

func (r *Renderer) renderMarket() {
	coins := r.store.TopCoins()
	if len(coins) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Market")
	t.AppendHeader(table.Row{"Symbol", "Price", "24h %", "RSI", "MA7", "MA25", "Signal"})
	for _, c := range coins {
		decision := ""
		if c.Decision != nil {
			decision = c.Decision.Decision
		}
		t.AppendRow(table.Row{
			c.InstrumentName,
			formatPrice(c.Price),
			fmt.Sprintf("%+.2f%%", c.PriceChangePercent),
			fmt.Sprintf("%.1f", c.RSI),
			formatPrice(c.MAFast),
			formatPrice(c.MASlow),
			decision,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}

func (r *Renderer) renderPositions() {
	positions := r.store.OpenPositions()
	if len(positions) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Open Positions")
	t.AppendHeader(table.Row{"Symbol", "Qty", "Entry", "TP", "SL", "Proj. Profit", "Proj. Loss"})
	for _, p := range positions {
		t.AppendRow(table.Row{
			p.Entry.Symbol,
			fmt.Sprintf("%g", p.Entry.Quantity),
			formatPrice(p.Entry.Price),
			formatPrice(p.TakeProfitPrice),
			formatPrice(p.StopLossPrice),
			fmt.Sprintf("%.2f", p.ProjectedProfit),
			fmt.Sprintf("%.2f", p.ProjectedLoss),
		})
	}
	t.Render()

	fmt.Fprintf(r.out, "realized P&L: %.2f USDT\n", r.store.RealizedPnL())
}

func (r *Renderer) renderPortfolio() {
	state, source, _ := r.store.Dashboard()
	if source == store.SourceNone {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Portfolio")
	t.AppendHeader(table.Row{"Asset", "Amount", "USD Value"})
	for _, a := range state.Assets {
		t.AppendRow(table.Row{a.Asset, fmt.Sprintf("%g", a.Amount), fmt.Sprintf("%.2f", a.USDValue)})
	}
	t.AppendFooter(table.Row{"Total", "", fmt.Sprintf("%.2f", state.TotalValue)})
	t.Render()
}

func (r *Renderer) renderExpectedTP() {
	entries := r.store.ExpectedTakeProfit()
	if len(entries) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Expected Take Profit")
	t.AppendHeader(table.Row{"Symbol", "Qty", "Entry", "TP", "Expected Profit"})
	var total float64
	for _, e := range entries {
		total += e.ExpectedProfit
		t.AppendRow(table.Row{
			e.Symbol,
			fmt.Sprintf("%g", e.Quantity),
			formatPrice(e.EntryPrice),
			formatPrice(e.TakeProfitPrice),
			fmt.Sprintf("%.2f", e.ExpectedProfit),
		})
	}
	t.AppendFooter(table.Row{"Total", "", "", "", fmt.Sprintf("%.2f", total)})
	t.Render()
}

func (r *Renderer) renderMonitoring() {
	rows := r.store.Monitoring()
	if len(rows) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Backend Health")
	t.AppendHeader(table.Row{"Component", "Healthy", "Message"})
	for _, m := range rows {
		healthy := "ok"
		if !m.Healthy {
			healthy = "DOWN"
		}
		t.AppendRow(table.Row{m.Component, healthy, m.Message})
	}
	t.Render()
}

// formatPrice keeps enough precision for sub-cent alt-coins without drowning
// BTC-scale prices in decimals.
func formatPrice(p float64) string {
	switch {
	case p == 0:
		return "-"
	case p < 1:
		return fmt.Sprintf("%.6f", p)
	case p < 100:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.2f", p)
	}
}
