package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/solsentry/engine/internal/metrics"
)

// StatusView displays engine health and throughput.
type StatusView struct {
	textView *tview.TextView
}

// NewStatusView creates a new status view.
func NewStatusView() *StatusView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Engine Status ").SetBorder(true)

	return &StatusView{textView: textView}
}

// Widget returns the tview primitive.
func (v *StatusView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the status display.
func (v *StatusView) Update(snapshot metrics.Snapshot) {
	v.textView.Clear()

	uptime := formatDuration(snapshot.Uptime)

	wsStatus := snapshot.WebSocketStatus
	wsColor := "red"
	if wsStatus == "connected" {
		wsColor = "green"
	}

	lastSweep := "never"
	if !snapshot.LastSweep.IsZero() {
		lastSweep = formatTimeAgo(snapshot.LastSweep)
	}

	bufferPct := 0.0
	if snapshot.ChannelBufferCap > 0 {
		bufferPct = (float64(snapshot.ChannelBufferUsed) / float64(snapshot.ChannelBufferCap)) * 100
	}

	text := fmt.Sprintf(`[yellow]System Status[-]
Uptime: %s
WebSocket: [%s]%s[-]
Last Sweep: %s (%d total)

[yellow]Event Stats[-]
Total Events: %d
Account: %d | Tx: %d
Rate: %.2f events/sec

[yellow]Alerts[-]
Critical: %d
Warning: %d

[yellow]Enrichment[-]
OK: %d | Failed: %d

[yellow]Performance[-]
Alert Buffer: %d/%d (%.1f%%)
`,
		uptime,
		wsColor, wsStatus,
		lastSweep, snapshot.SweepTicks,
		snapshot.EventsTotal,
		snapshot.AccountEvents, snapshot.TxEvents,
		snapshot.EventRate,
		snapshot.AlertsBySeverity["CRITICAL"],
		snapshot.AlertsBySeverity["WARNING"],
		snapshot.EnrichmentOK, snapshot.EnrichmentFailed,
		snapshot.ChannelBufferUsed,
		snapshot.ChannelBufferCap,
		bufferPct,
	)

	fmt.Fprint(v.textView, text)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
