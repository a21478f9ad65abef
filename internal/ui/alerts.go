package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/solsentry/engine/internal/alert"
	"github.com/solsentry/engine/internal/scorer"
)

// AlertsView displays delivered compromise alerts, newest first.
type AlertsView struct {
	list     *tview.List
	alerts   []alert.Alert
	maxItems int
}

// NewAlertsView creates a new alerts view.
func NewAlertsView() *AlertsView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🚨 Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	return &AlertsView{
		list:     list,
		alerts:   make([]alert.Alert, 0, 50),
		maxItems: 50,
	}
}

// Widget returns the tview primitive.
func (v *AlertsView) Widget() tview.Primitive {
	return v.list
}

// AddAlert adds a new alert to the front of the list.
func (v *AlertsView) AddAlert(a alert.Alert) {
	v.alerts = append([]alert.Alert{a}, v.alerts...)

	if len(v.alerts) > v.maxItems {
		v.alerts = v.alerts[:v.maxItems]
	}

	v.rebuildList()
}

// Refresh redraws the list.
func (v *AlertsView) Refresh() {
	v.rebuildList()
}

// rebuildList rebuilds the entire list from held alerts.
func (v *AlertsView) rebuildList() {
	v.list.Clear()

	if len(v.alerts) == 0 {
		v.list.AddItem("No alerts yet", "", 0, nil)
		return
	}

	for _, a := range v.alerts {
		mainText, secondaryText := formatAlert(a)
		v.list.AddItem(mainText, secondaryText, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" 🚨 Alerts (%d) ", len(v.alerts)))
}

// formatAlert formats an alert for display.
func formatAlert(a alert.Alert) (string, string) {
	icon := "⚠️"
	if a.Severity == scorer.SeverityCritical {
		icon = "🔴"
	}

	timeStr := a.CreatedAt.Format("15:04:05")
	mainText := fmt.Sprintf("%s %s %s score=%d %s", timeStr, icon, a.Severity, a.Score, truncateAddress(a.Address))

	kinds := make([]string, 0, len(a.Findings))
	for _, f := range a.Findings {
		kinds = append(kinds, string(f.Kind))
	}
	secondaryText := strings.Join(kinds, ", ")

	if len(a.ThreatLabels) > 0 {
		secondaryText += " | " + strings.Join(a.ThreatLabels, ", ")
	}
	if a.Narrative != "" {
		narrative := a.Narrative
		if len(narrative) > 60 {
			narrative = narrative[:57] + "..."
		}
		secondaryText += " | " + narrative
	}

	return mainText, secondaryText
}

// truncateAddress truncates a wallet address for display.
func truncateAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
