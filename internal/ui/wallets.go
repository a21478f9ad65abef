package ui

import (
	"fmt"
	"sort"

	"github.com/rivo/tview"

	"github.com/solsentry/engine/internal/metrics"
)

// WalletsView displays watched wallets and their key metrics.
type WalletsView struct {
	table *tview.Table
}

// NewWalletsView creates a new watched wallets view.
func NewWalletsView() *WalletsView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Watched Wallets ").SetBorder(true)

	headers := []string{"Wallet", "State", "Events", "Alerts", "Last Event"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false).
			SetExpansion(1)
		table.SetCell(0, col, cell)
	}

	return &WalletsView{table: table}
}

// Widget returns the tview primitive.
func (v *WalletsView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the view with new metrics data.
func (v *WalletsView) Update(snapshot metrics.Snapshot) {
	v.table.Clear()

	headers := []string{"Wallet", "State", "Events", "Alerts", "Last Event"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}

	// Most active wallets first.
	wallets := make([]*metrics.WalletActivity, 0, len(snapshot.WalletActivities))
	for _, activity := range snapshot.WalletActivities {
		wallets = append(wallets, activity)
	}

	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].EventCount != wallets[j].EventCount {
			return wallets[i].EventCount > wallets[j].EventCount
		}
		return wallets[i].Address < wallets[j].Address
	})

	limit := 10
	if len(wallets) < limit {
		limit = len(wallets)
	}

	for i, w := range wallets[:limit] {
		row := i + 1

		lastEvent := "never"
		if !w.LastEvent.IsZero() {
			lastEvent = formatTimeAgo(w.LastEvent)
		}

		cells := []string{
			truncateAddress(w.Address),
			w.State,
			fmt.Sprintf("%d", w.EventCount),
			fmt.Sprintf("%d", w.AlertCount),
			lastEvent,
		}

		for col, text := range cells {
			cell := tview.NewTableCell(text).
				SetAlign(tview.AlignLeft).
				SetExpansion(1)
			v.table.SetCell(row, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Watched Wallets (%d) ", len(snapshot.WalletActivities)))
}
