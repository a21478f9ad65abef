package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/solsentry/engine/internal/metrics"
	"github.com/solsentry/engine/internal/scorer"
)

// RiskboardView ranks watched wallets by accumulated risk.
type RiskboardView struct {
	table *tview.Table
}

// NewRiskboardView creates a new risk leaderboard view.
func NewRiskboardView() *RiskboardView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Risk Leaderboard ").SetBorder(true)

	headers := []string{"Wallet", "Risk", "Alerts", "Last"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}

	return &RiskboardView{table: table}
}

// Widget returns the tview primitive.
func (v *RiskboardView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the leaderboard.
func (v *RiskboardView) Update(snapshot metrics.Snapshot) {
	v.table.Clear()

	headers := []string{"Wallet", "Risk", "Alerts", "Last"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}

	ranked := snapshot.TopRisk

	limit := 10
	if len(ranked) < limit {
		limit = len(ranked)
	}

	if limit == 0 {
		cell := tview.NewTableCell("No risk accumulated yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, entry := range ranked[:limit] {
		row := i + 1

		riskColor := tcell.ColorYellow
		if entry.LastSeverity == string(scorer.SeverityCritical) {
			riskColor = tcell.ColorRed
		}

		cell := tview.NewTableCell(truncateAddress(entry.Address)).SetAlign(tview.AlignLeft)
		v.table.SetCell(row, 0, cell)

		cell = tview.NewTableCell(fmt.Sprintf("%d", entry.CumulativeRisk)).
			SetAlign(tview.AlignRight).
			SetTextColor(riskColor)
		v.table.SetCell(row, 1, cell)

		cell = tview.NewTableCell(fmt.Sprintf("%d", entry.AlertCount)).
			SetAlign(tview.AlignRight)
		v.table.SetCell(row, 2, cell)

		cell = tview.NewTableCell(fmt.Sprintf("%d %s", entry.LastScore, entry.LastSeverity)).
			SetAlign(tview.AlignRight)
		v.table.SetCell(row, 3, cell)
	}
}
