package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/solsentry/engine/internal/monitor"
)

// EventsView displays a scrolling feed of processed wallet events.
type EventsView struct {
	table   *tview.Table
	events  []monitor.EventRecord
	maxRows int
}

// NewEventsView creates a new event feed view.
func NewEventsView() *EventsView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Event Feed ").SetBorder(true)

	headers := []string{"Time", "Wallet", "Source", "Signature", "Score", "Reported"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}

	return &EventsView{
		table:   table,
		events:  make([]monitor.EventRecord, 0, 100),
		maxRows: 100,
	}
}

// Widget returns the tview primitive.
func (v *EventsView) Widget() tview.Primitive {
	return v.table
}

// AddEvent adds a new event to the view.
func (v *EventsView) AddEvent(rec monitor.EventRecord) {
	v.events = append([]monitor.EventRecord{rec}, v.events...)

	if len(v.events) > v.maxRows {
		v.events = v.events[:v.maxRows]
	}

	v.updateTable()
}

// Refresh redraws the table.
func (v *EventsView) Refresh() {
	v.updateTable()
}

// updateTable updates the table with current events.
func (v *EventsView) updateTable() {
	v.table.Clear()

	headers := []string{"Time", "Wallet", "Source", "Signature", "Score", "Reported"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}

	for i, rec := range v.events {
		row := i + 1

		sig := rec.Signature
		if len(sig) > 16 {
			sig = sig[:8] + "..." + sig[len(sig)-4:]
		}
		if sig == "" {
			sig = "-"
		}

		reported := "no"
		if rec.Reported {
			reported = "yes"
		}

		cells := []string{
			rec.Time.Format("15:04:05"),
			truncateAddress(rec.Address),
			rec.Source,
			sig,
			fmt.Sprintf("%d", rec.Score),
			reported,
		}

		for col, text := range cells {
			cell := tview.NewTableCell(text).
				SetAlign(tview.AlignLeft)
			v.table.SetCell(row, col, cell)
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Event Feed (%d) ", len(v.events)))
}
