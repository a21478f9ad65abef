// Package ui provides the terminal dashboard.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/solsentry/engine/internal/alert"
	"github.com/solsentry/engine/internal/metrics"
	"github.com/solsentry/engine/internal/monitor"
)

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	wallets   *WalletsView
	alerts    *AlertsView
	events    *EventsView
	status    *StatusView
	riskboard *RiskboardView

	// Data sources
	alertChan <-chan alert.Alert
	eventChan <-chan monitor.EventRecord
	tracker   *metrics.Tracker
	refresh   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates a new TUI application. refresh is the snapshot redraw
// interval.
func NewApp(alertChan <-chan alert.Alert, eventChan <-chan monitor.EventRecord, tracker *metrics.Tracker, refresh time.Duration) *App {
	ctx, cancel := context.WithCancel(context.Background())

	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}

	app := &App{
		app:       tview.NewApplication(),
		alertChan: alertChan,
		eventChan: eventChan,
		tracker:   tracker,
		refresh:   refresh,
		ctx:       ctx,
		cancel:    cancel,
	}

	app.wallets = NewWalletsView()
	app.alerts = NewAlertsView()
	app.events = NewEventsView()
	app.status = NewStatusView()
	app.riskboard = NewRiskboardView()

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// setupLayout creates the 5-panel layout.
func (a *App) setupLayout() {
	// Top row: Watched Wallets (left) | Alerts (right)
	topRow := tview.NewFlex().
		AddItem(a.wallets.Widget(), 0, 1, false).
		AddItem(a.alerts.Widget(), 0, 2, false)

	// Middle row: Event Feed (full width)
	middleRow := a.events.Widget()

	// Bottom row: Status (left) | Risk Leaderboard (right)
	bottomRow := tview.NewFlex().
		AddItem(a.status.Widget(), 0, 1, false).
		AddItem(a.riskboard.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 2, false).
		AddItem(middleRow, 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				a.redraw()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.processAlerts()
	go a.processEvents()
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// processAlerts reads delivered alerts and updates the alerts panel.
func (a *App) processAlerts() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case al, ok := <-a.alertChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.alerts.AddAlert(al)
			})
		}
	}
}

// processEvents reads the processed-event feed and updates the event panel.
func (a *App) processEvents() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case rec, ok := <-a.eventChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.events.AddEvent(rec)
			})
		}
	}
}

// updateLoop periodically refreshes the snapshot-driven panels.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			snapshot := a.tracker.Snapshot()
			a.app.QueueUpdateDraw(func() {
				a.status.Update(snapshot)
				a.riskboard.Update(snapshot)
				a.wallets.Update(snapshot)
			})
		}
	}
}

// redraw manually refreshes all views.
func (a *App) redraw() {
	snapshot := a.tracker.Snapshot()
	a.app.QueueUpdateDraw(func() {
		a.wallets.Update(snapshot)
		a.alerts.Refresh()
		a.events.Refresh()
		a.status.Update(snapshot)
		a.riskboard.Update(snapshot)
	})
}
