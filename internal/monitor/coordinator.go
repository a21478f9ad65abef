package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/solsentry/engine/internal/alert"
	"github.com/solsentry/engine/internal/enrich"
	"github.com/solsentry/engine/internal/metrics"
	"github.com/solsentry/engine/internal/rpc"
	"github.com/solsentry/engine/internal/scorer"
	"github.com/solsentry/engine/internal/watchlist"
)

// Coordinator defaults.
const (
	DefaultCounterWindow  = 10 * time.Minute
	DefaultTxFetchTimeout = 5 * time.Second
	DefaultSweepInterval  = 5 * time.Minute
	DefaultEventBuffer    = 64
	DefaultBackfillLimit  = 10
)

// Options tunes the coordinator. Zero values fall back to the defaults.
type Options struct {
	CounterWindow  time.Duration
	TxFetchTimeout time.Duration
	SweepInterval  time.Duration
	EventBuffer    int
	BackfillLimit  int
}

func (o *Options) fill() {
	if o.CounterWindow == 0 {
		o.CounterWindow = DefaultCounterWindow
	}
	if o.TxFetchTimeout == 0 {
		o.TxFetchTimeout = DefaultTxFetchTimeout
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.EventBuffer == 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.BackfillLimit == 0 {
		o.BackfillLimit = DefaultBackfillLimit
	}
}

// walletEvent is one provider notification queued for a wallet's pump.
type walletEvent struct {
	account *rpc.AccountUpdate
	logs    *rpc.LogsUpdate
}

// EventRecord is a lightweight record of one processed event, published to
// the optional feed consumed by the dashboard. A full feed drops records.
type EventRecord struct {
	Time      time.Time
	Address   string
	Source    string
	Signature string
	Score     int
	Reported  bool
}

// Coordinator drives the monitoring pipeline. Each watched wallet gets its
// own pump goroutine, so events for one wallet are processed in arrival order
// while different wallets proceed in parallel.
type Coordinator struct {
	gateway  Gateway
	registry *watchlist.Registry
	scorer   *scorer.Scorer
	synth    *alert.Synthesizer
	enricher Enricher
	tracker  *metrics.Tracker
	opts     Options

	pumpMu sync.Mutex
	pumps  map[string]chan walletEvent

	feed chan EventRecord

	sweepTick uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a Coordinator. enricher may be nil to disable
// enrichment; tracker may be nil to disable dashboard metrics.
func NewCoordinator(gateway Gateway, registry *watchlist.Registry, sc *scorer.Scorer, synth *alert.Synthesizer, enricher Enricher, tracker *metrics.Tracker, opts Options) *Coordinator {
	opts.fill()
	if tracker == nil {
		tracker = metrics.NewTracker()
	}
	return &Coordinator{
		gateway:  gateway,
		registry: registry,
		scorer:   sc,
		synth:    synth,
		enricher: enricher,
		tracker:  tracker,
		opts:     opts,
		pumps:    make(map[string]chan walletEvent),
		feed:     make(chan EventRecord, 256),
	}
}

// Events returns the processed-event feed.
func (c *Coordinator) Events() <-chan EventRecord {
	return c.feed
}

// publish pushes a record onto the feed without ever blocking the pipeline.
func (c *Coordinator) publish(rec EventRecord) {
	select {
	case c.feed <- rec:
	default:
	}
}

// Start launches the reconciliation sweep loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.sweepLoop(c.ctx)
}

// Stop shuts the coordinator down: the sweep stops and every pump drains.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	c.pumpMu.Lock()
	for addr, pump := range c.pumps {
		close(pump)
		delete(c.pumps, addr)
	}
	c.pumpMu.Unlock()

	c.wg.Wait()
}

// Tracker returns the dashboard metrics tracker.
func (c *Coordinator) Tracker() *metrics.Tracker {
	return c.tracker
}

// Watch starts monitoring a wallet. The watch is accepted even when the
// provider is down: the wallet stays pending and the sweep retries the
// subscriptions. Re-watching a watched address is a no-op success. A
// malformed address is rejected with watchlist.ErrInvalidAddress.
func (c *Coordinator) Watch(ctx context.Context, address, userID string) error {
	already, err := c.registry.Watch(address, userID)
	if err != nil {
		return err
	}
	if already {
		slog.Debug("wallet_already_watched", "address", address)
		return nil
	}

	pump := make(chan walletEvent, c.opts.EventBuffer)
	c.pumpMu.Lock()
	c.pumps[address] = pump
	c.pumpMu.Unlock()

	c.wg.Add(1)
	go c.runPump(address, pump)

	c.tracker.SetWalletState(address, userID, string(watchlist.StatePending))
	metrics.WatchedWallets.Set(float64(c.registry.Count()))

	c.activate(ctx, address)

	w, _ := c.registry.Get(address)
	slog.Info("wallet_watch_started", "address", address, "user", userID, "state", w.State)
	return nil
}

// Unwatch stops monitoring a wallet and releases its subscriptions.
// Unwatching an unknown address is a no-op.
func (c *Coordinator) Unwatch(ctx context.Context, address string) {
	w, ok := c.registry.Unwatch(address)
	if !ok {
		return
	}

	c.pumpMu.Lock()
	if pump, ok := c.pumps[address]; ok {
		close(pump)
		delete(c.pumps, address)
	}
	c.pumpMu.Unlock()

	for _, handle := range []uint64{w.AccountSub, w.LogsSub} {
		if handle == 0 {
			continue
		}
		if err := c.gateway.Unsubscribe(ctx, handle); err != nil {
			slog.Debug("unsubscribe_failed", "address", address, "handle", handle, "error", err)
		}
	}

	c.tracker.RemoveWallet(address)
	metrics.WatchedWallets.Set(float64(c.registry.Count()))
	slog.Info("wallet_watch_stopped", "address", address, "user", w.UserID)
}

// Stats is a point-in-time summary for status surfaces.
type Stats struct {
	Watched   int
	Connected bool
	Wallets   []watchlist.Wallet
}

// Stats reports the current coordinator state with per-wallet summaries.
func (c *Coordinator) Stats() Stats {
	wallets := c.registry.Snapshot()
	return Stats{
		Watched:   len(wallets),
		Connected: c.gateway.Connected(),
		Wallets:   wallets,
	}
}

// activate takes a baseline snapshot and establishes both subscriptions.
// Any provider failure leaves the wallet pending or degraded; the sweep
// retries on its next tick.
func (c *Coordinator) activate(ctx context.Context, address string) {
	info, err := c.gateway.GetAccountInfo(ctx, address)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("getAccountInfo").Inc()
		slog.Warn("baseline_snapshot_failed", "address", address, "error", err)
	} else {
		c.registry.Update(address, func(w *watchlist.Wallet) {
			w.Exists = info != nil
			if info != nil {
				w.Lamports = info.Lamports
			}
			w.LastReconciled = time.Now()
		})
	}

	accountSub, accErr := c.gateway.SubscribeAccount(ctx, address, func(u rpc.AccountUpdate) {
		c.dispatch(address, walletEvent{account: &u})
	})
	if accErr != nil {
		metrics.ProviderErrors.WithLabelValues("accountSubscribe").Inc()
		slog.Warn("account_subscribe_failed", "address", address, "error", accErr)
	}

	logsSub, logsErr := c.gateway.SubscribeLogs(ctx, address, func(u rpc.LogsUpdate) {
		c.dispatch(address, walletEvent{logs: &u})
	})
	if logsErr != nil {
		metrics.ProviderErrors.WithLabelValues("logsSubscribe").Inc()
		slog.Warn("logs_subscribe_failed", "address", address, "error", logsErr)
	}

	state := watchlist.StateActive
	if accErr != nil && logsErr != nil {
		state = watchlist.StateDegraded
	}

	updated := c.registry.Update(address, func(w *watchlist.Wallet) {
		if accountSub != 0 {
			w.AccountSub = accountSub
		}
		if logsSub != 0 {
			w.LogsSub = logsSub
		}
		w.State = state
	})
	if !updated {
		// Unwatched while we were subscribing. Release what we just got.
		for _, handle := range []uint64{accountSub, logsSub} {
			if handle != 0 {
				c.gateway.Unsubscribe(ctx, handle)
			}
		}
		return
	}

	if w, ok := c.registry.Get(address); ok {
		c.tracker.SetWalletState(address, w.UserID, string(state))
	}
}

// dispatch queues an event onto the wallet's pump. Called from the
// subscriber's read loop, so it must never block: a full pump drops the
// event and the sweep catches up later.
func (c *Coordinator) dispatch(address string, ev walletEvent) {
	c.pumpMu.Lock()
	defer c.pumpMu.Unlock()

	pump, ok := c.pumps[address]
	if !ok {
		return
	}
	select {
	case pump <- ev:
	default:
		slog.Warn("event_dropped", "address", address, "reason", "pump full")
	}
}

// runPump processes one wallet's events in arrival order.
func (c *Coordinator) runPump(address string, pump chan walletEvent) {
	defer c.wg.Done()

	for ev := range pump {
		switch {
		case ev.account != nil:
			c.handleAccountEvent(address, *ev.account)
		case ev.logs != nil:
			c.handleLogsEvent(address, *ev.logs)
		}
	}
}

// handleAccountEvent scores a live account-change notification against the
// last known state.
func (c *Coordinator) handleAccountEvent(address string, update rpc.AccountUpdate) {
	c.tracker.RecordEvent("account", address)
	metrics.EventsTotal.WithLabelValues("account").Inc()

	prev, ok := c.registry.Get(address)
	if !ok {
		return
	}

	var state *scorer.AccountState
	if update.Account != nil {
		state = &scorer.AccountState{
			Lamports:   update.Account.Lamports,
			Owner:      update.Account.Owner,
			Executable: update.Account.Executable,
		}
	}

	eval := c.scorer.EvaluateAccountSnapshot(prev.Exists, prev.Lamports, state)

	c.registry.Update(address, func(w *watchlist.Wallet) {
		w.Exists = update.Account != nil
		if update.Account != nil {
			w.Lamports = update.Account.Lamports
		}
		w.LastActivity = time.Now()
	})

	if eval.Reportable() {
		c.report(address, alert.SnapshotKey(address, update.Slot), eval, enrich.TxContext{})
	}

	c.publish(EventRecord{
		Time:     time.Now(),
		Address:  address,
		Source:   "account",
		Score:    eval.Score,
		Reported: eval.Reportable(),
	})
}

// handleLogsEvent scores a log-stream notification. The full transaction is
// fetched with a bounded timeout; when the fetch fails the raw log lines are
// still scored.
func (c *Coordinator) handleLogsEvent(address string, update rpc.LogsUpdate) {
	c.tracker.RecordEvent("transaction", address)
	metrics.EventsTotal.WithLabelValues("transaction").Inc()

	now := time.Now()
	var window scorer.WindowStats
	found := c.registry.Update(address, func(w *watchlist.Wallet) {
		if now.Sub(w.WindowStart) > c.opts.CounterWindow {
			w.WindowStart = now
			w.WindowCount = 0
		}
		w.WindowCount++
		w.LastActivity = now
		if w.Profile != nil {
			w.Profile.RecordTx(now)
		}
		window = scorer.WindowStats{Count: w.WindowCount, Started: w.WindowStart}
	})
	if !found {
		return
	}

	logs := update.Logs
	var meta *scorer.TxMeta

	fetchCtx, cancel := context.WithTimeout(context.Background(), c.opts.TxFetchTimeout)
	detail, err := c.gateway.GetTransaction(fetchCtx, update.Signature)
	cancel()
	switch {
	case err != nil:
		metrics.ProviderErrors.WithLabelValues("getTransaction").Inc()
		if !errors.Is(err, context.Canceled) {
			slog.Debug("tx_fetch_failed", "signature", update.Signature, "error", err)
		}
	case detail != nil:
		meta = &scorer.TxMeta{
			Failed:       detail.Failed || update.Failed,
			Fee:          detail.Fee,
			AccountKeys:  detail.AccountKeys,
			PreBalances:  detail.PreBalances,
			PostBalances: detail.PostBalances,
		}
		if len(logs) == 0 {
			logs = detail.LogMessages
		}
	}

	eval := c.scorer.EvaluateTransaction(update.Signature, logs, meta, window)

	c.publish(EventRecord{
		Time:      now,
		Address:   address,
		Source:    "transaction",
		Signature: update.Signature,
		Score:     eval.Score,
		Reported:  eval.Reportable(),
	})

	if !eval.Reportable() {
		return
	}

	c.report(address, alert.TxKey(address, update.Signature), eval, enrich.TxContext{
		Signature: update.Signature,
		Logs:      logs,
		Meta:      meta,
	})
}

// report synthesizes an alert for a reportable evaluation. Events for a
// wallet unwatched while in flight are dropped here, after the registry
// re-check. Enrichment runs fire-and-continue: the alert is delivered
// unenriched first and upgraded if the service responds.
func (c *Coordinator) report(address, key string, eval scorer.Evaluation, txCtx enrich.TxContext) {
	w, ok := c.registry.Get(address)
	if !ok || w.State == watchlist.StateStopped {
		slog.Debug("evaluation_dropped", "address", address, "reason", "unwatched")
		return
	}

	a, delivered := c.synth.Submit(key, address, w.UserID, eval)
	if delivered {
		c.tracker.RecordAlert(string(a.Severity), a.Score, address)
		metrics.AlertsTotal.WithLabelValues(string(a.Severity)).Inc()
	}

	if c.enricher == nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		start := time.Now()
		res, ok := c.enricher.Enrich(context.Background(), address, eval, txCtx, w.Profile)
		metrics.ObserveEnrichment(ok, time.Since(start))
		c.tracker.RecordEnrichment(ok)
		if !ok {
			return
		}
		c.synth.ApplyEnrichment(key, res)
	}()
}
