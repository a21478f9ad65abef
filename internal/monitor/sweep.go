package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/solsentry/engine/internal/alert"
	"github.com/solsentry/engine/internal/enrich"
	"github.com/solsentry/engine/internal/metrics"
	"github.com/solsentry/engine/internal/rpc"
	"github.com/solsentry/engine/internal/scorer"
	"github.com/solsentry/engine/internal/watchlist"
)

// sweepLoop runs the periodic reconciliation pass.
func (c *Coordinator) sweepLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
			c.synth.Cleanup()
		}
	}
}

// sweepOnce reconciles every watched wallet against the chain. A failure on
// one wallet never aborts the pass: the wallet keeps its previous state and
// the remaining wallets are still swept.
func (c *Coordinator) sweepOnce(ctx context.Context) {
	c.sweepTick++
	tick := c.sweepTick

	wallets := c.registry.Snapshot()
	failures := 0

	for _, w := range wallets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.sweepWallet(ctx, w, tick); err != nil {
			failures++
			metrics.SweepFailures.Inc()
			slog.Warn("sweep_wallet_failed", "address", w.Address, "error", err)
		}
	}

	c.tracker.RecordSweep()
	c.tracker.SetWebSocketStatus(wsStatus(c.gateway.Connected()))
	slog.Info("sweep_completed", "tick", tick, "wallets", len(wallets), "failures", failures)
}

// sweepWallet reconciles one wallet: fresh snapshot, counter-window reset,
// subscription retry, and signature backfill while the log stream is down.
func (c *Coordinator) sweepWallet(ctx context.Context, w watchlist.Wallet, tick uint64) error {
	info, err := c.gateway.GetAccountInfo(ctx, w.Address)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("getAccountInfo").Inc()
		return err
	}

	eval := c.scorer.EvaluateAccountSnapshot(w.Exists, w.Lamports, accountState(info))

	now := time.Now()
	updated := c.registry.Update(w.Address, func(w *watchlist.Wallet) {
		w.Exists = info != nil
		if info != nil {
			w.Lamports = info.Lamports
		}
		w.LastReconciled = now
		if now.Sub(w.WindowStart) > c.opts.CounterWindow {
			w.WindowStart = now
			w.WindowCount = 0
		}
	})
	if !updated {
		// Unwatched mid-sweep.
		return nil
	}

	if eval.Reportable() {
		c.report(w.Address, alert.SweepKey(w.Address, tick), eval, enrich.TxContext{})
	}

	if w.State == watchlist.StatePending || w.State == watchlist.StateDegraded ||
		w.AccountSub == 0 || w.LogsSub == 0 {
		c.retrySubscriptions(ctx, w)
	}

	if w.LogsSub == 0 {
		c.backfill(ctx, w.Address)
	}
	return nil
}

// retrySubscriptions re-attempts the subscriptions a wallet is missing.
func (c *Coordinator) retrySubscriptions(ctx context.Context, w watchlist.Wallet) {
	address := w.Address

	accountSub := w.AccountSub
	if accountSub == 0 {
		sub, err := c.gateway.SubscribeAccount(ctx, address, func(u rpc.AccountUpdate) {
			c.dispatch(address, walletEvent{account: &u})
		})
		if err != nil {
			metrics.ProviderErrors.WithLabelValues("accountSubscribe").Inc()
			slog.Debug("sweep_resubscribe_failed", "address", address, "kind", "account", "error", err)
		} else {
			accountSub = sub
		}
	}

	logsSub := w.LogsSub
	if logsSub == 0 {
		sub, err := c.gateway.SubscribeLogs(ctx, address, func(u rpc.LogsUpdate) {
			c.dispatch(address, walletEvent{logs: &u})
		})
		if err != nil {
			metrics.ProviderErrors.WithLabelValues("logsSubscribe").Inc()
			slog.Debug("sweep_resubscribe_failed", "address", address, "kind", "logs", "error", err)
		} else {
			logsSub = sub
		}
	}

	state := watchlist.StateActive
	if accountSub == 0 && logsSub == 0 {
		state = watchlist.StateDegraded
	}

	recovered := accountSub != w.AccountSub || logsSub != w.LogsSub
	updated := c.registry.Update(address, func(w *watchlist.Wallet) {
		w.AccountSub = accountSub
		w.LogsSub = logsSub
		w.State = state
	})
	if !updated {
		for _, handle := range []uint64{accountSub, logsSub} {
			if handle != 0 {
				c.gateway.Unsubscribe(ctx, handle)
			}
		}
		return
	}

	c.tracker.SetWalletState(address, w.UserID, string(state))
	if recovered {
		slog.Info("wallet_subscriptions_recovered", "address", address, "state", state)
	}
}

// backfill replays recent signatures for a wallet whose log stream is down.
// The synthesizer's dedup keys make replaying an already-seen signature
// harmless.
func (c *Coordinator) backfill(ctx context.Context, address string) {
	sigs, err := c.gateway.GetSignatures(ctx, address, c.opts.BackfillLimit)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("getSignaturesForAddress").Inc()
		slog.Debug("backfill_failed", "address", address, "error", err)
		return
	}

	for _, sig := range sigs {
		c.dispatch(address, walletEvent{logs: &rpc.LogsUpdate{
			Signature: sig.Signature,
			Failed:    sig.Failed(),
		}})
	}

	if len(sigs) > 0 {
		slog.Debug("backfill_dispatched", "address", address, "signatures", len(sigs))
	}
}

func accountState(info *rpc.AccountInfo) *scorer.AccountState {
	if info == nil {
		return nil
	}
	return &scorer.AccountState{
		Lamports:   info.Lamports,
		Owner:      info.Owner,
		Executable: info.Executable,
	}
}

func wsStatus(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}
