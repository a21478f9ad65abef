package scorer

import (
	"fmt"
	"time"
)

// Default thresholds for structural and frequency checks.
const (
	DefaultLargeTransferLamports = 1_000_000_000 // 1 SOL
	DefaultBalanceDropLamports   = 1_000_000_000
	DefaultFanoutKeys            = 10
	DefaultFreqTxCount           = 5
	DefaultFreqRatePerMin        = 2.0

	// FreqMinWindow is the minimum observation-window age before the
	// per-minute rate check runs. Immediately after a counter reset the
	// elapsed time is near zero and the rate would be unbounded.
	FreqMinWindow = 10 * time.Second
)

// AccountState is the scorer's view of an on-chain account. A nil
// *AccountState means the account does not exist.
type AccountState struct {
	Lamports   uint64
	Owner      string
	Executable bool
}

// TxMeta is the scorer's view of finalized transaction metadata. A nil
// *TxMeta means the transaction could not be fetched; log lines are still
// scanned in that case.
type TxMeta struct {
	Failed       bool
	Fee          uint64
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
}

// WindowStats is the rolling activity of a wallet inside its current
// observation window, used by the frequency check.
type WindowStats struct {
	Count   int
	Started time.Time
}

// Scorer evaluates events against the detection rule table. It holds only
// configuration; evaluation is pure and safe for concurrent use.
type Scorer struct {
	LargeTransferLamports uint64
	BalanceDropLamports   uint64
	FanoutKeys            int
	FreqTxCount           int
	FreqRatePerMin        float64
}

// New creates a Scorer with the default thresholds.
func New() *Scorer {
	return &Scorer{
		LargeTransferLamports: DefaultLargeTransferLamports,
		BalanceDropLamports:   DefaultBalanceDropLamports,
		FanoutKeys:            DefaultFanoutKeys,
		FreqTxCount:           DefaultFreqTxCount,
		FreqRatePerMin:        DefaultFreqRatePerMin,
	}
}

// EvaluateAccountSnapshot scores an account-change event against the last
// known state of the account.
func (s *Scorer) EvaluateAccountSnapshot(prevExists bool, prevLamports uint64, current *AccountState) Evaluation {
	var findings []Finding

	switch {
	case prevExists && current == nil:
		findings = append(findings, Finding{
			Kind:        KindAccountMissing,
			Description: "Account closed or emptied",
			Weight:      WeightAccountMissing,
		})
	case current != nil && current.Lamports == 0 && prevLamports > 0:
		findings = append(findings, Finding{
			Kind:        KindAccountDrained,
			Description: fmt.Sprintf("Account balance drained to zero (was %d lamports)", prevLamports),
			Weight:      WeightAccountDrained,
		})
	}

	return finalize(SourceSnapshot, "", findings)
}

// EvaluateTransaction scores a transaction-log event. meta may be nil when
// the transaction fetch failed; the raw log lines are still scanned. An
// event with nothing to scan at all yields a single low-weight
// analysis-error finding rather than an error.
func (s *Scorer) EvaluateTransaction(signature string, logs []string, meta *TxMeta, window WindowStats) Evaluation {
	if len(logs) == 0 && meta == nil {
		return finalize(SourceTransaction, signature, []Finding{{
			Kind:        KindAnalysisError,
			Description: "Transaction payload missing or unparseable",
			Weight:      WeightAnalysisError,
		}})
	}

	var findings []Finding

	ctx := newLogContext(logs)
	for _, rule := range s.logRules() {
		if ok, desc := rule.match(ctx); ok {
			findings = append(findings, Finding{Kind: rule.kind, Description: desc, Weight: rule.weight})
		}
	}

	findings = append(findings, s.structuralFindings(meta)...)

	if f, ok := s.frequencyFinding(window); ok {
		findings = append(findings, f)
	}

	return finalize(SourceTransaction, signature, findings)
}

// structuralFindings checks transaction metadata independent of log text.
func (s *Scorer) structuralFindings(meta *TxMeta) []Finding {
	if meta == nil {
		return nil
	}

	var findings []Finding

	if meta.Failed {
		findings = append(findings, Finding{
			Kind:        KindTxFailed,
			Description: "Transaction failed on-chain",
			Weight:      WeightTxFailed,
		})
	}

	if distinctKeys(meta.AccountKeys) > s.FanoutKeys {
		findings = append(findings, Finding{
			Kind:        KindKeyFanout,
			Description: fmt.Sprintf("Transaction touches %d distinct accounts", distinctKeys(meta.AccountKeys)),
			Weight:      WeightKeyFanout,
		})
	}

	// One finding per balance drop above the threshold. The fee payer's fee
	// deduction stays below it.
	n := len(meta.PreBalances)
	if len(meta.PostBalances) < n {
		n = len(meta.PostBalances)
	}
	for i := 0; i < n; i++ {
		pre, post := meta.PreBalances[i], meta.PostBalances[i]
		if pre > post && pre-post >= s.BalanceDropLamports {
			findings = append(findings, Finding{
				Kind:        KindBalanceDrop,
				Description: fmt.Sprintf("Balance of account %d dropped by %d lamports", i, pre-post),
				Weight:      WeightBalanceDrop,
			})
		}
	}

	return findings
}

// frequencyFinding flags anomalous transaction bursts. The check is skipped
// while the observation window is younger than FreqMinWindow.
func (s *Scorer) frequencyFinding(window WindowStats) (Finding, bool) {
	if window.Count <= s.FreqTxCount || window.Started.IsZero() {
		return Finding{}, false
	}

	elapsed := time.Since(window.Started)
	if elapsed < FreqMinWindow {
		return Finding{}, false
	}

	rate := float64(window.Count) / elapsed.Minutes()
	if rate <= s.FreqRatePerMin {
		return Finding{}, false
	}

	return Finding{
		Kind:        KindHighFrequency,
		Description: fmt.Sprintf("%d transactions in window (%.1f/min)", window.Count, rate),
		Weight:      WeightHighFrequency,
	}, true
}

// distinctKeys counts unique account keys.
func distinctKeys(keys []string) int {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	return len(seen)
}
