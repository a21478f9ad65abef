package scorer

import (
	"testing"
	"time"
)

func TestEvaluateAccountSnapshot(t *testing.T) {
	s := New()

	// Previously funded account disappears entirely.
	eval := s.EvaluateAccountSnapshot(true, 5_000_000_000, nil)
	if eval.Score < 80 {
		t.Errorf("expected score >= 80 for missing account, got %d", eval.Score)
	}
	if eval.Severity != SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", eval.Severity)
	}
	if len(eval.Findings) != 1 || eval.Findings[0].Description != "Account closed or emptied" {
		t.Errorf("expected 'Account closed or emptied' finding, got %v", eval.Findings)
	}
	if !eval.Reportable() {
		t.Error("expected missing-account evaluation to be reportable")
	}

	// Previously funded account drained to zero lamports.
	eval = s.EvaluateAccountSnapshot(true, 5_000_000_000, &AccountState{Lamports: 0})
	if eval.Score < 80 || eval.Severity != SeverityCritical {
		t.Errorf("expected CRITICAL >= 80 for zero balance, got %d %s", eval.Score, eval.Severity)
	}
	if eval.Findings[0].Kind != KindAccountDrained {
		t.Errorf("expected ACCOUNT_DRAINED finding, got %v", eval.Findings[0].Kind)
	}

	// Account still funded: nothing to report.
	eval = s.EvaluateAccountSnapshot(true, 5_000_000_000, &AccountState{Lamports: 4_000_000_000})
	if eval.Score != 0 || eval.Reportable() {
		t.Errorf("expected empty evaluation for funded account, got %v", eval)
	}

	// Account was never seen before: absence is not a drain.
	eval = s.EvaluateAccountSnapshot(false, 0, nil)
	if eval.Score != 0 {
		t.Errorf("expected score 0 for never-seen account, got %d", eval.Score)
	}
}

func TestEvaluateTransactionAuthorityTransfer(t *testing.T) {
	s := New()

	logs := []string{
		"Program log: Instruction: SetAuthority",
		"Program log: owner authority transferred to new key",
	}
	eval := s.EvaluateTransaction("sig-auth", logs, nil, WindowStats{})

	var found bool
	for _, f := range eval.Findings {
		if f.Kind == KindAuthorityTransfer {
			found = true
			if f.Weight != WeightAuthorityTransfer {
				t.Errorf("expected weight %d, got %d", WeightAuthorityTransfer, f.Weight)
			}
		}
	}
	if !found {
		t.Fatalf("expected AUTHORITY_TRANSFER finding, got %v", eval.Findings)
	}
	if eval.Score < 60 {
		t.Errorf("expected score to reach the WARNING floor, got %d", eval.Score)
	}
	if !eval.Reportable() {
		t.Error("expected authority-transfer evaluation to be reportable")
	}
}

func TestEvaluateTransactionCleanLogs(t *testing.T) {
	s := New()

	logs := []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		"Program 11111111111111111111111111111111 success",
	}
	eval := s.EvaluateTransaction("sig-clean", logs, &TxMeta{
		AccountKeys:  []string{"a", "b"},
		PreBalances:  []uint64{100, 50},
		PostBalances: []uint64{95, 55},
	}, WindowStats{})

	if eval.Score != 0 {
		t.Errorf("expected score 0 for clean transaction, got %d (%v)", eval.Score, eval.Findings)
	}
	if eval.Reportable() {
		t.Error("clean transaction must never be reportable")
	}
}

func TestEvaluateTransactionDrainerScenario(t *testing.T) {
	s := New()

	logs := []string{
		"Program invoke: SomeDrainerProgram",
		"Instruction: approve allowance 500000",
	}
	eval := s.EvaluateTransaction("sig-drain", logs, nil, WindowStats{})

	if eval.Score < 80 {
		t.Errorf("expected score >= 80, got %d (%v)", eval.Score, eval.Findings)
	}
	if eval.Severity != SeverityCritical {
		t.Errorf("expected CRITICAL, got %s", eval.Severity)
	}

	kinds := make(map[FindingKind]bool)
	for _, f := range eval.Findings {
		kinds[f.Kind] = true
	}
	for _, want := range []FindingKind{KindUnknownProgram, KindApproval, KindFlaggedProgram} {
		if !kinds[want] {
			t.Errorf("expected %s finding, got %v", want, eval.Findings)
		}
	}
}

func TestEvaluateTransactionStructural(t *testing.T) {
	s := New()

	meta := &TxMeta{
		Failed:       true,
		AccountKeys:  []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"},
		PreBalances:  []uint64{10_000_000_000, 100},
		PostBalances: []uint64{1_000_000_000, 100},
	}
	eval := s.EvaluateTransaction("sig-struct", []string{"Program log: ok"}, meta, WindowStats{})

	kinds := make(map[FindingKind]int)
	for _, f := range eval.Findings {
		kinds[f.Kind]++
	}
	if kinds[KindTxFailed] != 1 {
		t.Errorf("expected TX_FAILED finding, got %v", eval.Findings)
	}
	if kinds[KindKeyFanout] != 1 {
		t.Errorf("expected ACCOUNT_FANOUT finding, got %v", eval.Findings)
	}
	if kinds[KindBalanceDrop] != 1 {
		t.Errorf("expected one BALANCE_DROP finding, got %v", eval.Findings)
	}
}

func TestEvaluateTransactionMissingPayload(t *testing.T) {
	s := New()

	eval := s.EvaluateTransaction("sig-missing", nil, nil, WindowStats{})
	if len(eval.Findings) != 1 || eval.Findings[0].Kind != KindAnalysisError {
		t.Fatalf("expected single ANALYSIS_ERROR finding, got %v", eval.Findings)
	}
	if eval.Findings[0].Weight != WeightAnalysisError {
		t.Errorf("expected weight %d, got %d", WeightAnalysisError, eval.Findings[0].Weight)
	}
	if eval.Reportable() {
		t.Error("analysis-error evaluation must not be reportable on its own")
	}
}

func TestFrequencyFinding(t *testing.T) {
	s := New()

	// Burst inside a mature window triggers the finding.
	window := WindowStats{Count: 8, Started: time.Now().Add(-2 * time.Minute)}
	if _, ok := s.frequencyFinding(window); !ok {
		t.Error("expected frequency finding for 8 tx in 2 minutes")
	}

	// Window younger than the minimum duration is skipped even with a burst,
	// so a counter reset can never produce an unbounded rate.
	window = WindowStats{Count: 8, Started: time.Now().Add(-1 * time.Second)}
	if _, ok := s.frequencyFinding(window); ok {
		t.Error("expected frequency check to be skipped for a young window")
	}

	// Sustained slow activity stays quiet.
	window = WindowStats{Count: 6, Started: time.Now().Add(-10 * time.Minute)}
	if _, ok := s.frequencyFinding(window); ok {
		t.Error("expected no frequency finding at 0.6 tx/min")
	}
}

func TestScoreClamp(t *testing.T) {
	s := New()

	logs := []string{
		"Program invoke: EvilDrainerProgram",
		"Instruction: approve allowance for new delegate",
		"Program log: authority transferred, transfer of 5000000000 lamports",
	}
	eval := s.EvaluateTransaction("sig-clamp", logs, &TxMeta{Failed: true}, WindowStats{})
	if eval.Score != 100 {
		t.Errorf("expected clamped score 100, got %d", eval.Score)
	}
}
