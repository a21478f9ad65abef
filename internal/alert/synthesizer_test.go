package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solsentry/engine/internal/enrich"
	"github.com/solsentry/engine/internal/scorer"
)

// recordingSink captures every delivered alert.
type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *recordingSink) Deliver(a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *recordingSink) delivered() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Alert, len(s.alerts))
	copy(cp, s.alerts)
	return cp
}

func criticalEval(sig string) scorer.Evaluation {
	return scorer.Evaluation{
		Source:    scorer.SourceTransaction,
		Signature: sig,
		Score:     80,
		Severity:  scorer.SeverityCritical,
		Findings: []scorer.Finding{
			{Kind: scorer.KindFlaggedProgram, Description: "drainer", Weight: scorer.WeightFlaggedProgram},
		},
	}
}

func warningEval(sig string) scorer.Evaluation {
	return scorer.Evaluation{
		Source:    scorer.SourceTransaction,
		Signature: sig,
		Score:     60,
		Severity:  scorer.SeverityWarning,
		Findings: []scorer.Finding{
			{Kind: scorer.KindAuthorityTransfer, Description: "authority transfer", Weight: scorer.WeightAuthorityTransfer},
		},
	}
}

func TestSubmitDeduplicates(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 0)

	key := TxKey("walletA", "sig-1")
	_, delivered := s.Submit(key, "walletA", "user-1", criticalEval("sig-1"))
	assert.True(t, delivered)

	// Same signature arriving again (e.g. both subscriptions saw it) must
	// not produce a second delivered alert.
	_, delivered = s.Submit(key, "walletA", "user-1", criticalEval("sig-1"))
	assert.False(t, delivered)

	require.Len(t, sink.delivered(), 1)
	assert.Equal(t, uint64(1), sink.delivered()[0].Sequence)
}

func TestDistinctKeysDeliverIndependently(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 0)

	s.Submit(TxKey("walletA", "sig-1"), "walletA", "user-1", criticalEval("sig-1"))
	s.Submit(TxKey("walletA", "sig-2"), "walletA", "user-1", criticalEval("sig-2"))
	s.Submit(SweepKey("walletA", 3), "walletA", "user-1", criticalEval(""))

	alerts := sink.delivered()
	require.Len(t, alerts, 3)
	assert.Less(t, alerts[0].Sequence, alerts[1].Sequence)
	assert.Less(t, alerts[1].Sequence, alerts[2].Sequence)
}

func TestLowConfidenceEnrichmentNeverChangesTier(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 0)

	key := TxKey("walletA", "sig-1")
	s.Submit(key, "walletA", "user-1", warningEval("sig-1"))

	s.ApplyEnrichment(key, &enrich.Result{
		ThreatLevel: "CRITICAL",
		Confidence:  80, // at the bar, not above it
		Explanation: "looks bad",
	})

	// No re-delivery, and the held alert keeps its original tier and score.
	require.Len(t, sink.delivered(), 1)
	held, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, scorer.SeverityWarning, held.Severity)
	assert.Equal(t, 60, held.Score)
	assert.Equal(t, "looks bad", held.Narrative, "narrative still attaches")
}

func TestHighConfidenceEnrichmentRaisesTier(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 0)

	key := TxKey("walletA", "sig-1")
	first, _ := s.Submit(key, "walletA", "user-1", warningEval("sig-1"))

	s.ApplyEnrichment(key, &enrich.Result{
		ThreatLevel:    "CRITICAL",
		Confidence:     95,
		Explanation:    "confirmed drain pattern",
		Recommendation: "move assets now",
	})

	alerts := sink.delivered()
	require.Len(t, alerts, 2, "tier change must re-deliver")
	second := alerts[1]
	assert.Equal(t, scorer.SeverityCritical, second.Severity)
	assert.Equal(t, 90, second.Score)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, key, second.DedupKey, "re-delivery keeps the dedup key")
	assert.Greater(t, second.Sequence, first.Sequence)
}

func TestEnrichmentCannotLowerScore(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 0)

	key := TxKey("walletA", "sig-1")
	s.Submit(key, "walletA", "user-1", criticalEval("sig-1"))

	s.ApplyEnrichment(key, &enrich.Result{
		ThreatLevel: "LOW",
		Confidence:  99,
		Explanation: "probably fine",
	})

	held, _ := s.Get(key)
	assert.Equal(t, 80, held.Score, "opinion may only raise, never lower")
	assert.Equal(t, scorer.SeverityCritical, held.Severity)
	require.Len(t, sink.delivered(), 1)
}

func TestNewThreatLabelRedelivers(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 0)

	key := TxKey("walletA", "sig-1")
	s.Submit(key, "walletA", "user-1", criticalEval("sig-1"))

	s.ApplyEnrichment(key, &enrich.Result{
		ThreatLevel: "CRITICAL",
		Confidence:  90,
		Threats:     []string{"wallet-drainer", "wallet-drainer"},
	})

	alerts := sink.delivered()
	require.Len(t, alerts, 2)
	assert.Equal(t, []string{"wallet-drainer"}, alerts[1].ThreatLabels, "labels union with set semantics")

	// The same labels again: nothing new, no re-delivery.
	s.ApplyEnrichment(key, &enrich.Result{
		ThreatLevel: "CRITICAL",
		Confidence:  90,
		Threats:     []string{"wallet-drainer"},
	})
	assert.Len(t, sink.delivered(), 2)
}

func TestEnrichmentForUnknownKeyIsDropped(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 0)

	s.ApplyEnrichment(TxKey("walletA", "sig-x"), &enrich.Result{ThreatLevel: "CRITICAL", Confidence: 99})
	assert.Empty(t, sink.delivered())
}

func TestCleanup(t *testing.T) {
	sink := &recordingSink{}
	s := NewSynthesizer(sink, 10*time.Millisecond)

	s.Submit(TxKey("walletA", "sig-1"), "walletA", "user-1", criticalEval("sig-1"))
	assert.Equal(t, 1, s.Pending())

	time.Sleep(20 * time.Millisecond)
	s.Cleanup()
	assert.Equal(t, 0, s.Pending())

	// After cleanup the same key alerts again.
	_, delivered := s.Submit(TxKey("walletA", "sig-1"), "walletA", "user-1", criticalEval("sig-1"))
	assert.True(t, delivered)
}
