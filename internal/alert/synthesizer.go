package alert

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/solsentry/engine/internal/enrich"
	"github.com/solsentry/engine/internal/scorer"
)

// DefaultEntryTTL is how long a dedup entry is retained after creation.
// Enrichment arriving later than this finds no entry and is dropped.
const DefaultEntryTTL = 30 * time.Minute

// entry tracks the synthesized alert for one dedup key.
type entry struct {
	alert     Alert
	seenKinds map[scorer.FindingKind]bool
	seenLabel map[string]bool
	createdAt time.Time
}

// Synthesizer merges evaluations and late-arriving enrichment into at most
// one delivered Alert per dedup key. Safe for concurrent use from many
// wallet pumps and the sweep.
type Synthesizer struct {
	mu      sync.Mutex
	entries map[string]*entry
	sink    Sink
	seq     atomic.Uint64
	ttl     time.Duration
}

// NewSynthesizer creates a Synthesizer delivering to the given sink.
func NewSynthesizer(sink Sink, ttl time.Duration) *Synthesizer {
	if ttl == 0 {
		ttl = DefaultEntryTTL
	}
	return &Synthesizer{
		entries: make(map[string]*entry),
		sink:    sink,
		ttl:     ttl,
	}
}

// Submit synthesizes an alert for a reportable evaluation. The first
// evaluation for a dedup key produces a delivered Alert; later evaluations
// for the same key are folded into the held entry without re-delivery.
// Returns the alert and whether it was newly delivered.
func (s *Synthesizer) Submit(key, address, userID string, eval scorer.Evaluation) (Alert, bool) {
	s.mu.Lock()

	if e, ok := s.entries[key]; ok {
		// Duplicate trigger for a key we already alerted on. Note any new
		// finding kinds so a later enrichment merge sees them, but do not
		// emit a second alert.
		for _, f := range eval.Findings {
			e.seenKinds[f.Kind] = true
		}
		a := e.alert
		s.mu.Unlock()
		return a, false
	}

	a := Alert{
		ID:        uuid.NewString(),
		Sequence:  s.seq.Add(1),
		Address:   address,
		UserID:    userID,
		Severity:  eval.Severity,
		Score:     eval.Score,
		Findings:  eval.Findings,
		DedupKey:  key,
		CreatedAt: time.Now(),
	}

	e := &entry{
		alert:     a,
		seenKinds: make(map[scorer.FindingKind]bool, len(eval.Findings)),
		seenLabel: make(map[string]bool),
		createdAt: a.CreatedAt,
	}
	for _, f := range eval.Findings {
		e.seenKinds[f.Kind] = true
	}
	s.entries[key] = e
	s.mu.Unlock()

	s.deliver(a)
	return a, true
}

// ApplyEnrichment merges a late-arriving enrichment result into the alert
// held for key. The severity opinion may only raise the score, and only
// when confidence exceeds the merge bar. A new Alert is delivered only when
// the merge changes the severity tier or introduces a previously-unseen
// threat label; otherwise the narrative is attached without re-delivery.
func (s *Synthesizer) ApplyEnrichment(key string, res *enrich.Result) {
	if res == nil {
		return
	}

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		slog.Debug("enrichment_for_unknown_key", "key", key)
		return
	}

	newLabel := false
	for _, label := range res.Threats {
		if label == "" || e.seenLabel[label] {
			continue
		}
		e.seenLabel[label] = true
		e.alert.ThreatLabels = append(e.alert.ThreatLabels, label)
		newLabel = true
	}

	e.alert.Narrative = res.Explanation
	e.alert.Recommendation = res.Recommendation
	e.alert.Confidence = res.Confidence

	tierRaised := false
	if res.Confidence > enrich.MinConfidence {
		if opinion := res.OpinionScore(); opinion > e.alert.Score {
			e.alert.Score = opinion
			if e.alert.Severity != scorer.SeverityCritical && opinion >= scorer.CriticalScore {
				e.alert.Severity = scorer.SeverityCritical
				tierRaised = true
			}
		}
	}

	redeliver := res.Confidence > enrich.MinConfidence && (tierRaised || newLabel)

	var out Alert
	if redeliver {
		// The merge changed what the user should be told: emit a fresh
		// Alert for the same dedup key.
		e.alert.ID = uuid.NewString()
		e.alert.Sequence = s.seq.Add(1)
		e.alert.CreatedAt = time.Now()
		out = e.alert
	}
	s.mu.Unlock()

	if redeliver {
		s.deliver(out)
	}
}

// Get returns the currently held alert for a dedup key.
func (s *Synthesizer) Get(key string) (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.alert, true
	}
	return Alert{}, false
}

// Cleanup drops dedup entries older than the TTL. Called periodically so
// the table does not grow without bound.
func (s *Synthesizer) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	for key, e := range s.entries {
		if e.createdAt.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}

// Pending returns the number of live dedup entries.
func (s *Synthesizer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// deliver hands an alert to the sink. Failures are logged, never retried;
// the sink owns any retry policy.
func (s *Synthesizer) deliver(a Alert) {
	if err := s.sink.Deliver(a); err != nil {
		slog.Warn("alert_delivery_failed", "alert", a.ID, "key", a.DedupKey, "error", err)
		return
	}
	slog.Info("alert_delivered",
		"alert", a.ID,
		"severity", a.Severity,
		"score", a.Score,
		"address", a.Address,
		"key", a.DedupKey,
	)
}
