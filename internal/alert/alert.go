// Package alert synthesizes deduplicated, prioritized alerts from threat
// evaluations and hands them to an output sink.
package alert

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/solsentry/engine/internal/scorer"
)

// Alert is the immutable outward-facing artifact derived from a qualifying
// evaluation.
type Alert struct {
	ID       string
	Sequence uint64

	Address string
	UserID  string

	Severity scorer.Severity
	Score    int
	Findings []scorer.Finding

	// Enrichment narrative, empty until/unless the AI service responded.
	Narrative      string
	Recommendation string
	Confidence     int
	ThreatLabels   []string

	DedupKey  string
	CreatedAt time.Time
}

// TxKey builds the dedup key for a transaction-sourced evaluation.
func TxKey(address, signature string) string {
	return address + ":" + signature
}

// SweepKey builds the dedup key for a sweep-sourced evaluation.
func SweepKey(address string, tick uint64) string {
	return fmt.Sprintf("%s:sweep-%d", address, tick)
}

// SnapshotKey builds the dedup key for a live account-change evaluation.
func SnapshotKey(address string, slot uint64) string {
	return fmt.Sprintf("%s:slot-%d", address, slot)
}

// Sink receives synthesized alerts. Delivery is fire-and-forget: a failure
// is logged by the synthesizer, never retried.
type Sink interface {
	Deliver(Alert) error
}

// ChannelSink delivers alerts onto a buffered channel consumed by the
// dashboard or another forwarder. A full channel drops the delivery.
type ChannelSink struct {
	C chan Alert
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan Alert, buffer)}
}

// Deliver implements Sink.
func (s *ChannelSink) Deliver(a Alert) error {
	select {
	case s.C <- a:
		return nil
	default:
		return fmt.Errorf("alert channel full, dropped %s", a.ID)
	}
}

// LogSink writes alerts to the structured log. Used in background mode.
type LogSink struct{}

// Deliver implements Sink.
func (LogSink) Deliver(a Alert) error {
	kinds := make([]string, 0, len(a.Findings))
	for _, f := range a.Findings {
		kinds = append(kinds, string(f.Kind))
	}
	slog.Warn("alert",
		"severity", a.Severity,
		"score", a.Score,
		"address", a.Address,
		"user", a.UserID,
		"findings", kinds,
		"narrative", a.Narrative,
	)
	return nil
}
