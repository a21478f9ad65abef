// Package scorer turns raw wallet events into weighted findings and risk scores.
package scorer

// FindingKind identifies a single class of detected signal.
type FindingKind string

const (
	KindAccountMissing    FindingKind = "ACCOUNT_MISSING"
	KindAccountDrained    FindingKind = "ACCOUNT_DRAINED"
	KindAuthorityTransfer FindingKind = "AUTHORITY_TRANSFER"
	KindLargeTransfer     FindingKind = "LARGE_TRANSFER"
	KindUnknownProgram    FindingKind = "UNKNOWN_PROGRAM_CALL"
	KindFlaggedProgram    FindingKind = "FLAGGED_PROGRAM_CALL"
	KindApproval          FindingKind = "APPROVAL_DETECTED"
	KindHighFrequency     FindingKind = "HIGH_TX_FREQUENCY"
	KindTxFailed          FindingKind = "TX_FAILED"
	KindKeyFanout         FindingKind = "ACCOUNT_FANOUT"
	KindBalanceDrop       FindingKind = "BALANCE_DROP"
	KindAnalysisError     FindingKind = "ANALYSIS_ERROR"
)

// Finding weights. Summed per evaluation, total clamped to [0, 100].
const (
	WeightAccountMissing    = 90
	WeightAccountDrained    = 85
	WeightAuthorityTransfer = 60
	WeightLargeTransfer     = 40
	WeightUnknownProgram    = 30
	WeightFlaggedProgram    = 80
	WeightApproval          = 50
	WeightHighFrequency     = 35
	WeightTxFailed          = 20
	WeightKeyFanout         = 25
	WeightBalanceDrop       = 30
	WeightAnalysisError     = 10
)

// Severity is the alert tier derived from a score.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// Classification and reporting thresholds.
const (
	// CriticalScore is the score at or above which an evaluation is CRITICAL.
	CriticalScore = 70

	// TxReportThreshold is the score a transaction-sourced evaluation must
	// exceed to be reported.
	TxReportThreshold = 40

	// SnapshotReportThreshold is the score an account-snapshot evaluation
	// must exceed to be reported. Snapshot signals are rarer but conclusive,
	// so the bar differs from the transaction path.
	SnapshotReportThreshold = 50

	// MaxScore caps the summed weights of an evaluation.
	MaxScore = 100
)

// Source distinguishes how an evaluation was triggered.
type Source string

const (
	SourceSnapshot    Source = "snapshot"
	SourceTransaction Source = "transaction"
)

// Finding is one immutable detected signal.
type Finding struct {
	Kind        FindingKind
	Description string
	Weight      int
}

// Evaluation aggregates the findings for a single trigger event.
type Evaluation struct {
	Source    Source
	Signature string // triggering transaction signature, empty for snapshots
	Findings  []Finding
	Score     int
	Severity  Severity
}

// Reportable reports whether the evaluation crosses the emission threshold
// for its source. Sub-threshold evaluations are discarded by the caller.
func (e Evaluation) Reportable() bool {
	switch e.Source {
	case SourceSnapshot:
		return e.Score > SnapshotReportThreshold
	default:
		return e.Score > TxReportThreshold
	}
}

// finalize computes the clamped score and severity from accumulated findings.
func finalize(source Source, signature string, findings []Finding) Evaluation {
	score := 0
	for _, f := range findings {
		score += f.Weight
	}
	if score > MaxScore {
		score = MaxScore
	}

	severity := SeverityWarning
	if score >= CriticalScore {
		severity = SeverityCritical
	}

	return Evaluation{
		Source:    source,
		Signature: signature,
		Findings:  findings,
		Score:     score,
		Severity:  severity,
	}
}
