package scorer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// logContext is the pre-processed view of one transaction's log lines that
// the rule table matches against.
type logContext struct {
	lines  []string
	joined string // all lines lowercased and joined
}

func newLogContext(lines []string) *logContext {
	return &logContext{
		lines:  lines,
		joined: strings.ToLower(strings.Join(lines, "\n")),
	}
}

// logRule is one declarative detection rule. Adding a signal is a table
// change, not new control flow.
type logRule struct {
	kind   FindingKind
	weight int
	match  func(c *logContext) (bool, string)
}

// flaggedTerms are block-listed phrases that mark a transaction as hostile
// regardless of other context.
var flaggedTerms = []string{"drainer", "stealer", "phishing", "sweeper", "honeypot"}

// approvalTerms indicate delegation/allowance language.
var approvalTerms = []string{"approve", "allowance", "delegat"}

// allowedPrograms are well-known program ids whose invocation is not
// suspicious on its own.
var allowedPrograms = map[string]bool{
	"11111111111111111111111111111111":             true, // system
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA":  true, // spl-token
	"TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb":  true, // token-2022
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL": true, // associated token account
	"MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr":  true, // memo
	"ComputeBudget111111111111111111111111111111":  true, // compute budget
}

var (
	// Native format: "Program <id> invoke [1]". Loose format seen from some
	// providers: "Program invoke: <id>".
	programInvokeRe = regexp.MustCompile(`(?i)^program (\S+) invoke`)
	programLooseRe  = regexp.MustCompile(`(?i)program invoke:?\s+(\S+)`)

	// Lamport amounts attached to transfer language.
	transferAmountRe = regexp.MustCompile(`(?i)transfer(?:red)?(?:\s+of)?:?\s+([0-9]+)`)
)

// logRules builds the declarative rule table. Rules that need thresholds
// close over the scorer's configuration.
func (s *Scorer) logRules() []logRule {
	return []logRule{
		{
			kind:   KindAuthorityTransfer,
			weight: WeightAuthorityTransfer,
			match: func(c *logContext) (bool, string) {
				if strings.Contains(c.joined, "authority") && strings.Contains(c.joined, "transfer") {
					return true, "Authority change language alongside transfer activity"
				}
				return false, ""
			},
		},
		{
			kind:   KindFlaggedProgram,
			weight: WeightFlaggedProgram,
			match: func(c *logContext) (bool, string) {
				for _, term := range flaggedTerms {
					if strings.Contains(c.joined, term) {
						return true, fmt.Sprintf("Block-listed term %q in transaction logs", term)
					}
				}
				return false, ""
			},
		},
		{
			kind:   KindApproval,
			weight: WeightApproval,
			match: func(c *logContext) (bool, string) {
				for _, term := range approvalTerms {
					if strings.Contains(c.joined, term) {
						return true, "Token approval or delegation language in transaction logs"
					}
				}
				return false, ""
			},
		},
		{
			kind:   KindLargeTransfer,
			weight: WeightLargeTransfer,
			match: func(c *logContext) (bool, string) {
				for _, line := range c.lines {
					m := transferAmountRe.FindStringSubmatch(line)
					if m == nil {
						continue
					}
					amount, err := strconv.ParseUint(m[1], 10, 64)
					if err != nil {
						continue
					}
					if amount >= s.LargeTransferLamports {
						return true, fmt.Sprintf("Transfer of %d lamports exceeds threshold", amount)
					}
				}
				return false, ""
			},
		},
		{
			kind:   KindUnknownProgram,
			weight: WeightUnknownProgram,
			match: func(c *logContext) (bool, string) {
				unknown := unknownPrograms(c.lines)
				if len(unknown) == 0 {
					return false, ""
				}
				return true, fmt.Sprintf("Invocation of unrecognized program: %s", strings.Join(unknown, ", "))
			},
		},
	}
}

// unknownPrograms extracts distinct invoked program ids that are not on the
// allow-list, preserving first-seen order.
func unknownPrograms(lines []string) []string {
	var unknown []string
	seen := make(map[string]bool)

	for _, line := range lines {
		var id string
		if m := programInvokeRe.FindStringSubmatch(line); m != nil {
			id = m[1]
		} else if m := programLooseRe.FindStringSubmatch(line); m != nil {
			id = m[1]
		}
		if id == "" || seen[id] || allowedPrograms[id] {
			continue
		}
		seen[id] = true
		unknown = append(unknown, id)
	}

	return unknown
}
