// Package enrich augments heuristic evaluations with a confidence-scored
// narrative from an external AI reasoning service. It is best-effort: any
// failure degrades to an unenriched alert.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/solsentry/engine/internal/scorer"
	"github.com/solsentry/engine/internal/watchlist"
)

const (
	// DefaultTimeout bounds the enrichment call. The engine never waits
	// indefinitely for the service.
	DefaultTimeout = 8 * time.Second

	// MaxLogExcerptBytes bounds the log excerpt sent to the service.
	MaxLogExcerptBytes = 4096

	// MinConfidence is the confidence a severity opinion must exceed before
	// it may raise an alert's score.
	MinConfidence = 80
)

// Result is the structured outcome of a successful enrichment call.
type Result struct {
	ThreatLevel    string   `json:"threatLevel"`
	Confidence     int      `json:"confidence"`
	Threats        []string `json:"threats"`
	Recommendation string   `json:"recommendation"`
	Explanation    string   `json:"explanation"`
}

// OpinionScore maps the service's severity opinion onto the heuristic score
// scale. Unknown levels carry no opinion.
func (r *Result) OpinionScore() int {
	switch strings.ToUpper(r.ThreatLevel) {
	case "CRITICAL":
		return 90
	case "HIGH":
		return 75
	case "MEDIUM", "WARNING":
		return 60
	case "LOW":
		return 40
	default:
		return 0
	}
}

// request is the payload sent to the service.
type request struct {
	Address    string   `json:"address"`
	Score      int      `json:"score"`
	Severity   string   `json:"severity"`
	Findings   []string `json:"findings"`
	LogExcerpt string   `json:"logExcerpt,omitempty"`
	TxDigest   string   `json:"txDigest,omitempty"`
	KnownTags  []string `json:"knownTags,omitempty"`
}

// TxContext is the transaction material available for the enrichment call.
type TxContext struct {
	Signature string
	Logs      []string
	Meta      *scorer.TxMeta
}

// Client calls the AI enrichment service.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

// New creates a Client. A zero timeout uses DefaultTimeout.
func New(url, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Enrich asks the service for a second opinion on an evaluation. Returns
// (nil, false) on timeout, non-2xx status, or a malformed body; the caller
// proceeds with the unenriched alert. Invoking Enrich records the
// evaluation's finding kinds as pattern tags on the profile regardless of
// whether the call itself succeeds.
func (c *Client) Enrich(ctx context.Context, address string, eval scorer.Evaluation, txCtx TxContext, profile *watchlist.Profile) (*Result, bool) {
	if profile != nil {
		tags := make([]string, 0, len(eval.Findings))
		for _, f := range eval.Findings {
			tags = append(tags, string(f.Kind))
		}
		profile.AddTags(tags...)
	}

	if c == nil || c.url == "" {
		return nil, false
	}

	body, err := json.Marshal(c.buildRequest(address, eval, txCtx, profile))
	if err != nil {
		slog.Warn("enrich_marshal_failed", "error", err)
		return nil, false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("enrich_request_failed", "error", err)
		return nil, false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		slog.Debug("enrich_unavailable", "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("enrich_bad_status", "status", resp.StatusCode)
		return nil, false
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Debug("enrich_malformed_response", "error", err)
		return nil, false
	}

	if profile != nil {
		profile.AddTags(result.Threats...)
	}

	return &result, true
}

// buildRequest assembles the evaluation summary, bounded log excerpt, and
// transaction digest.
func (c *Client) buildRequest(address string, eval scorer.Evaluation, txCtx TxContext, profile *watchlist.Profile) request {
	findings := make([]string, 0, len(eval.Findings))
	for _, f := range eval.Findings {
		findings = append(findings, fmt.Sprintf("%s (+%d): %s", f.Kind, f.Weight, f.Description))
	}

	req := request{
		Address:  address,
		Score:    eval.Score,
		Severity: string(eval.Severity),
		Findings: findings,
	}

	if len(txCtx.Logs) > 0 {
		excerpt := strings.Join(txCtx.Logs, "\n")
		if len(excerpt) > MaxLogExcerptBytes {
			excerpt = excerpt[:MaxLogExcerptBytes]
		}
		req.LogExcerpt = excerpt
	}

	if txCtx.Meta != nil {
		req.TxDigest = fmt.Sprintf("sig=%s failed=%t fee=%d keys=%d",
			txCtx.Signature, txCtx.Meta.Failed, txCtx.Meta.Fee, len(txCtx.Meta.AccountKeys))
	} else if txCtx.Signature != "" {
		req.TxDigest = "sig=" + txCtx.Signature
	}

	if profile != nil {
		req.KnownTags = profile.Tags()
	}

	return req
}
