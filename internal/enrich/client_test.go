package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solsentry/engine/internal/scorer"
	"github.com/solsentry/engine/internal/watchlist"
)

func sampleEval() scorer.Evaluation {
	return scorer.Evaluation{
		Source:    scorer.SourceTransaction,
		Signature: "sig-1",
		Score:     80,
		Severity:  scorer.SeverityCritical,
		Findings: []scorer.Finding{
			{Kind: scorer.KindApproval, Description: "approval language", Weight: scorer.WeightApproval},
			{Kind: scorer.KindUnknownProgram, Description: "unknown program", Weight: scorer.WeightUnknownProgram},
		},
	}
}

func TestEnrichSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 80, req.Score)
		assert.Len(t, req.Findings, 2)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(Result{
			ThreatLevel:    "CRITICAL",
			Confidence:     92,
			Threats:        []string{"wallet-drainer"},
			Recommendation: "revoke approvals immediately",
			Explanation:    "approval to an unverified program",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", time.Second)
	profile := watchlist.NewProfile(time.Now())

	res, ok := c.Enrich(context.Background(), "addr", sampleEval(), TxContext{Signature: "sig-1"}, profile)
	require.True(t, ok)
	assert.Equal(t, 92, res.Confidence)
	assert.Equal(t, 90, res.OpinionScore())

	// Heuristic finding kinds and service threat labels both land on the
	// profile's pattern-tag set.
	tags := profile.Tags()
	assert.Contains(t, tags, string(scorer.KindApproval))
	assert.Contains(t, tags, "wallet-drainer")
}

func TestEnrichNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	_, ok := c.Enrich(context.Background(), "addr", sampleEval(), TxContext{}, nil)
	assert.False(t, ok)
}

func TestEnrichMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	_, ok := c.Enrich(context.Background(), "addr", sampleEval(), TxContext{}, nil)
	assert.False(t, ok)
}

func TestEnrichTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 50*time.Millisecond)
	profile := watchlist.NewProfile(time.Now())

	_, ok := c.Enrich(context.Background(), "addr", sampleEval(), TxContext{}, profile)
	assert.False(t, ok)

	// Tag accumulation still happened even though the call failed.
	assert.Contains(t, profile.Tags(), string(scorer.KindApproval))
}

func TestEnrichProfileTagsWithoutEndpoint(t *testing.T) {
	c := New("", "", time.Second)
	profile := watchlist.NewProfile(time.Now())

	_, ok := c.Enrich(context.Background(), "addr", sampleEval(), TxContext{}, profile)
	assert.False(t, ok)
	assert.Contains(t, profile.Tags(), string(scorer.KindUnknownProgram))
}

func TestOpinionScore(t *testing.T) {
	cases := map[string]int{
		"CRITICAL": 90,
		"critical": 90,
		"HIGH":     75,
		"MEDIUM":   60,
		"LOW":      40,
		"whatever": 0,
		"":         0,
	}
	for level, want := range cases {
		r := Result{ThreatLevel: level}
		assert.Equal(t, want, r.OpinionScore(), "level %q", level)
	}
}
