package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsTotal counts inbound provider events by source.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solsentry",
		Name:      "events_total",
		Help:      "Total provider events processed, by source.",
	}, []string{"source"})

	// AlertsTotal counts delivered alerts by severity.
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solsentry",
		Name:      "alerts_total",
		Help:      "Total alerts delivered, by severity.",
	}, []string{"severity"})

	// WatchedWallets is the current number of watched wallets.
	WatchedWallets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "solsentry",
		Name:      "watched_wallets",
		Help:      "Number of wallets currently watched.",
	})

	// EnrichmentRequests counts enrichment attempts by outcome.
	EnrichmentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solsentry",
		Name:      "enrichment_requests_total",
		Help:      "Total enrichment requests, by outcome.",
	}, []string{"outcome"})

	// EnrichmentLatency observes enrichment round-trip time.
	EnrichmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "solsentry",
		Name:      "enrichment_latency_seconds",
		Help:      "Enrichment request latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// SweepFailures counts per-wallet reconciliation failures.
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "solsentry",
		Name:      "sweep_failures_total",
		Help:      "Total per-wallet reconciliation failures.",
	})

	// ProviderErrors counts RPC provider errors by operation.
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solsentry",
		Name:      "provider_errors_total",
		Help:      "Total RPC provider errors, by operation.",
	}, []string{"op"})
)

// ObserveEnrichment records one enrichment attempt on both the Prometheus
// counters and the latency histogram.
func ObserveEnrichment(ok bool, elapsed time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	EnrichmentRequests.WithLabelValues(outcome).Inc()
	EnrichmentLatency.Observe(elapsed.Seconds())
}

// Serve exposes /metrics on the given port in a background goroutine.
func Serve(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	go func() {
		slog.Info("metrics_server_started", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics_server_failed", "error", err)
		}
	}()
}
