package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds the bot's Prometheus collectors
type Metrics struct {
	LastBlock        *prometheus.GaugeVec
	PendingSeen      *prometheus.CounterVec
	PendingRejected  *prometheus.CounterVec // labelled by reason
	TrackedTxs       *prometheus.GaugeVec
	SwapsExtracted   *prometheus.CounterVec // labelled by direction
	Candidates       *prometheus.CounterVec
	Sandwiches       *prometheus.CounterVec // labelled by outcome
	BundlesSubmitted *prometheus.CounterVec
	BundlesDeduped   *prometheus.CounterVec
	RelayErrors      *prometheus.CounterVec // labelled by relay
	WorkerDuration   *prometheus.HistogramVec
	WorkersSaturated *prometheus.CounterVec
	StaleCompletions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		LastBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_block", Help: "Latest head processed by the tracker.",
		}, nil),
		PendingSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pending_seen_total", Help: "Pending transactions delivered by the source.",
		}, nil),
		PendingRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pending_rejected_total", Help: "Pending transactions not tracked.",
		}, []string{"reason"}),
		TrackedTxs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tracked_txs", Help: "Transactions currently in the tracked table.",
		}, nil),
		SwapsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "swaps_extracted_total", Help: "Classified swaps found in pending transactions.",
		}, []string{"direction"}),
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "candidates_total", Help: "Sandwich candidates built.",
		}, nil),
		Sandwiches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sandwiches_total", Help: "Optimizer outcomes.",
		}, []string{"outcome"}),
		BundlesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bundles_submitted_total", Help: "Bundles accepted by at least one relay.",
		}, nil),
		BundlesDeduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bundles_deduplicated_total", Help: "Bundles dropped as already attempted.",
		}, nil),
		RelayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relay_errors_total", Help: "Failed relay submissions.",
		}, []string{"relay"}),
		WorkerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "worker_duration_seconds", Help: "Extraction and optimization time per transaction.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
		}, nil),
		WorkersSaturated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "workers_saturated_total", Help: "Transactions tracked without evaluation because every worker was busy.",
		}, nil),
		StaleCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stale_completions_total", Help: "Worker results discarded on apply.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LastBlock, m.PendingSeen, m.PendingRejected, m.TrackedTxs,
			m.SwapsExtracted, m.Candidates, m.Sandwiches,
			m.BundlesSubmitted, m.BundlesDeduped, m.RelayErrors,
			m.WorkerDuration, m.WorkersSaturated, m.StaleCompletions,
		)
	}
	return m
}

// Serve exposes the registry on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
