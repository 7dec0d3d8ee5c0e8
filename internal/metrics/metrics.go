// Package metrics exposes Prometheus counters for the content pipeline.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and one-shot CLI commands.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline counters.
type Metrics struct {
	Generations       *prometheus.CounterVec // kind, outcome
	RateLimited       prometheus.Counter
	CacheLookups      *prometheus.CounterVec // tier, result
	EnrichmentFetch   *prometheus.CounterVec // category, outcome
	TopicsCreated     prometheus.Counter
	GenerationLatency prometheus.Histogram
}

// New registers the pipeline metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "knowra_generation_requests_total",
			Help: "Generation calls by kind and outcome",
		}, []string{"kind", "outcome"}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "knowra_rate_limited_total",
			Help: "Generation calls rejected by the rate limiter",
		}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "knowra_cache_lookups_total",
			Help: "Detail cache lookups by tier and result",
		}, []string{"tier", "result"}), // tier: "memory" or "redis"

		EnrichmentFetch: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "knowra_enrichment_fetches_total",
			Help: "External search fetches by category and outcome",
		}, []string{"category", "outcome"}),

		TopicsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "knowra_topics_created_total",
			Help: "Topics generated and persisted",
		}),

		GenerationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "knowra_generation_duration_seconds",
			Help:    "Generation call latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
}

// RecordGeneration records the outcome of one generation call.
func (m *Metrics) RecordGeneration(kind, outcome string) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(kind, outcome).Inc()
}

// ObserveGenerationLatency records how long the service took to answer.
func (m *Metrics) ObserveGenerationLatency(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GenerationLatency.Observe(elapsed.Seconds())
}

// RecordRateLimited records a rejected admission.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// RecordCacheLookup records a hit or miss on a cache tier.
func (m *Metrics) RecordCacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordEnrichment records one external search fetch.
func (m *Metrics) RecordEnrichment(category, outcome string) {
	if m == nil {
		return
	}
	m.EnrichmentFetch.WithLabelValues(category, outcome).Inc()
}

// RecordTopicCreated records a newly persisted topic.
func (m *Metrics) RecordTopicCreated() {
	if m == nil {
		return
	}
	m.TopicsCreated.Inc()
}

// Serve exposes gatherer on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
