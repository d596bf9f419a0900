package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	coalescedWaits   *prometheus.CounterVec
	reconcileSeconds *prometheus.HistogramVec
	streamState      *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predeval_price_cache_hits_total",
				Help: "Total number of price cache hits",
			},
			[]string{"asset"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predeval_price_cache_misses_total",
				Help: "Total number of price cache misses",
			},
			[]string{"asset"},
		),
		providerCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predeval_provider_calls_total",
				Help: "Total number of upstream price provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		coalescedWaits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predeval_coalesced_waits_total",
				Help: "Total number of lookups that waited on another caller's fetch",
			},
			[]string{"asset"},
		),
		reconcileSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "predeval_reconcile_duration_seconds",
				Help:    "Duration of reconciliation passes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"asset"},
		),
		streamState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "predeval_stream_state",
				Help: "Live price stream connection state (1 for the active state)",
			},
			[]string{"state"},
		),
	}
}

// RecordCacheHit records a price cache hit.
func (r *Recorder) RecordCacheHit(asset string) {
	r.cacheHits.WithLabelValues(asset).Inc()
}

// RecordCacheMiss records a price cache miss.
func (r *Recorder) RecordCacheMiss(asset string) {
	r.cacheMisses.WithLabelValues(asset).Inc()
}

// RecordProviderCall records an upstream provider call outcome.
func (r *Recorder) RecordProviderCall(provider, outcome string) {
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordCoalescedWait records a lookup that piggybacked on an in-flight fetch.
func (r *Recorder) RecordCoalescedWait(asset string) {
	r.coalescedWaits.WithLabelValues(asset).Inc()
}

// RecordReconcileDuration records how long a reconciliation pass took.
func (r *Recorder) RecordReconcileDuration(asset string, seconds float64) {
	r.reconcileSeconds.WithLabelValues(asset).Observe(seconds)
}

// RecordStreamState marks the current stream connection state.
func (r *Recorder) RecordStreamState(state string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "backoff"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.streamState.WithLabelValues(s).Set(v)
	}
}
