// Package metrics exports engine counters and latencies in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devmatch"

// Cache names used as label values
const (
	CacheEmbedding = "embedding"
	CacheMatch     = "match"
)

// Degraded signal names used as label values
const (
	SignalEmbedding = "embedding"
	SignalGraph     = "graph"
	SignalEntity    = "entity"
	SignalHistory   = "collaboration_history"
)

// Recorder collects engine metrics in a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	embeddingCalls  *prometheus.CounterVec
	embeddingTexts  prometheus.Counter
	degraded        *prometheus.CounterVec
	matchRequests   *prometheus.CounterVec
	matchLatency    *prometheus.HistogramVec
	teamSelections  *prometheus.CounterVec
	candidatesFound prometheus.Histogram
}

// Config configures the recorder.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}
}

// New creates a recorder and registers its collectors.
func New(cfg Config) *Recorder {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := &Recorder{registry: registry}

	r.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	r.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	r.embeddingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "model_calls_total",
			Help:      "Calls to the embedding model",
		},
		[]string{"provider", "status"},
	)

	r.embeddingTexts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "texts_embedded_total",
			Help:      "Texts sent to the embedding model",
		},
	)

	r.degraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_signals_total",
			Help:      "Signals absorbed as neutral because a dependency failed",
		},
		[]string{"signal"},
	)

	r.matchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "requests_total",
			Help:      "Match requests by query type and outcome",
		},
		[]string{"query_type", "status"},
	)

	r.matchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "latency_seconds",
			Help:      "Match request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"query_type"},
	)

	r.teamSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "team",
			Name:      "selections_total",
			Help:      "Team selection runs by outcome",
		},
		[]string{"status"},
	)

	r.candidatesFound = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "candidates",
			Help:      "Candidates returned per match request",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	registry.MustRegister(
		r.cacheHits, r.cacheMisses, r.embeddingCalls, r.embeddingTexts, r.degraded,
		r.matchRequests, r.matchLatency, r.teamSelections, r.candidatesFound,
	)

	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns an HTTP handler exposing the registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// CacheHit records a cache hit.
func (r *Recorder) CacheHit(cache string) {
	if r == nil {
		return
	}
	r.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss records a cache miss.
func (r *Recorder) CacheMiss(cache string) {
	if r == nil {
		return
	}
	r.cacheMisses.WithLabelValues(cache).Inc()
}

// EmbeddingCall records one model call carrying n texts.
func (r *Recorder) EmbeddingCall(provider string, n int, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.embeddingCalls.WithLabelValues(provider, status).Inc()
	r.embeddingTexts.Add(float64(n))
}

// Degraded records a signal that fell back to its neutral value.
func (r *Recorder) Degraded(signal string) {
	if r == nil {
		return
	}
	r.degraded.WithLabelValues(signal).Inc()
}

// MatchRequest records a completed match request.
func (r *Recorder) MatchRequest(queryType, status string, candidates int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.matchRequests.WithLabelValues(queryType, status).Inc()
	r.matchLatency.WithLabelValues(queryType).Observe(elapsed.Seconds())
	r.candidatesFound.Observe(float64(candidates))
}

// TeamSelection records a team selection run.
func (r *Recorder) TeamSelection(status string) {
	if r == nil {
		return
	}
	r.teamSelections.WithLabelValues(status).Inc()
}
