package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the service collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	stageSeconds   *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec
	results        *prometheus.CounterVec
	dedupDecisions *prometheus.CounterVec
	dedupLeaked    *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "askdocs",
			Name:      "pipeline_stage_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdocs",
			Name:      "pipeline_fallback_total",
			Help:      "Fallback answers synthesized, by reason.",
		}, []string{"reason"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdocs",
			Name:      "orchestrator_results_total",
			Help:      "Orchestrator results by outcome.",
		}, []string{"outcome"}),
		dedupDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdocs",
			Name:      "dedup_decisions_total",
			Help:      "Deduplication guard decisions.",
		}, []string{"platform", "decision"}),
		dedupLeaked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdocs",
			Name:      "dedup_leaked_total",
			Help:      "Processing entries force-removed after the processing timeout.",
		}, []string{"platform"}),
	}
	r.registry.MustRegister(r.stageSeconds, r.fallbacks, r.results, r.dedupDecisions, r.dedupLeaked)
	return r
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) Fallback(reason string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(reason).Inc()
}

func (r *Recorder) Result(outcome string) {
	if r == nil {
		return
	}
	r.results.WithLabelValues(outcome).Inc()
}

func (r *Recorder) DedupDecision(platform, decision string) {
	if r == nil {
		return
	}
	r.dedupDecisions.WithLabelValues(platform, decision).Inc()
}

func (r *Recorder) DedupLeaked(platform string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.dedupLeaked.WithLabelValues(platform).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
