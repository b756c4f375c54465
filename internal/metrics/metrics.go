package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	GenerationAttempts  *prometheus.CounterVec
	GenerationFallbacks *prometheus.CounterVec
	GenerationSuccess   *prometheus.CounterVec
	GenerationFailures  *prometheus.CounterVec
	GenerationDuration  *prometheus.HistogramVec
	PageMutations       *prometheus.CounterVec
	PreviewSubscribers  prometheus.Gauge
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			GenerationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govgen",
				Name:      "generation_attempts_total",
				Help:      "Chat requests sent to a vendor, one per candidate model tried",
			}, []string{"provider", "model"}),
			GenerationFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govgen",
				Name:      "generation_fallbacks_total",
				Help:      "Candidate models skipped because they were unavailable",
			}, []string{"provider", "model"}),
			GenerationSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govgen",
				Name:      "generation_success_total",
				Help:      "Generations that produced HTML",
			}, []string{"provider", "model"}),
			GenerationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govgen",
				Name:      "generation_failures_total",
				Help:      "Generations that failed, by error kind",
			}, []string{"provider", "kind"}),
			GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "govgen",
				Name:      "generation_duration_seconds",
				Help:      "Wall time of a whole generation including fallbacks",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			}, []string{"provider"}),
			PageMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govgen",
				Name:      "page_mutations_total",
				Help:      "Page store mutations, by operation",
			}, []string{"op"}),
			PreviewSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "govgen",
				Name:      "preview_subscribers",
				Help:      "Open live-preview websocket connections",
			}),
		}
		prometheus.MustRegister(
			global.GenerationAttempts,
			global.GenerationFallbacks,
			global.GenerationSuccess,
			global.GenerationFailures,
			global.GenerationDuration,
			global.PageMutations,
			global.PreviewSubscribers,
		)
	})
	return global
}
