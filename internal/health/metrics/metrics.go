package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BatchRuns        prometheus.Counter
	BatchSkipped     prometheus.Counter
	EntitiesComputed prometheus.Counter
	BatchDuration    prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		BatchRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_health_batch_runs_total",
			Help: "Total number of effective health recompute passes",
		}),
		BatchSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_health_batch_skipped_total",
			Help: "Total number of recompute triggers rejected by the time gate",
		}),
		EntitiesComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_health_entities_computed_total",
			Help: "Total number of entity health records recomputed",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_health_batch_duration_seconds",
			Help:    "Wall time of effective health recompute passes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementRuns()    { m.BatchRuns.Inc() }
func (m *Metrics) IncrementSkipped() { m.BatchSkipped.Inc() }

func (m *Metrics) AddEntities(n int) {
	m.EntitiesComputed.Add(float64(n))
}

func (m *Metrics) ObserveDuration(seconds float64) {
	m.BatchDuration.Observe(seconds)
}
