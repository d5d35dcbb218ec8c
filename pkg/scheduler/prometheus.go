package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics exports scheduler activity to Prometheus.
type promMetrics struct {
	cyclesTotal        *prometheus.CounterVec
	cycleDuration      *prometheus.HistogramVec
	opportunitiesTotal prometheus.Counter
	engagementsTotal   prometheus.Counter
	runState           prometheus.Gauge
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_scheduler_cycles_total",
			Help: "Total number of scheduler cycles by type and status",
		}, []string{"type", "status"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engagement_scheduler_cycle_duration_seconds",
			Help:    "Cycle duration by type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		opportunitiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagement_scheduler_opportunities_total",
			Help: "Total engagement opportunities detected",
		}),
		engagementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagement_scheduler_engagements_total",
			Help: "Total engagements executed",
		}),
		runState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engagement_scheduler_running",
			Help: "1 when the scheduler is in the RUNNING state",
		}),
	}
}

// Register registers the scheduler collectors on a registry.
func (m *promMetrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.opportunitiesTotal,
		m.engagementsTotal,
		m.runState,
	)
}

func (m *promMetrics) observe(res CycleResult) {
	m.cyclesTotal.WithLabelValues(string(res.Type), res.Status).Inc()
	m.cycleDuration.WithLabelValues(string(res.Type)).Observe(res.Duration.Seconds())
	m.opportunitiesTotal.Add(float64(res.OpportunitiesFound))
	m.engagementsTotal.Add(float64(res.EngagementsExecuted))
}
