package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the lifecycle collectors. A nil *Metrics records nothing.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	pollAttempts  *prometheus.CounterVec
	apiCallsTotal *prometheus.CounterVec
}

// NewMetrics creates the lifecycle collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provprobe",
				Subsystem: "lifecycle",
				Name:      "runs_total",
				Help:      "Total number of lifecycle runs by kind and result",
			},
			[]string{"kind", "result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "provprobe",
				Subsystem: "lifecycle",
				Name:      "duration_seconds",
				Help:      "Duration of a full create-poll-delete lifecycle in seconds",
				Buckets:   prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~85min
			},
			[]string{"kind"},
		),
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provprobe",
				Subsystem: "poll",
				Name:      "attempts_total",
				Help:      "Total number of successful status checks",
			},
			[]string{"kind"},
		),
		apiCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provprobe",
				Subsystem: "controlplane",
				Name:      "api_calls_total",
				Help:      "Total number of control plane calls by kind, operation and result",
			},
			[]string{"kind", "operation", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.runsTotal, m.runDuration, m.pollAttempts, m.apiCallsTotal)
	}
	return m
}

func (m *Metrics) observeRun(kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(kind, result).Inc()
	m.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) observeAttempt(kind string) {
	if m == nil {
		return
	}
	m.pollAttempts.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeCall(kind, operation string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.apiCallsTotal.WithLabelValues(kind, operation, result).Inc()
}
