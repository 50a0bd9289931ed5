package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline outcomes. A nil *Metrics records nothing.
type Metrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	polls    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seft_messages_total",
				Help: "Messages processed, by disposition and reason",
			},
			[]string{"disposition", "reason"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seft_processing_duration_seconds",
				Help:    "Time spent processing one message",
				Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"disposition"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seft_scan_polls_total",
				Help: "Scan service polls, by outcome",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.outcomes, m.duration, m.polls)
	return m
}

func (m *Metrics) observe(o Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	d := o.Disposition.String()
	m.outcomes.WithLabelValues(d, o.Reason).Inc()
	m.duration.WithLabelValues(d).Observe(elapsed.Seconds())
}

// ObservePoll counts one scan poll. It matches the scan poll observer
// signature.
func (m *Metrics) ObservePoll(outcome string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
}
