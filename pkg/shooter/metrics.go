package shooter

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts shooter activity. A nil *Metrics records nothing.
type Metrics struct {
	dropTotal     *prometheus.CounterVec
	moveTotal     *prometheus.CounterVec
	moveDuration  prometheus.Histogram
	sessionTotal  *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
}

// NewMetrics creates the shooter metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dropTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparky",
				Subsystem: "shooter",
				Name:      "requests_dropped_total",
				Help:      "Requests dropped because a domain was busy or an interlock was not met.",
			},
			[]string{"request"},
		),
		moveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparky",
				Subsystem: "arm",
				Name:      "moves_total",
				Help:      "Arm position moves by outcome.",
			},
			[]string{"outcome"},
		),
		moveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sparky",
				Subsystem: "arm",
				Name:      "move_duration_seconds",
				Help:      "Arm position move duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		sessionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sparky",
				Subsystem: "release",
				Name:      "sessions_total",
				Help:      "Release sessions by outcome.",
			},
			[]string{"outcome"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sparky",
				Subsystem: "release",
				Name:      "phase_duration_seconds",
				Help:      "Release phase duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.dropTotal, m.moveTotal, m.moveDuration, m.sessionTotal, m.phaseDuration)
	}
	return m
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDisabled):
		return "disabled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "error"
	}
}

func (m *Metrics) dropped(request string) {
	if m == nil {
		return
	}
	m.dropTotal.WithLabelValues(request).Inc()
}

func (m *Metrics) move(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.moveTotal.WithLabelValues(outcome(err)).Inc()
	m.moveDuration.Observe(d.Seconds())
}

func (m *Metrics) session(err error) {
	if m == nil {
		return
	}
	m.sessionTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) phase(p Phase, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(p.String()).Observe(d.Seconds())
}
