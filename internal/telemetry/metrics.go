package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	callbacks     *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	constructed   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	builds        *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them with
// reg. Collectors already registered by an earlier call are reused, so several
// lifetimes can share one registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{
		callbacks: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_callbacks_total",
				Help:      "Lifecycle callbacks executed, by list and status",
			},
			[]string{"list", "status"},
		)),
		phaseDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_phase_duration_seconds",
				Help:      "Duration of lifecycle phases in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase", "outcome"},
		)),
		constructed: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "beans_constructed_total",
				Help:      "Bean values constructed, by bean",
			},
			[]string{"bean"},
		)),
		transitions: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifetime_transitions_total",
				Help:      "Lifetime state transitions, by target state",
			},
			[]string{"state"},
		)),
		builds: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Plan builds, by outcome",
			},
			[]string{"outcome"},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// ObserveCallback counts one callback execution.
func (m *Metrics) ObserveCallback(list string, err error) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(list, outcome(err)).Inc()
}

// ObservePhase records how long a phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, outcome(err)).Observe(d.Seconds())
}

// Constructed counts one bean construction.
func (m *Metrics) Constructed(bean string) {
	if m == nil {
		return
	}
	m.constructed.WithLabelValues(bean).Inc()
}

// Transition counts one state transition.
func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

// Build counts one plan build.
func (m *Metrics) Build(err error) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
