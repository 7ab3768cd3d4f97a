package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCallback("init-pre", nil)
		m.ObservePhase("start", time.Second, nil)
		m.Constructed("Db")
		m.Transition("running")
		m.Build(nil)
	})
}

func TestMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics("shared", reg)
	second := NewMetrics("shared", reg)

	first.ObserveCallback("stop-pre", errors.New("boom"))
	second.ObserveCallback("stop-pre", errors.New("boom"))
	second.ObserveCallback("stop-pre", nil)

	assert.Same(t, first.callbacks, second.callbacks)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.callbacks.WithLabelValues("stop-pre", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.callbacks.WithLabelValues("stop-pre", "ok")))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics("unit", nil)
	m.Constructed("Db")
	m.Constructed("Db")
	m.Transition("running")
	m.Build(errors.New("cycle"))
	m.ObservePhase("initialize", 20*time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.constructed.WithLabelValues("Db")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.phaseDuration))
}
