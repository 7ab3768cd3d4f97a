package assembly

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func matches(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestLifetimeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	failing := stubBean("Failing")
	failing.Callbacks = []Callback{{Phase: PhaseStop, Name: "release", Fn: func(*LifetimeContext, any) error {
		return errors.New("still busy")
	}}}
	failing.Eager = true
	plan, err := NewBuilder(WithMetrics("test", reg)).Declare(stubBean("Db"), failing).Build()
	require.NoError(t, err)

	lifetime, err := plan.NewLifetime()
	require.NoError(t, err)
	require.NoError(t, lifetime.Start(context.Background()))
	_, err = lifetime.Get(NamedKey[string]("Db"))
	require.NoError(t, err)
	require.Error(t, lifetime.Stop(context.Background(), StopOptions{}))

	assert.Equal(t, 1.0, counter(t, reg, "test_builds_total", map[string]string{"outcome": "ok"}))
	assert.Equal(t, 1.0, counter(t, reg, "test_beans_constructed_total", map[string]string{"bean": "Db"}))
	assert.Equal(t, 1.0, counter(t, reg, "test_lifecycle_callbacks_total", map[string]string{"list": "stop-pre", "status": "error"}))
	assert.Equal(t, 1.0, counter(t, reg, "test_lifetime_transitions_total", map[string]string{"state": "running"}))
	assert.Equal(t, 1.0, counter(t, reg, "test_lifetime_transitions_total", map[string]string{"state": "failed"}))

	series, err := testutil.GatherAndCount(reg, "test_lifecycle_phase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, series)

	_, err = NewBuilder(WithMetrics("test", reg)).Declare(stubBean("Orphan", "Missing")).Build()
	require.Error(t, err)
	assert.Equal(t, 1.0, counter(t, reg, "test_builds_total", map[string]string{"outcome": "error"}))
}

func TestLifetimeSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	probe := stubBean("Probe")
	probe.Callbacks = []Callback{
		{Phase: PhaseStart, Name: "open", Fn: func(*LifetimeContext, any) error { return nil }},
		{Phase: PhaseStop, Name: "close", Fn: func(*LifetimeContext, any) error { return errors.New("stuck") }},
	}
	plan, err := NewBuilder(WithTracerProvider(tp)).Declare(probe).Build()
	require.NoError(t, err)
	lifetime, err := plan.NewLifetime()
	require.NoError(t, err)
	require.NoError(t, lifetime.Start(context.Background()))
	require.Error(t, lifetime.Stop(context.Background(), StopOptions{}))

	var names []string
	var failedCallback sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Name() == "assembly.callback" && span.Status().Description != "" {
			failedCallback = span
		}
	}
	assert.Equal(t, []string{
		"assembly.build",
		"assembly.initialize",
		"assembly.callback", "assembly.start",
		"assembly.callback", "assembly.stop",
	}, names)
	require.NotNil(t, failedCallback)
	assert.Contains(t, failedCallback.Status().Description, "stuck")
	assert.Len(t, failedCallback.Events(), 1)
}

func TestLifetimeLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	plan, err := NewBuilder(WithLogger(zap.New(core))).Declare(stubBean("Db")).Build()
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("plan built").Len())

	lifetime, err := plan.NewLifetime()
	require.NoError(t, err)
	require.NoError(t, lifetime.Start(context.Background()))
	require.NoError(t, lifetime.Stop(context.Background(), StopOptions{}))

	transitions := logs.FilterMessage("lifetime state changed").All()
	require.Len(t, transitions, 4)
	assert.Equal(t, lifetime.ID(), transitions[0].ContextMap()["lifetime"])
	assert.Equal(t, "terminated", transitions[3].ContextMap()["to"])
}
