package assembly

import (
	"time"

	"github.com/centraunit/assembly/config"
	"github.com/centraunit/assembly/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Option configures a Builder or a Controller.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	metrics        *telemetry.Metrics
	tracer         trace.Tracer
	parent         *Plan
	parentLifetime *Controller
	values         map[any]any
	startTimeout   time.Duration
	stopTimeout    time.Duration
}

func newOptions(base options, opts []Option) options {
	o := base
	if o.values != nil {
		values := make(map[any]any, len(o.values))
		for k, v := range o.values {
			values[k] = v
		}
		o.values = values
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracer == nil {
		o.tracer = telemetry.Tracer(nil)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records Prometheus metrics under namespace into reg.
func WithMetrics(namespace string, reg prometheus.Registerer) Option {
	return func(o *options) { o.metrics = telemetry.NewMetrics(namespace, reg) }
}

// WithTracerProvider records phase and callback spans with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = telemetry.Tracer(tp) }
}

// WithParent resolves keys the builder does not bind against the registry of
// parent. Lifetimes of the resulting plan need WithParentLifetime.
func WithParent(parent *Plan) Option {
	return func(o *options) { o.parent = parent }
}

// WithParentLifetime attaches the lifetime whose singletons serve keys bound
// in the parent plan.
func WithParentLifetime(parent *Controller) Option {
	return func(o *options) { o.parentLifetime = parent }
}

// WithContextValue stores a value every callback can read from its LifetimeContext.
func WithContextValue(key, val any) Option {
	return func(o *options) {
		if o.values == nil {
			o.values = make(map[any]any)
		}
		o.values[key] = val
	}
}

// WithTimeouts bounds StartWithTimeout and each Stop call. Zero disables a bound.
func WithTimeouts(start, stop time.Duration) Option {
	return func(o *options) {
		o.startTimeout = start
		o.stopTimeout = stop
	}
}

// WithConfig applies a loaded configuration: logger, timeouts and telemetry
// toggles. Metrics go to the default Prometheus registerer.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		if logger, err := cfg.Logger(); err == nil {
			o.logger = logger
		}
		o.startTimeout = cfg.StartTimeout
		o.stopTimeout = cfg.StopTimeout
		if cfg.Metrics {
			o.metrics = telemetry.NewMetrics(cfg.Namespace, prometheus.DefaultRegisterer)
		}
		if cfg.Tracing {
			o.tracer = telemetry.Tracer(nil)
		} else {
			o.tracer = noop.NewTracerProvider().Tracer("")
		}
	}
}
