package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

// NewNop returns telemetry that logs nothing, exports no spans and keeps
// no metrics. Events are delivered synchronously.
func NewNop() *Telemetry {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	tel, _ := newTelemetry(cfg, NopLogger())
	return tel
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown drains events, writes the metrics textfile and flushes spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Metrics.WriteTextfile(),
		t.Tracer.Shutdown(ctx),
	)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := FromContext(ctx).WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		End(ic.Span, err)
	}
}

// Run tracks one nk command from start to finish.
type Run struct {
	ID      string
	Command string

	tel    *Telemetry
	logger *Logger
	span   trace.Span
	timer  *Timer
}

// StartRun opens the run span, tags the logger with the run ID and
// publishes run.started. The returned context carries all three.
func (t *Telemetry) StartRun(ctx context.Context, runID, command string) (context.Context, *Run) {
	ctx = t.WithContext(ctx)
	ctx, span := t.Tracer.StartRunSpan(ctx, runID, command)
	logger := t.Logger.WithRunID(runID)
	ctx = logger.WithContext(ctx)

	logPublishError(logger, t.Events.PublishRunStarted(runID, command))

	return ctx, &Run{
		ID:      runID,
		Command: command,
		tel:     t,
		logger:  logger,
		span:    span,
		timer:   NewTimer(),
	}
}

// LogPublishError logs, at debug level, an event that could not be
// published. A nil error is ignored.
func (t *Telemetry) LogPublishError(ctx context.Context, err error) {
	logPublishError(FromContext(ctx), err)
}

func logPublishError(l *Logger, err error) {
	if err != nil {
		l.zlog.Debug().Err(err).Msg("Failed to publish event")
	}
}

// Duration returns the time since the run started.
func (r *Run) Duration() time.Duration {
	return r.timer.Duration()
}

// End records the run's metrics, ends its span and publishes run.completed
// or run.failed.
func (r *Run) End(status string, err error, data map[string]interface{}) {
	duration := r.timer.Duration()

	r.span.SetAttributes(AttrRunStatus.String(status))
	End(r.span, err)

	r.tel.Metrics.RecordRun(status, duration)

	if err != nil {
		logPublishError(r.logger, r.tel.Events.PublishRunFailed(r.ID, duration, err.Error(), data))
		return
	}
	logPublishError(r.logger, r.tel.Events.PublishRunCompleted(r.ID, duration, data))
}

// WithPluginContext returns a context whose logger carries the plugin's
// name and version.
func WithPluginContext(ctx context.Context, name, version string) context.Context {
	return FromContext(ctx).WithPlugin(name, version).WithContext(ctx)
}
