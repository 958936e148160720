package endpoint

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of endpoint spans and metrics.
const ScopeName = "github.com/bjaus/endpoint"

// Span attribute keys set on every endpoint span.
const (
	AttrRoutes      = "routes"
	AttrVerbs       = "verbs"
	AttrSummary     = "summary"
	AttrDescription = "description"
	AttrTags        = "tags"
	AttrVersion     = "version"
	AttrRequestID   = "request.id"
)

// Resolver finds the endpoint a request will be dispatched to.
type Resolver interface {
	Resolve(r *http.Request) (*Definition, bool)
}

// EnrichFunc is called with the span and the request when the span
// starts ("start") and again before it is completed ("stop").
type EnrichFunc func(span trace.Span, event string, r *http.Request)

// DiagnosticsOption configures the Diagnostics middleware.
type DiagnosticsOption func(*diagnosticsConfig)

type diagnosticsConfig struct {
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
	filter          func(*http.Request) bool
	enrich          EnrichFunc
	recordException bool
	logger          *slog.Logger
}

// WithTracerProvider sets the tracer provider. The global provider is used
// by default.
func WithTracerProvider(tp trace.TracerProvider) DiagnosticsOption {
	return func(c *diagnosticsConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. The global provider is used
// by default.
func WithMeterProvider(mp metric.MeterProvider) DiagnosticsOption {
	return func(c *diagnosticsConfig) {
		c.meterProvider = mp
	}
}

// WithFilter skips tracing for requests the filter rejects.
func WithFilter(fn func(*http.Request) bool) DiagnosticsOption {
	return func(c *diagnosticsConfig) {
		c.filter = fn
	}
}

// WithEnrich registers a hook that can add attributes to endpoint spans.
func WithEnrich(fn EnrichFunc) DiagnosticsOption {
	return func(c *diagnosticsConfig) {
		c.enrich = fn
	}
}

// WithRecordException records failures as exception events on the span.
func WithRecordException(record bool) DiagnosticsOption {
	return func(c *diagnosticsConfig) {
		c.recordException = record
	}
}

// WithDiagnosticsLogger logs span closures at debug level.
func WithDiagnosticsLogger(l *slog.Logger) DiagnosticsOption {
	return func(c *diagnosticsConfig) {
		c.logger = l
	}
}

// Diagnostics returns middleware that traces every request resolved to an
// endpoint. The span is named after the endpoint and its handler form,
// carried in the request context, and ended exactly once whether the
// request succeeds, fails validation, returns an error, panics or is
// cancelled. Panics are re-raised after the span is closed.
func Diagnostics(res Resolver, opts ...DiagnosticsOption) Middleware {
	cfg := &diagnosticsConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}

	tracer := cfg.tracerProvider.Tracer(ScopeName)
	meter := cfg.meterProvider.Meter(ScopeName)

	requests, err := meter.Int64Counter("endpoint.requests",
		metric.WithDescription("Endpoint invocations by outcome."),
	)
	if err != nil {
		otel.Handle(err)
	}
	duration, err := meter.Float64Histogram("endpoint.duration",
		metric.WithDescription("Endpoint invocation duration."),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			def, ok := res.Resolve(r)
			if !ok || cfg.filter != nil && !cfg.filter(r) {
				next.ServeHTTP(w, r)
				return
			}

			attrs := definitionAttributes(def)
			if id := GetRequestID(r); id != "" {
				attrs = append(attrs, attribute.String(AttrRequestID, id))
			}

			ctx, span := tracer.Start(r.Context(), def.SpanName(),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			start := time.Now()
			name := def.EndpointName()

			es := newEndpointSpan(span, cfg.recordException, func(outcome string) {
				set := metric.WithAttributes(
					attribute.String("endpoint", name),
					attribute.String("outcome", outcome),
				)
				if requests != nil {
					requests.Add(ctx, 1, set)
				}
				if duration != nil {
					duration.Record(ctx, time.Since(start).Seconds(), set)
				}
				if cfg.logger != nil {
					cfg.logger.DebugContext(ctx, "endpoint span closed",
						"endpoint", name,
						"outcome", outcome,
						"duration", time.Since(start),
					)
				}
			})

			if cfg.enrich != nil {
				cfg.enrich(span, "start", r)
			}

			ctx = withEndpointSpan(ctx, es)
			r = r.WithContext(ctx)

			defer func() {
				if rec := recover(); rec != nil {
					es.Fail(&PanicError{Value: rec})
					panic(rec)
				}
			}()

			next.ServeHTTP(w, r)

			if cfg.enrich != nil && es.Phase() != PhaseClosed {
				cfg.enrich(span, "stop", r)
			}
			if err := ctx.Err(); err != nil {
				es.Fail(err)
				return
			}
			es.Complete()
		})
	}
}

func definitionAttributes(d *Definition) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.StringSlice(AttrRoutes, d.Routes),
		attribute.StringSlice(AttrVerbs, d.Verbs),
		attribute.String(AttrSummary, d.Summary.Summary),
		attribute.String(AttrDescription, d.Summary.Description),
		attribute.StringSlice(AttrTags, d.Tags),
	}
	if d.Version != "" {
		attrs = append(attrs, attribute.String(AttrVersion, d.Version))
	}
	return attrs
}
