package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrServiceNameRequired is returned by Setup when telemetry is enabled
// without a service name.
var ErrServiceNameRequired = errors.New("telemetry: service name is required")

// Providers holds the SDK providers built by Setup. A nil field means the
// signal is not exported and the global provider is used.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
	Logger *sdklog.LoggerProvider
}

// Setup builds the providers enabled in cfg, installs them and the
// configured propagators as the OTel globals, and returns them. With
// telemetry disabled it only installs the propagators.
func Setup(ctx context.Context, cfg *Config) (*Providers, error) {
	p := &Providers{}
	otel.SetTextMapPropagator(newPropagator(cfg.propagators()))
	if !cfg.IsEnabled() {
		return p, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.TracesEnabled() {
		exp, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("build trace exporter: %w", err)
		}
		p.Tracer = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(newSampler(cfg.Traces)),
			sdktrace.WithBatcher(exp),
		)
		otel.SetTracerProvider(p.Tracer)
	}

	if cfg.MetricsEnabled() {
		exp, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("build metric exporter: %w", err), p.Shutdown(ctx))
		}
		p.Meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Metrics.Interval))),
		)
		otel.SetMeterProvider(p.Meter)
	}

	if cfg.LogsEnabled() {
		exp, err := newLogExporter(ctx, cfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("build log exporter: %w", err), p.Shutdown(ctx))
		}
		p.Logger = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		)
		global.SetLoggerProvider(p.Logger)
	}

	return p, nil
}

// TracerProvider returns the SDK tracer provider or the global one.
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p != nil && p.Tracer != nil {
		return p.Tracer
	}
	return otel.GetTracerProvider()
}

// MeterProvider returns the SDK meter provider or the global one.
func (p *Providers) MeterProvider() metric.MeterProvider {
	if p != nil && p.Meter != nil {
		return p.Meter
	}
	return otel.GetMeterProvider()
}

// LoggerProvider returns the SDK logger provider, or a no-op provider when
// logs are not exported.
func (p *Providers) LoggerProvider() otellog.LoggerProvider {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return lognoop.NewLoggerProvider()
}

// Shutdown flushes and stops every provider. It is safe to call on the
// result of a disabled Setup.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Tracer != nil {
		errs = append(errs, p.Tracer.Shutdown(ctx))
	}
	if p.Meter != nil {
		errs = append(errs, p.Meter.Shutdown(ctx))
	}
	if p.Logger != nil {
		errs = append(errs, p.Logger.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		return nil, ErrServiceNameRequired
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
		semconv.DeploymentEnvironment(cfg.Environment),
	}
	for k, v := range cfg.ResourceAttributes {
		if k != "" {
			attrs = append(attrs, attribute.String(k, v))
		}
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func newSampler(tc *TracesConfig) sdktrace.Sampler {
	if tc == nil {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	switch tc.Sampler {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(tc.SamplerArg)
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SamplerArg))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// newPropagator builds a composite of the W3C propagators named. Unknown
// names are reported through otel.Handle.
func newPropagator(names []string) propagation.TextMapPropagator {
	var props []propagation.TextMapPropagator
	for _, name := range names {
		switch name {
		case "tracecontext":
			props = append(props, propagation.TraceContext{})
		case "baggage":
			props = append(props, propagation.Baggage{})
		case "none":
		default:
			otel.Handle(fmt.Errorf("telemetry: unsupported propagator %q", name))
		}
	}
	return propagation.NewCompositeTextMapPropagator(props...)
}
