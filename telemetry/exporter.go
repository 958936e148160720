package telemetry

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter kinds.
const (
	exporterOTLP    = "otlp"
	exporterConsole = "console"
	exporterNone    = "none"
)

// target is the resolved destination of one signal.
type target struct {
	kind        string
	protocol    string
	endpoint    string
	headers     map[string]string
	timeout     time.Duration
	compression string
	insecure    bool
}

func (c *Config) target(kind, endpoint string) target {
	t := target{
		kind:     normalizeKind(kind),
		protocol: "grpc",
		endpoint: "localhost:4317",
		timeout:  10 * time.Second,
		insecure: true,
	}
	if o := c.OTLP; o != nil {
		if o.Endpoint != "" {
			t.endpoint = o.Endpoint
		}
		if o.Protocol != "" {
			t.protocol = o.Protocol
		}
		if o.Timeout > 0 {
			t.timeout = o.Timeout
		}
		t.headers = o.Headers
		t.compression = o.Compression
		t.insecure = o.Insecure == nil || *o.Insecure
	}
	if endpoint != "" {
		t.endpoint = endpoint
	}
	return t
}

func (t target) http() bool {
	return t.protocol == "http/protobuf" || t.protocol == "http"
}

// endpointURL reports whether the endpoint is a full http(s) URL.
func (t target) endpointURL() bool {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}

func normalizeKind(kind string) string {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "", exporterOTLP:
		return exporterOTLP
	case "stdout", exporterConsole:
		return exporterConsole
	case "nop", "noop", exporterNone:
		return exporterNone
	default:
		return k
	}
}

func newSpanExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	var kind, endpoint string
	if tc := cfg.Traces; tc != nil {
		kind, endpoint = tc.Exporter, tc.Endpoint
	}
	t := cfg.target(kind, endpoint)

	switch t.kind {
	case exporterConsole:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case exporterNone:
		return nopSpanExporter{}, nil
	}

	if t.http() {
		var opts []otlptracehttp.Option
		if t.endpointURL() {
			opts = append(opts, otlptracehttp.WithEndpointURL(t.endpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(t.endpoint))
		}
		if len(t.headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(t.headers))
		}
		opts = append(opts, otlptracehttp.WithTimeout(t.timeout))
		if t.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if t.compression == "gzip" {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(t.endpoint),
		otlptracegrpc.WithTimeout(t.timeout),
	}
	if len(t.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(t.headers))
	}
	if t.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if t.compression == "gzip" {
		opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

func newMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	var kind, endpoint string
	if mc := cfg.Metrics; mc != nil {
		kind, endpoint = mc.Exporter, mc.Endpoint
	}
	t := cfg.target(kind, endpoint)

	switch t.kind {
	case exporterConsole:
		return stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	case exporterNone:
		return nopMetricExporter{}, nil
	}

	if t.http() {
		return otlpmetrichttp.New(ctx, httpOptions(t,
			otlpmetrichttp.WithEndpoint,
			otlpmetrichttp.WithEndpointURL,
			otlpmetrichttp.WithHeaders,
			otlpmetrichttp.WithTimeout,
			otlpmetrichttp.WithInsecure,
			func() otlpmetrichttp.Option { return otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression) },
		)...)
	}
	return otlpmetricgrpc.New(ctx, grpcOptions(t,
		otlpmetricgrpc.WithEndpoint,
		otlpmetricgrpc.WithHeaders,
		otlpmetricgrpc.WithTimeout,
		otlpmetricgrpc.WithInsecure,
		func() otlpmetricgrpc.Option { return otlpmetricgrpc.WithCompressor("gzip") },
	)...)
}

func newLogExporter(ctx context.Context, cfg *Config) (sdklog.Exporter, error) {
	var kind, endpoint string
	if lc := cfg.Logs; lc != nil {
		kind, endpoint = lc.Exporter, lc.Endpoint
	}
	t := cfg.target(kind, endpoint)

	switch t.kind {
	case exporterConsole:
		return stdoutlog.New(stdoutlog.WithPrettyPrint())
	case exporterNone:
		return nopLogExporter{}, nil
	}

	if t.http() {
		return otlploghttp.New(ctx, httpOptions(t,
			otlploghttp.WithEndpoint,
			otlploghttp.WithEndpointURL,
			otlploghttp.WithHeaders,
			otlploghttp.WithTimeout,
			otlploghttp.WithInsecure,
			func() otlploghttp.Option { return otlploghttp.WithCompression(otlploghttp.GzipCompression) },
		)...)
	}
	return otlploggrpc.New(ctx, grpcOptions(t,
		otlploggrpc.WithEndpoint,
		otlploggrpc.WithHeaders,
		otlploggrpc.WithTimeout,
		otlploggrpc.WithInsecure,
		func() otlploggrpc.Option { return otlploggrpc.WithCompressor("gzip") },
	)...)
}

func httpOptions[T any](
	t target,
	withEndpoint func(string) T,
	withEndpointURL func(string) T,
	withHeaders func(map[string]string) T,
	withTimeout func(time.Duration) T,
	withInsecure func() T,
	withGzip func() T,
) []T {
	var opts []T
	if t.endpointURL() {
		opts = append(opts, withEndpointURL(t.endpoint))
	} else {
		opts = append(opts, withEndpoint(t.endpoint))
	}
	if len(t.headers) > 0 {
		opts = append(opts, withHeaders(t.headers))
	}
	opts = append(opts, withTimeout(t.timeout))
	if t.insecure {
		opts = append(opts, withInsecure())
	}
	if t.compression == "gzip" {
		opts = append(opts, withGzip())
	}
	return opts
}

func grpcOptions[T any](
	t target,
	withEndpoint func(string) T,
	withHeaders func(map[string]string) T,
	withTimeout func(time.Duration) T,
	withInsecure func() T,
	withGzip func() T,
) []T {
	opts := []T{withEndpoint(t.endpoint), withTimeout(t.timeout)}
	if len(t.headers) > 0 {
		opts = append(opts, withHeaders(t.headers))
	}
	if t.insecure {
		opts = append(opts, withInsecure())
	}
	if t.compression == "gzip" {
		opts = append(opts, withGzip())
	}
	return opts
}

type nopSpanExporter struct{}

func (nopSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (nopSpanExporter) Shutdown(context.Context) error                             { return nil }

type nopLogExporter struct{}

func (nopLogExporter) Export(context.Context, []sdklog.Record) error { return nil }
func (nopLogExporter) Shutdown(context.Context) error                { return nil }
func (nopLogExporter) ForceFlush(context.Context) error              { return nil }

type nopMetricExporter struct{}

func (nopMetricExporter) Export(context.Context, *metricdata.ResourceMetrics) error { return nil }
func (nopMetricExporter) ForceFlush(context.Context) error                          { return nil }
func (nopMetricExporter) Shutdown(context.Context) error                            { return nil }

func (nopMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (nopMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}
