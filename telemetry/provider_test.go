package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/bjaus/endpoint/telemetry"
)

func boolPtr(v bool) *bool { return &v }

// Setup installs globals, so these tests do not run in parallel.

func TestSetup_disabled(t *testing.T) {
	p, err := telemetry.Setup(context.Background(), &telemetry.Config{})
	require.NoError(t, err)

	assert.Nil(t, p.Tracer)
	assert.Nil(t, p.Meter)
	assert.Nil(t, p.Logger)
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())
	assert.NotNil(t, p.LoggerProvider())
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_allSignals(t *testing.T) {
	cfg := &telemetry.Config{
		Enabled:            boolPtr(true),
		ServiceName:        "users-api",
		Version:            "1.2.3",
		ResourceAttributes: map[string]string{"team": "identity"},
		Traces:             &telemetry.TracesConfig{Exporter: "none", Sampler: "always_on"},
		Metrics:            &telemetry.MetricsConfig{Enabled: boolPtr(true), Exporter: "none"},
		Logs:               &telemetry.LogsConfig{Enabled: boolPtr(true), Exporter: "nop"},
		Propagators:        "tracecontext",
	}

	p, err := telemetry.Setup(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)
	require.NotNil(t, p.Logger)
	assert.Same(t, p.Tracer, p.TracerProvider())
	assert.Equal(t, []string{"traceparent", "tracestate"}, otel.GetTextMapPropagator().Fields())

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()
}

func TestSetup_serviceNameRequired(t *testing.T) {
	_, err := telemetry.Setup(context.Background(), &telemetry.Config{Enabled: boolPtr(true)})
	assert.ErrorIs(t, err, telemetry.ErrServiceNameRequired)
}

func TestSetup_tracesDisabled(t *testing.T) {
	p, err := telemetry.Setup(context.Background(), &telemetry.Config{
		Enabled:     boolPtr(true),
		ServiceName: "users-api",
		Traces:      &telemetry.TracesConfig{Enabled: boolPtr(false)},
	})
	require.NoError(t, err)
	assert.Nil(t, p.Tracer)
	assert.NoError(t, p.Shutdown(context.Background()))
}
