package telemetry_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/endpoint/telemetry"
)

func TestLoad(t *testing.T) {
	content := []byte(`
enabled: true
serviceName: "users-api"
traces:
  exporter: "console"
  sampler: "traceidratio"
  samplerArg: 0.25
`)
	path := filepath.Join(t.TempDir(), "telemetry.yaml")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := telemetry.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "users-api", cfg.ServiceName)
	assert.Equal(t, "console", cfg.Traces.Exporter)
	assert.InDelta(t, 0.25, cfg.Traces.SamplerArg, 0)
	assert.True(t, cfg.TracesEnabled())

	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	cfg, err = telemetry.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ServiceName)
}

func TestParse_defaults(t *testing.T) {
	t.Parallel()

	cfg, err := telemetry.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.False(t, cfg.IsEnabled())
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "tracecontext,baggage", cfg.Propagators)
	assert.False(t, cfg.MetricsEnabled())
	assert.False(t, cfg.LogsEnabled())
}

func TestParse_signals(t *testing.T) {
	t.Parallel()

	cfg, err := telemetry.Parse([]byte(`
enabled: true
serviceName: users-api
otlp:
  protocol: http/protobuf
  endpoint: http://collector:4318
metrics:
  enabled: true
  interval: 5s
logs:
  enabled: true
  exporter: none
`))
	require.NoError(t, err)

	assert.True(t, cfg.MetricsEnabled())
	assert.Equal(t, 5*time.Second, cfg.Metrics.Interval)
	assert.True(t, cfg.LogsEnabled())
	assert.Equal(t, "http/protobuf", cfg.OTLP.Protocol)
	assert.Equal(t, 10*time.Second, cfg.OTLP.Timeout)
}

func TestParse_invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown protocol": "otlp:\n  protocol: carrier-pigeon\n",
		"ratio above one":  "traces:\n  samplerArg: 2\n",
		"unknown exporter": "metrics:\n  exporter: carbon\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := telemetry.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
