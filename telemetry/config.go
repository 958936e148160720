package telemetry

import (
	"slices"
	"strings"
	"time"

	"github.com/arloliu/fuda"
)

// Config configures the OpenTelemetry providers. Environment variable
// names follow the OTel SDK conventions.
type Config struct {
	// Enabled turns telemetry export on. When off, Setup leaves the global
	// no-op providers in place.
	Enabled *bool `yaml:"enabled" default:"false" env:"ENDPOINT_TELEMETRY_ENABLED"`

	ServiceName string `yaml:"serviceName" env:"OTEL_SERVICE_NAME" validate:"required_if=Enabled true"`
	Version     string `yaml:"version" env:"OTEL_SERVICE_VERSION"`
	Environment string `yaml:"environment" env:"OTEL_DEPLOYMENT_ENVIRONMENT" default:"development"`

	// ResourceAttributes are added to the resource of every signal.
	ResourceAttributes map[string]string `yaml:"resourceAttributes,omitempty" env:"OTEL_RESOURCE_ATTRIBUTES"`

	OTLP    *OTLPConfig    `yaml:"otlp,omitempty"`
	Traces  *TracesConfig  `yaml:"traces,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
	Logs    *LogsConfig    `yaml:"logs,omitempty"`

	// Propagators is a comma separated list of "tracecontext", "baggage"
	// or "none".
	Propagators string `yaml:"propagators" env:"OTEL_PROPAGATORS" default:"tracecontext,baggage"`
}

// OTLPConfig holds exporter settings shared by every signal.
type OTLPConfig struct {
	// Endpoint is "host:port" for gRPC or a full URL for HTTP.
	Endpoint    string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure    *bool             `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	Headers     map[string]string `yaml:"headers,omitempty" env:"OTEL_EXPORTER_OTLP_HEADERS"`
	Protocol    string            `yaml:"protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc" validate:"oneof=grpc http/protobuf http"`
	Timeout     time.Duration     `yaml:"timeout" env:"OTEL_EXPORTER_OTLP_TIMEOUT" default:"10s" validate:"gte=0"`
	Compression string            `yaml:"compression,omitempty" env:"OTEL_EXPORTER_OTLP_COMPRESSION" validate:"omitempty,oneof=gzip none"`
}

// TracesConfig configures span export. Tracing is on unless disabled.
type TracesConfig struct {
	Enabled  *bool  `yaml:"enabled" default:"true"`
	Exporter string `yaml:"exporter" env:"OTEL_TRACES_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`
	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`

	// Sampler is one of the OTEL_TRACES_SAMPLER names.
	Sampler    string  `yaml:"sampler" env:"OTEL_TRACES_SAMPLER" default:"parentbased_always_on" validate:"oneof=always_on always_off traceidratio parentbased_always_on parentbased_always_off parentbased_traceidratio"`
	SamplerArg float64 `yaml:"samplerArg" env:"OTEL_TRACES_SAMPLER_ARG" default:"1.0" validate:"gte=0,lte=1"`
}

// MetricsConfig configures metric export. Metrics are opt-in.
type MetricsConfig struct {
	Enabled  *bool         `yaml:"enabled" default:"false"`
	Exporter string        `yaml:"exporter" env:"OTEL_METRICS_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`
	Endpoint string        `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
	Interval time.Duration `yaml:"interval,omitempty" env:"OTEL_METRIC_EXPORT_INTERVAL" default:"60s" validate:"omitempty,gt=0"`
}

// LogsConfig configures log record export. Logs are opt-in.
type LogsConfig struct {
	Enabled  *bool  `yaml:"enabled" default:"false"`
	Exporter string `yaml:"exporter" env:"OTEL_LOGS_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`
	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
}

// Load reads a YAML or JSON config file. Environment variables override
// file values, then defaults are applied and the result validated.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := fuda.LoadFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse is Load for in-memory YAML or JSON.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := fuda.LoadBytes(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsEnabled reports whether telemetry export is on.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// TracesEnabled reports whether spans are exported.
func (c *Config) TracesEnabled() bool {
	return c.IsEnabled() && (c.Traces == nil || c.Traces.Enabled == nil || *c.Traces.Enabled)
}

// MetricsEnabled reports whether metrics are exported.
func (c *Config) MetricsEnabled() bool {
	return c.IsEnabled() && c.Metrics != nil && c.Metrics.Enabled != nil && *c.Metrics.Enabled
}

// LogsEnabled reports whether log records are exported.
func (c *Config) LogsEnabled() bool {
	return c.IsEnabled() && c.Logs != nil && c.Logs.Enabled != nil && *c.Logs.Enabled
}

func (c *Config) propagators() []string {
	spec := c.Propagators
	if spec == "" {
		spec = "tracecontext,baggage"
	}
	var names []string
	for p := range strings.SplitSeq(spec, ",") {
		if p = strings.TrimSpace(p); p != "" && !slices.Contains(names, p) {
			names = append(names, p)
		}
	}
	return names
}
