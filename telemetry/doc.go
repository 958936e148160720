// Package telemetry wires the OpenTelemetry SDK for services built on
// endpoint: it loads a Config, builds tracer, meter and logger providers
// with OTLP or console exporters, and bridges log/slog to OTel logs.
package telemetry
