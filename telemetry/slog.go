package telemetry

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
)

// NewLogHandler returns a slog.Handler that emits records through the
// logger named scope on lp. The span in the context passed to the slog
// call is attached to each record.
func NewLogHandler(lp otellog.LoggerProvider, scope string) slog.Handler {
	return otelslog.NewHandler(scope, otelslog.WithLoggerProvider(lp))
}
