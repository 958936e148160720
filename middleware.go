package endpoint

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Middleware is the standard middleware signature compatible with the entire
// Go middleware ecosystem.
type Middleware func(next http.Handler) http.Handler

// RecoveryConfig configures the Recovery middleware.
type RecoveryConfig struct {
	Logger *slog.Logger // default: slog.Default()
}

// Recovery returns middleware that turns a panic into a 500 problem
// response. The panic is logged with its stack and request id, recorded on
// the span in the request context and flagged on the request line written
// by Logger. http.ErrAbortHandler is re-raised for the server to handle.
//
// Installed with Use, it runs outside Diagnostics, so the endpoint span is
// already closed when the panic arrives here.
func Recovery(cfg ...RecoveryConfig) Middleware {
	var c RecoveryConfig
	if len(cfg) > 0 {
		c = cfg[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				ctx := r.Context()
				pe := &PanicError{Value: rec}
				if span := trace.SpanFromContext(ctx); span.IsRecording() {
					span.RecordError(pe, trace.WithStackTrace(true))
					span.SetStatus(codes.Error, pe.Error())
				}
				AddLogAttrs(ctx, slog.Bool("panic", true))

				logger := c.Logger
				if logger == nil {
					logger = slog.Default()
				}
				logger.ErrorContext(ctx, "panic recovered",
					"panic", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", GetRequestID(r),
				)
				writeErrorResponse(w, Error(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
