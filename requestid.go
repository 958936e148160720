package endpoint

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type requestIDKey struct{}

// RequestIDConfig configures the RequestID middleware.
type RequestIDConfig struct {
	Header    string       // default: "X-Request-ID"
	Generator func() string // default: UUIDv7
	MaxLength int          // default: 128
}

// RequestID returns middleware that assigns an id to each request. An
// incoming id is kept when it is printable ASCII without spaces and no
// longer than MaxLength; otherwise a new one is generated. The id is
// stored in the context, echoed in the response header and set on the
// span in the request context.
func RequestID(cfg ...RequestIDConfig) Middleware {
	c := RequestIDConfig{
		Header:    "X-Request-ID",
		Generator: defaultIDGenerator,
		MaxLength: 128,
	}
	if len(cfg) > 0 {
		if cfg[0].Header != "" {
			c.Header = cfg[0].Header
		}
		if cfg[0].Generator != nil {
			c.Generator = cfg[0].Generator
		}
		if cfg[0].MaxLength > 0 {
			c.MaxLength = cfg[0].MaxLength
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(c.Header)
			if !validRequestID(id, c.MaxLength) {
				id = c.Generator()
			}

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttrRequestID, id))
			w.Header().Set(c.Header, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the request ID from the request context.
func GetRequestID(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}

// RequestIDFromContext returns the request id stored by RequestID. Typed
// handlers only see the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// validRequestID rejects ids that could forge log lines or headers.
func validRequestID(id string, maxLen int) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// defaultIDGenerator returns time ordered ids, falling back to a random
// UUID when the clock sequence cannot be read.
func defaultIDGenerator() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
