package endpoint_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bjaus/endpoint"
)

// syncBuffer guards a buffer written by handlers and read by tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b.buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	r := endpoint.New()
	r.Use(endpoint.Recovery())
	endpoint.Get(r, "/boom", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		panic("secret internals")
	})

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.NotContains(t, w.Body.String(), "secret internals")

	var problem endpoint.ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
}

func TestRecovery_logsAndRecords(t *testing.T) {
	t.Parallel()

	var recovered, requests syncBuffer
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := endpoint.New()
	r.Use(
		endpoint.RequestID(endpoint.RequestIDConfig{Generator: func() string { return "req-1" }}),
		endpoint.Logger(slog.New(slog.NewJSONHandler(&requests, nil))),
		endpoint.Recovery(endpoint.RecoveryConfig{Logger: slog.New(slog.NewJSONHandler(&recovered, nil))}),
	)
	endpoint.Get(r, "/boom", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		panic("kaboom")
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), "http.request")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequestWithContext(ctx, http.MethodGet, "/boom", nil))
	span.End()

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	logged := recovered.lines(t)
	require.Len(t, logged, 1)
	assert.Equal(t, "panic recovered", logged[0]["msg"])
	assert.Equal(t, "kaboom", logged[0]["panic"])
	assert.Equal(t, "req-1", logged[0]["request_id"])
	assert.NotEmpty(t, logged[0]["stack"])

	lines := requests.lines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, true, lines[0]["panic"])
	assert.Equal(t, "ERROR", lines[0]["level"])

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.NotEmpty(t, ended[0].Events())
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestRecovery_abortHandler(t *testing.T) {
	t.Parallel()

	r := endpoint.New()
	r.Use(endpoint.Recovery())
	endpoint.Raw(r, http.MethodGet, "/abort", func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}, endpoint.OperationInfo{})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	})
}

func TestRequestIDFromContext(t *testing.T) {
	t.Parallel()

	r := endpoint.New()
	r.Use(endpoint.RequestID())
	endpoint.Get(r, "/id", func(ctx context.Context, _ *endpoint.Void) (*ping, error) {
		return &ping{Version: endpoint.RequestIDFromContext(ctx)}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":"trace-me"}`, w.Body.String())
	assert.Empty(t, endpoint.RequestIDFromContext(context.Background()))
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg      []endpoint.RequestIDConfig
		incoming map[string]string
		header   string
		want     string
	}{
		"generated": {
			header: "X-Request-ID",
		},
		"propagated": {
			incoming: map[string]string{"X-Request-ID": "abc-123"},
			header:   "X-Request-ID",
			want:     "abc-123",
		},
		"oversized incoming id replaced": {
			cfg:      []endpoint.RequestIDConfig{{MaxLength: 8, Generator: func() string { return "fresh" }}},
			incoming: map[string]string{"X-Request-ID": "0123456789"},
			header:   "X-Request-ID",
			want:     "fresh",
		},
		"unprintable incoming id replaced": {
			cfg:      []endpoint.RequestIDConfig{{Generator: func() string { return "fresh" }}},
			incoming: map[string]string{"X-Request-ID": "abc def"},
			header:   "X-Request-ID",
			want:     "fresh",
		},
		"custom header and generator": {
			cfg: []endpoint.RequestIDConfig{{
				Header:    "X-Correlation-ID",
				Generator: func() string { return "fixed" },
			}},
			header: "X-Correlation-ID",
			want:   "fixed",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			seen := make(chan string, 1)
			r := endpoint.New()
			r.Use(endpoint.RequestID(tc.cfg...))
			endpoint.Raw(r, http.MethodGet, "/id", func(w http.ResponseWriter, req *http.Request) {
				seen <- endpoint.GetRequestID(req)
				w.WriteHeader(http.StatusOK)
			}, endpoint.OperationInfo{})

			req := httptest.NewRequest(http.MethodGet, "/id", nil)
			for k, v := range tc.incoming {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			id := <-seen
			assert.NotEmpty(t, id)
			assert.Equal(t, id, w.Header().Get(tc.header))
			if tc.want != "" {
				assert.Equal(t, tc.want, id)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := endpoint.New()
	r.Use(endpoint.RequestID(), endpoint.Logger(logger))
	endpoint.Get(r, "/ok", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		return &ping{Version: "v1"}, nil
	})
	endpoint.Get(r, "/fail", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		return nil, endpoint.Error(http.StatusServiceUnavailable, "down")
	})

	for _, target := range []string{"/ok", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	lines := buf.lines(t)
	require.Len(t, lines, 2)

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "/ok", lines[0]["path"])
	assert.InDelta(t, http.StatusOK, lines[0]["status"], 0)
	assert.NotEmpty(t, lines[0]["request_id"])
	assert.NotContains(t, lines[0], "trace_id")

	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.InDelta(t, http.StatusServiceUnavailable, lines[1]["status"], 0)
	assert.Equal(t, "down", lines[1]["error"])
}

func TestLogger_endpointAttributes(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	r := endpoint.New()
	r.Use(endpoint.Logger(slog.New(slog.NewJSONHandler(&buf, nil)),
		endpoint.WithLogSkip(func(req *http.Request) bool { return req.URL.Path == "/health" }),
	))
	endpoint.Post(r, "/users", func(ctx context.Context, req *profileUpdate) (*userView, error) {
		endpoint.AddLogAttrs(ctx, slog.String("user", req.Name))
		return &userView{Name: req.Name}, nil
	}, endpoint.WithSummary("Create user"))
	endpoint.Get(r, "/health", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		return &ping{}, nil
	})

	send := func(body string) {
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant", "acme")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	send(`{"name":"Ada"}`)
	send(`{}`)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	lines := buf.lines(t)
	require.Len(t, lines, 2, "skipped requests are not logged")

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "Create user", lines[0]["endpoint"])
	assert.Equal(t, "Ada", lines[0]["user"])

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.InDelta(t, http.StatusBadRequest, lines[1]["status"], 0)
	assert.Equal(t, "Create user", lines[1]["endpoint"])
	assert.InDelta(t, 1, lines[1]["invalid_fields"], 0)
}

func TestLogger_streaming(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	r := endpoint.New()
	r.Use(endpoint.Logger(slog.New(slog.NewJSONHandler(&buf, nil))))
	endpoint.Raw(r, http.MethodGet, "/stream", func(w http.ResponseWriter, _ *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		_, _ = w.Write([]byte("data: 1\n\n"))
		flusher.Flush()
	}, endpoint.OperationInfo{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, w.Flushed)

	lines := buf.lines(t)
	require.Len(t, lines, 1)
	assert.InDelta(t, len("data: 1\n\n"), lines[0]["size"], 0)
}

func TestLogger_traceCorrelation(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := endpoint.New()
	r.Use(endpoint.Logger(slog.New(slog.NewJSONHandler(&buf, nil))))
	endpoint.Get(r, "/ok", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		return &ping{}, nil
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequestWithContext(ctx, http.MethodGet, "/ok", nil))
	span.End()

	lines := buf.lines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), lines[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), lines[0]["span_id"])
}
