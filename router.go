package endpoint

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Router is the central type that holds routes, middleware, and configuration.
// It implements http.Handler.
type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
	routes     []route
	defs       map[string]*Definition

	title       string
	version     string
	description string

	servers         openapi3.Servers
	securitySchemes []namedScheme
	tagDescs        map[string]string
	filters         []OperationFilter

	validator    Validator
	errorHandler ErrorHandler
	logger       *slog.Logger
	cache        *ParameterCache

	diagnostics Middleware
	outer       http.Handler

	// specPath is the first path the JSON document was served at.
	specPath string

	mu sync.RWMutex
}

type namedScheme struct {
	name   string
	scheme *openapi3.SecurityScheme
}

// route is one method and pattern registered with the mux.
type route struct {
	verb    string
	pattern string

	// def is nil for raw routes, which carry info instead.
	def  *Definition
	info *OperationInfo

	handler http.Handler
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTitle sets the API title (used in OpenAPI spec).
func WithTitle(title string) RouterOption {
	return func(r *Router) {
		r.title = title
	}
}

// WithAPIVersion sets the API version (used in OpenAPI spec).
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.version = version
	}
}

// WithAPIDescription sets the API description (used in OpenAPI spec).
func WithAPIDescription(desc string) RouterOption {
	return func(r *Router) {
		r.description = desc
	}
}

// WithValidator replaces the default struct tag validator.
func WithValidator(v Validator) RouterOption {
	return func(r *Router) {
		r.validator = v
	}
}

// WithServers sets the OpenAPI servers array.
func WithServers(servers ...*openapi3.Server) RouterOption {
	return func(r *Router) {
		r.servers = servers
	}
}

// WithSecurityScheme registers a named security scheme and a SecurityFilter
// that applies it to authorized endpoints.
func WithSecurityScheme(name string, scheme *openapi3.SecurityScheme) RouterOption {
	return func(r *Router) {
		r.securitySchemes = append(r.securitySchemes, namedScheme{name: name, scheme: scheme})
		r.filters = append(r.filters, SecurityFilter{Scheme: name})
	}
}

// WithOperationFilter adds a filter run on every documented operation.
func WithOperationFilter(f OperationFilter) RouterOption {
	return func(r *Router) {
		r.filters = append(r.filters, f)
	}
}

// WithTagDescriptions sets tag descriptions for the OpenAPI spec.
func WithTagDescriptions(descs map[string]string) RouterOption {
	return func(r *Router) {
		r.tagDescs = descs
	}
}

// ErrorHandler is a custom error response writer.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WithErrorHandler sets a custom error handler for the router.
func WithErrorHandler(h ErrorHandler) RouterOption {
	return func(r *Router) {
		r.errorHandler = h
	}
}

// WithLogger sets the logger used for framework diagnostics.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithParameterCache replaces the process-wide parameter cache.
func WithParameterCache(c *ParameterCache) RouterOption {
	return func(r *Router) {
		r.cache = c
	}
}

// WithDiagnostics traces every endpoint invocation. The middleware runs
// inside any middleware added with Use.
func WithDiagnostics(opts ...DiagnosticsOption) RouterOption {
	return func(r *Router) {
		r.diagnostics = Diagnostics(r, opts...)
	}
}

// WithHTTPInstrumentation wraps the router in an otelhttp handler that
// extracts the incoming trace context and records a host-level span, the
// parent of endpoint spans.
func WithHTTPInstrumentation(opts ...otelhttp.Option) RouterOption {
	return func(r *Router) {
		r.outer = otelhttp.NewHandler(http.HandlerFunc(r.serve), "http.request", opts...)
	}
}

// New creates a new Router with the given options.
func New(opts ...RouterOption) *Router {
	r := &Router{
		mux:  http.NewServeMux(),
		defs: make(map[string]*Definition),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.validator == nil {
		r.validator = NewStructValidator()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.cache == nil {
		r.cache = defaultCache
	}
	return r
}

// Use adds middleware to the router. Middleware is applied in the order added.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.outer != nil {
		r.outer.ServeHTTP(w, req)
		return
	}
	r.serve(w, req)
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)
	if r.diagnostics != nil {
		handler = r.diagnostics(handler)
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	handler.ServeHTTP(w, req)
}

// Resolve returns the definition of the endpoint req is routed to.
func (r *Router) Resolve(req *http.Request) (*Definition, bool) {
	_, pattern := r.mux.Handler(req)
	if pattern == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[pattern]
	return def, ok
}

// Definitions returns every registered endpoint definition once, in
// registration order.
func (r *Router) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Definition]bool)
	var defs []*Definition
	for _, rt := range r.routes {
		if rt.def != nil && !seen[rt.def] {
			seen[rt.def] = true
			defs = append(defs, rt.def)
		}
	}
	return defs
}

// ListenAndServe starts an HTTP server on the given address.
// It blocks until the context is cancelled, then shuts down gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// addRoute registers a route with the mux and keeps it for document
// generation. Global middleware is applied in ServeHTTP; only group
// middleware is baked into rt.handler.
func (r *Router) addRoute(rt route) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rt.verb + " " + rt.pattern
	r.mux.Handle(key, rt.handler)
	r.routes = append(r.routes, rt)
	if rt.def != nil {
		r.defs[key] = rt.def
	}
}
