package endpoint

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
)

// Registrar is the interface accepted by the registration functions.
// Both *Router and *Group implement it.
type Registrar interface {
	addRoute(rt route)
	prefixRoute(d *Definition)
	getValidator() Validator
	getErrorHandler() ErrorHandler
	getCache() *ParameterCache
	routeMiddleware() []Middleware
}

func (r *Router) prefixRoute(*Definition)       {}
func (r *Router) getValidator() Validator       { return r.validator }
func (r *Router) getErrorHandler() ErrorHandler { return r.errorHandler }
func (r *Router) getCache() *ParameterCache     { return r.cache }
func (r *Router) routeMiddleware() []Middleware { return nil }

type invokeFunc[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)

// register builds the Definition of an endpoint and adds one route per
// verb and pattern.
func register[Req, Resp any](reg Registrar, verbs []string, pattern string, impl any, invoke invokeFunc[Req, Resp], opts ...RouteOption) *Definition {
	def := &Definition{
		Routes:       []string{pattern},
		Verbs:        verbs,
		RequestType:  reflect.TypeFor[Req](),
		ResponseType: reflect.TypeFor[Resp](),
		impl:         impl,
	}
	for _, opt := range opts {
		opt(def)
	}
	if def.Name == "" {
		def.Name = handlerName(impl, verbs[0], pattern)
	}
	reg.prefixRoute(def)
	def.Status = def.defaultStatus()

	pre := preProcessorsFor[Req](def)
	post := postProcessorsFor[Req, Resp](def)
	validator := reg.getValidator()
	errHandler := reg.getErrorHandler()
	routeMW := reg.routeMiddleware()

	for _, verb := range def.Verbs {
		for _, p := range def.Routes {
			plan := newBindingPlan(def.RequestType, p, verb, reg.getCache())
			handler := buildHandler(def, plan, invoke, pre, post, validator, errHandler)

			// Apply route-level middleware (from Group).
			for i := len(routeMW) - 1; i >= 0; i-- {
				handler = routeMW[i](handler)
			}

			reg.addRoute(route{verb: verb, pattern: p, def: def, handler: handler})
		}
	}
	return def
}

// buildHandler wraps a typed invocation into an http.Handler running the
// endpoint pipeline: bind, pre-process, validate, invoke, post-process.
func buildHandler[Req, Resp any](
	def *Definition,
	plan *bindingPlan,
	invoke invokeFunc[Req, Resp],
	pre []PreProcessor[Req],
	post []PostProcessor[Req, Resp],
	validator Validator,
	errHandler ErrorHandler,
) http.Handler {
	writeErr := func(w http.ResponseWriter, r *http.Request, err error) {
		if errHandler != nil {
			errHandler(w, r, err)
			return
		}
		writeErrorResponse(w, err)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		span := EndpointSpanFromContext(ctx)
		AddLogAttrs(ctx, slog.String("endpoint", def.EndpointName()))

		req, failures := bind[Req](r, plan)
		if len(failures) == 0 && len(pre) > 0 {
			pc := &PreContext[Req]{Request: req, HTTP: r}
			for _, p := range pre {
				if err := p.PreProcess(ctx, pc); err != nil {
					span.Fail(err)
					writeErr(w, r, err)
					return
				}
			}
			failures = pc.Failures
		}
		if len(failures) == 0 {
			failures = validateRequest(req, validator)
		}
		if len(failures) > 0 {
			AddLogAttrs(ctx, slog.Int("invalid_fields", len(failures)))
			span.ValidationFailed(failures)
			writeErr(w, r, ValidationProblem(failures))
			return
		}

		span.Executing()
		resp, err := invoke(ctx, req)

		if len(post) > 0 {
			pc := &PostContext[Req, Resp]{Request: req, Response: resp, HTTP: r, Err: err}
			for _, p := range post {
				if perr := p.PostProcess(ctx, pc); perr != nil && err == nil {
					err = perr
				}
			}
			resp = pc.Response
		}

		if err != nil {
			AddLogAttrs(ctx, slog.String("error", err.Error()))
			span.Fail(err)
			writeErr(w, r, err)
			return
		}

		if resp == nil {
			w.WriteHeader(def.Status)
			return
		}
		encodeResponse(w, resp, def.Status)
	})
}

func execute[Req, Resp any](h Handler[Req, Resp]) invokeFunc[Req, Resp] {
	return invokeFunc[Req, Resp](h)
}

func handle[Req any](h HandleFunc[Req]) invokeFunc[Req, Void] {
	return func(ctx context.Context, req *Req) (*Void, error) {
		return nil, h(ctx, req)
	}
}

// Get registers a GET handler.
func Get[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Definition {
	return register(reg, []string{http.MethodGet}, pattern, h, execute(h), opts...)
}

// Post registers a POST handler.
func Post[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Definition {
	return register(reg, []string{http.MethodPost}, pattern, h, execute(h), opts...)
}

// Put registers a PUT handler.
func Put[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Definition {
	return register(reg, []string{http.MethodPut}, pattern, h, execute(h), opts...)
}

// Patch registers a PATCH handler.
func Patch[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Definition {
	return register(reg, []string{http.MethodPatch}, pattern, h, execute(h), opts...)
}

// Delete registers a DELETE handler.
func Delete[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Definition {
	return register(reg, []string{http.MethodDelete}, pattern, h, execute(h), opts...)
}

// Map registers one Handler under several verbs.
func Map[Req, Resp any](reg Registrar, verbs []string, pattern string, h Handler[Req, Resp], opts ...RouteOption) *Definition {
	return register(reg, verbs, pattern, h, execute(h), opts...)
}

// Handle registers a HandleFunc, which writes no response body. The
// response status defaults to 204.
func Handle[Req any](reg Registrar, method, pattern string, h HandleFunc[Req], opts ...RouteOption) *Definition {
	return register(reg, []string{method}, pattern, h, handle(h), opts...)
}

// Raw registers a raw http.Handler with manual OperationInfo for the OpenAPI spec.
// Raw routes are not traced by Diagnostics.
func Raw(reg Registrar, method, pattern string, h RawHandler, info OperationInfo) {
	rt := route{
		verb:    method,
		pattern: pattern,
		info:    &info,
		handler: http.HandlerFunc(h),
	}

	routeMW := reg.routeMiddleware()
	for i := len(routeMW) - 1; i >= 0; i-- {
		rt.handler = routeMW[i](rt.handler)
	}

	reg.addRoute(rt)
}
