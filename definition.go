package endpoint

import (
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Summary holds the human-facing documentation of an endpoint.
type Summary struct {
	Summary     string
	Description string

	// ExampleRequest is an instance of the request type used to build the
	// request body and parameter examples.
	ExampleRequest any

	// ResponseExamples are keyed by HTTP status code.
	ResponseExamples map[int]any
}

// Authorization is one authorization requirement on an endpoint. Each role
// entry may hold a comma separated list.
type Authorization struct {
	Roles []string
}

// Definition is the static metadata of a registered endpoint. It is built
// once during registration and only read afterwards.
type Definition struct {
	Name    string
	Routes  []string
	Verbs   []string
	Tags    []string
	Version string
	Summary Summary

	// AuthSchemes restricts which security schemes apply. Empty means all.
	AuthSchemes    []string
	Authorizations []Authorization
	AllowAnonymous bool

	Deprecated  bool
	OperationID string
	Status      int
	Errors      []int

	PreProcessors  []any
	PostProcessors []any

	RequestType  reflect.Type
	ResponseType reflect.Type

	impl     any
	execOnce sync.Once
	execute  bool
}

// RouteOption configures a Definition at registration time.
type RouteOption func(*Definition)

// Executes reports whether the endpoint was registered with the execute
// form (Handler) rather than the handle form (HandleFunc). The answer is
// resolved on first use and cached.
func (d *Definition) Executes() bool {
	d.execOnce.Do(func() {
		if e, ok := d.impl.(executor); ok {
			d.execute = e.executes()
		}
	})
	return d.execute
}

// EndpointName is the summary when one is set, otherwise the name.
func (d *Definition) EndpointName() string {
	if d.Summary.Summary != "" {
		return d.Summary.Summary
	}
	return d.Name
}

// SpanName is the name of the span recorded for each invocation.
func (d *Definition) SpanName() string {
	if d.Executes() {
		return d.EndpointName() + ".Execute"
	}
	return d.EndpointName() + ".Handle"
}

// handlerName derives a readable name from the handler function.
func handlerName(fn any, verb, pattern string) string {
	v := reflect.ValueOf(fn)
	if v.Kind() == reflect.Func && !v.IsNil() {
		if f := runtime.FuncForPC(v.Pointer()); f != nil {
			name := f.Name()
			if i := strings.LastIndex(name, "/"); i >= 0 {
				name = name[i+1:]
			}
			if name != "" {
				return name
			}
		}
	}
	return verb + " " + pattern
}

// WithName overrides the endpoint name used for spans.
func WithName(name string) RouteOption {
	return func(d *Definition) {
		d.Name = name
	}
}

// WithStatus sets the default HTTP status code for the response.
func WithStatus(code int) RouteOption {
	return func(d *Definition) {
		d.Status = code
	}
}

// WithSummary sets the OpenAPI summary for the route.
func WithSummary(s string) RouteOption {
	return func(d *Definition) {
		d.Summary.Summary = s
	}
}

// WithDescription sets the OpenAPI description for the route.
func WithDescription(desc string) RouteOption {
	return func(d *Definition) {
		d.Summary.Description = desc
	}
}

// WithRequestExample sets the example request used for documentation.
func WithRequestExample(example any) RouteOption {
	return func(d *Definition) {
		d.Summary.ExampleRequest = example
	}
}

// WithResponseExample sets the documented example for a response status.
func WithResponseExample(status int, example any) RouteOption {
	return func(d *Definition) {
		if d.Summary.ResponseExamples == nil {
			d.Summary.ResponseExamples = make(map[int]any)
		}
		d.Summary.ResponseExamples[status] = example
	}
}

// WithTags adds OpenAPI tags to the route.
func WithTags(tags ...string) RouteOption {
	return func(d *Definition) {
		d.Tags = append(d.Tags, tags...)
	}
}

// WithVersion sets the endpoint version.
func WithVersion(v string) RouteOption {
	return func(d *Definition) {
		d.Version = v
	}
}

// WithRoutes registers the endpoint under additional patterns.
func WithRoutes(patterns ...string) RouteOption {
	return func(d *Definition) {
		d.Routes = append(d.Routes, patterns...)
	}
}

// WithRoles adds an authorization requirement for the given roles.
func WithRoles(roles ...string) RouteOption {
	return func(d *Definition) {
		d.Authorizations = append(d.Authorizations, Authorization{Roles: roles})
	}
}

// WithAuthorization adds an authorization requirement.
func WithAuthorization(a Authorization) RouteOption {
	return func(d *Definition) {
		d.Authorizations = append(d.Authorizations, a)
	}
}

// WithAuthSchemes limits the security schemes the endpoint accepts.
func WithAuthSchemes(schemes ...string) RouteOption {
	return func(d *Definition) {
		d.AuthSchemes = append(d.AuthSchemes, schemes...)
	}
}

// WithAllowAnonymous lets unauthenticated callers reach the endpoint.
func WithAllowAnonymous() RouteOption {
	return func(d *Definition) {
		d.AllowAnonymous = true
	}
}

// WithDeprecated marks the route as deprecated in the OpenAPI spec.
func WithDeprecated() RouteOption {
	return func(d *Definition) {
		d.Deprecated = true
	}
}

// WithErrors declares additional HTTP error status codes for the OpenAPI spec.
func WithErrors(codes ...int) RouteOption {
	return func(d *Definition) {
		d.Errors = append(d.Errors, codes...)
	}
}

// WithOperationID sets a custom OpenAPI operationId.
func WithOperationID(id string) RouteOption {
	return func(d *Definition) {
		d.OperationID = id
	}
}

// defaultStatus picks 204 for Void responses and 200 otherwise.
func (d *Definition) defaultStatus() int {
	if d.Status != 0 {
		return d.Status
	}
	if d.ResponseType == nil || d.ResponseType == reflect.TypeFor[Void]() {
		return http.StatusNoContent
	}
	return http.StatusOK
}
