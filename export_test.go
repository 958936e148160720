package endpoint

import (
	"net/http"
	"reflect"

	"github.com/getkin/kin-openapi/openapi3"
)

// Test-only exports for internal functions.
var (
	Introspect       = introspect
	ParseRouteParams = parseRouteParams
	RemoveIgnored    = removeIgnored
	DistinctRoles    = distinctRoles
	ToOpenAPIPath    = toOpenAPIPath
	PascalCase       = pascalCase
	HandlerName      = handlerName
	NewEndpointSpan  = newEndpointSpan
)

// SchemaFor builds the schema of t in a fresh registry and returns it with
// the registered components.
func SchemaFor(t reflect.Type) (*openapi3.SchemaRef, openapi3.Schemas) {
	reg := newSchemaRegistry()
	return reg.ref(t), reg.schemas
}

// BodySchemaFor builds the request body schema of shape after
// reclassification on route and verb.
func BodySchemaFor(shape reflect.Type, route, verb string) *openapi3.SchemaRef {
	desc := Reclassify(shape, route, verb)
	body := desc.Body()
	if body == nil {
		return nil
	}
	return newSchemaRegistry().bodySchema(body.Type, body.Body)
}

// Bind binds r to a new Req the way a route registered on route and verb
// would.
func Bind[Req any](r *http.Request, route, verb string) (*Req, []ValidationError) {
	plan := newBindingPlan(reflect.TypeFor[Req](), route, verb, NewParameterCache())
	return bind[Req](r, plan)
}
