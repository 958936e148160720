// Package endpoint layers typed endpoints on net/http. Request and response
// shapes are Go types: the framework binds requests to them, runs pre and
// post processors around the handler, documents them as OpenAPI 3 and
// traces every invocation with OpenTelemetry.
//
// Endpoints come in two forms. The execute form returns a response:
//
//	type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)
//
// The handle form returns none and answers 204:
//
//	type HandleFunc[Req any] func(ctx context.Context, req *Req) error
//
// Routes are registered with package-level generic functions:
//
//	r := endpoint.New(endpoint.WithTitle("Users"), endpoint.WithDiagnostics())
//	endpoint.Get(r, "/users/{id}", getUser, endpoint.WithSummary("Get user"))
//	endpoint.Put(r, "/users/{id}", updateUser, endpoint.WithRoles("admin"))
//
// Each field of a request struct binds from exactly one place. Annotated
// fields win (`header`, then `claim`, then `bind`, then `query`); an
// unannotated field whose name matches a route wildcard binds from the
// path; GET and DELETE bind the rest from the query; everything else comes
// from the JSON body:
//
//	type UpdateUser struct {
//	    ID       string `json:"id"`
//	    TenantID string `json:"tenantId" header:"X-Tenant-ID"`
//	    Name     string `json:"name" validate:"required"`
//	}
//
// The same classification drives the OpenAPI document, so header, path and
// query fields are described as parameters and left out of the body
// schema:
//
//	r.ServeSpec("/openapi.json")
package endpoint
