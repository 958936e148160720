package endpoint

import "net/http"

// RawRequest can be embedded in a request type to get access to
// the underlying *http.Request. It is never bound or documented.
type RawRequest struct {
	Request *http.Request `json:"-"`
}

// OperationInfo provides OpenAPI metadata for raw handlers that the
// framework cannot infer from types.
type OperationInfo struct {
	Summary     string
	Description string
	Tags        []string
	Status      int

	// Authorizations and AllowAnonymous describe the route's access rules
	// to the security filters.
	Authorizations []Authorization
	AllowAnonymous bool

	// Controller marks a conventional handler that is exempt from the
	// endpoint description requirement.
	Controller bool
}
