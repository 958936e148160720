package endpoint

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// RouteMetadata is what the router knows about a route independently of
// its endpoint Definition. Raw routes only have this.
type RouteMetadata struct {
	Tags           []string
	Authorizations []Authorization
	AllowAnonymous bool
	Controller     bool
}

// OperationContext is handed to operation filters while the document is
// built.
type OperationContext struct {
	Method string
	Path   string

	// Definition is nil for raw routes.
	Definition  *Definition
	Metadata    RouteMetadata
	Description *APIDescription

	Document    *openapi3.T
	Synthesizer *ExampleSynthesizer
}

// OperationFilter post-processes a generated operation.
type OperationFilter interface {
	Apply(op *openapi3.Operation, oc *OperationContext) error
}

// OperationFilterFunc adapts a function to OperationFilter.
type OperationFilterFunc func(op *openapi3.Operation, oc *OperationContext) error

// Apply calls f.
func (f OperationFilterFunc) Apply(op *openapi3.Operation, oc *OperationContext) error {
	return f(op, oc)
}

// DescriptionFilter copies the endpoint summary onto the operation and
// attaches request and response examples.
type DescriptionFilter struct{}

// Apply implements OperationFilter.
func (DescriptionFilter) Apply(op *openapi3.Operation, oc *OperationContext) error {
	d := oc.Definition
	if d == nil {
		return nil
	}
	if d.Summary.Summary != "" {
		op.Summary = d.Summary.Summary
	}
	if d.Summary.Description != "" {
		op.Description = d.Summary.Description
	}

	if d.Summary.ExampleRequest != nil && op.RequestBody != nil && op.RequestBody.Value != nil {
		if mt := op.RequestBody.Value.Content.Get(mimeJSON); mt != nil {
			var ignored []string
			if body := oc.Description.Body(); body != nil {
				ignored = body.Body.IgnoredNames()
			}
			if ex := oc.Synthesizer.FromExample(mt.Schema, d.Summary.ExampleRequest); ex != nil {
				mt.Example = removeIgnored(ex, ignored)
			}
		}
	}

	for status, example := range d.Summary.ResponseExamples {
		resp := op.Responses.Get(status)
		if resp == nil || resp.Value == nil || example == nil {
			continue
		}
		mt := resp.Value.Content.Get(mimeJSON)
		if mt == nil {
			mt = resp.Value.Content.Get(mimeProblem)
		}
		if mt == nil {
			continue
		}
		if ex := oc.Synthesizer.FromExample(mt.Schema, example); ex != nil {
			mt.Example = ex
		}
	}
	return nil
}

// SecurityFilter adds a security requirement for Scheme to every operation
// that carries authorization annotations.
type SecurityFilter struct {
	Scheme string
}

// Apply implements OperationFilter.
func (f SecurityFilter) Apply(op *openapi3.Operation, oc *OperationContext) error {
	meta := oc.Metadata
	if meta.AllowAnonymous || len(meta.Authorizations) == 0 {
		return nil
	}

	d := oc.Definition
	if d == nil {
		if meta.Controller {
			return nil
		}
		return fmt.Errorf("%w: %s %s (group %s)", ErrMissingEndpointDescription,
			oc.Method, oc.Path, strings.Join(meta.Tags, ","))
	}

	if len(d.AuthSchemes) > 0 && !containsString(d.AuthSchemes, f.Scheme) {
		return nil
	}

	if op.Security == nil {
		op.Security = openapi3.NewSecurityRequirements()
	}
	op.Security.With(openapi3.SecurityRequirement{f.Scheme: distinctRoles(meta.Authorizations)})
	return nil
}

// distinctRoles splits comma separated role entries and keeps each role
// once, in order of first appearance.
func distinctRoles(auths []Authorization) []string {
	roles := []string{}
	seen := make(map[string]bool)
	for _, a := range auths {
		for _, entry := range a.Roles {
			for _, role := range strings.Split(entry, ",") {
				role = strings.TrimSpace(role)
				if role == "" || seen[role] {
					continue
				}
				seen[role] = true
				roles = append(roles, role)
			}
		}
	}
	return roles
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
