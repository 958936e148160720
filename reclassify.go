package endpoint

import (
	"net/http"
	"reflect"
	"strings"
)

// PropertyMetadata is one property of a request body schema.
type PropertyMetadata struct {
	Name     string
	JSONName string

	// Ignored marks a property that binds from somewhere other than the
	// body and must be left out of the body schema.
	Ignored bool
}

// BodyMetadata describes the request body of an operation.
type BodyMetadata struct {
	Type       reflect.Type
	Properties []*PropertyMetadata
}

// IsIgnored reports whether the JSON property name is flagged ignored.
// The comparison is case-insensitive.
func (b *BodyMetadata) IsIgnored(jsonName string) bool {
	if b == nil {
		return false
	}
	for _, p := range b.Properties {
		if p.Ignored && strings.EqualFold(p.JSONName, jsonName) {
			return true
		}
	}
	return false
}

// IgnoredNames returns the JSON names of ignored properties.
func (b *BodyMetadata) IgnoredNames() []string {
	if b == nil {
		return nil
	}
	var names []string
	for _, p := range b.Properties {
		if p.Ignored {
			names = append(names, p.JSONName)
		}
	}
	return names
}

// ParameterDescription describes one documented request parameter.
type ParameterDescription struct {
	Name         string
	Source       BindingSource
	Required     bool
	Type         reflect.Type
	DefaultValue any
	Property     *PropertyInfo

	// Body is set only for the body parameter.
	Body *BodyMetadata
}

// APIDescription is the parameter surface of one operation.
type APIDescription struct {
	Verb       string
	Route      string
	Parameters []ParameterDescription

	// Claims holds custom-bound properties. They are resolved from the
	// caller's identity and are not part of the HTTP parameter surface.
	Claims []ParameterDescription
}

// Body returns the body parameter, if any.
func (d *APIDescription) Body() *ParameterDescription {
	for i := range d.Parameters {
		if d.Parameters[i].Source == SourceBody {
			return &d.Parameters[i]
		}
	}
	return nil
}

// NewAPIDescription describes the whole request shape as a single body
// parameter, before reclassification.
func NewAPIDescription(shape reflect.Type, route, verb string) *APIDescription {
	desc := &APIDescription{Verb: strings.ToUpper(verb), Route: route}
	shape = indirectType(shape)
	if shape == nil || shape == reflect.TypeFor[Void]() {
		return desc
	}

	body := &BodyMetadata{Type: shape}
	if shape.Kind() != reflect.Struct {
		desc.Parameters = append(desc.Parameters, ParameterDescription{
			Name:     "body",
			Source:   SourceBody,
			Required: true,
			Type:     shape,
			Body:     body,
		})
		return desc
	}
	for _, f := range reflect.VisibleFields(shape) {
		if !f.IsExported() || f.Anonymous && indirectType(f.Type).Kind() == reflect.Struct {
			continue
		}
		name := jsonFieldName(f)
		if name == "-" {
			continue
		}
		body.Properties = append(body.Properties, &PropertyMetadata{Name: f.Name, JSONName: name})
	}

	desc.Parameters = append(desc.Parameters, ParameterDescription{
		Name:     "body",
		Source:   SourceBody,
		Required: true,
		Type:     shape,
		Body:     body,
	})
	return desc
}

// Reclassifier rewrites the generic body parameter of an APIDescription
// into per-source parameters.
type Reclassifier struct {
	Cache *ParameterCache
}

// Apply replaces the body parameter of desc with path, header and query
// parameters, followed by the body only when a body-bound property
// remains. Reclassified body properties are flagged ignored.
func (rc *Reclassifier) Apply(desc *APIDescription) {
	idx := -1
	for i, p := range desc.Parameters {
		if p.Source == SourceBody && p.Body != nil {
			idx = i
			break
		}
	}
	// Slices, maps and scalars have no fields to move out of the body.
	if idx < 0 {
		return
	}
	if t := indirectType(desc.Parameters[idx].Type); t == nil || t.Kind() != reflect.Struct {
		return
	}

	cache := rc.Cache
	if cache == nil {
		cache = defaultCache
	}

	body := desc.Parameters[idx]
	rp := cache.Get(body.Type)
	routeParams := parseRouteParams(desc.Route)

	var path, header, query, claims []ParameterDescription
	remaining := false

	for i := range rp.Properties {
		prop := &rp.Properties[i]
		source, name, required := classify(prop, routeParams, desc.Verb)
		if source == SourceBody {
			remaining = true
			continue
		}

		markIgnored(body.Body, prop)

		pd := ParameterDescription{
			Name:         name,
			Source:       source,
			Required:     required,
			Type:         prop.Field.Type,
			DefaultValue: reflect.Zero(prop.Field.Type).Interface(),
			Property:     prop,
		}

		switch source {
		case SourcePath:
			path = append(path, pd)
		case SourceHeader:
			header = append(header, pd)
		case SourceQuery:
			query = append(query, pd)
		case SourceCustom:
			claims = append(claims, pd)
		}
	}

	params := make([]ParameterDescription, 0, len(desc.Parameters)+len(path)+len(header)+len(query))
	params = append(params, desc.Parameters[:idx]...)
	params = append(params, path...)
	params = append(params, header...)
	params = append(params, query...)
	if remaining {
		params = append(params, body)
	}
	params = append(params, desc.Parameters[idx+1:]...)

	desc.Parameters = params
	desc.Claims = claims
}

// Reclassify describes shape on route and verb. The result depends only
// on its inputs.
func Reclassify(shape reflect.Type, route, verb string) *APIDescription {
	desc := NewAPIDescription(shape, route, verb)
	(&Reclassifier{}).Apply(desc)
	return desc
}

// classify resolves the binding source of a property in precedence order:
// header, claim or custom bind, explicit query, route match, implicit
// query for GET and DELETE, and finally the body.
func classify(p *PropertyInfo, routeParams []string, verb string) (BindingSource, string, bool) {
	if a := p.Annotation; a != nil {
		//exhaustive:ignore
		switch a.Kind {
		case AnnotationHeader:
			return SourceHeader, a.Name, a.Required || !p.Nullable
		case AnnotationClaim, AnnotationBind:
			return SourceCustom, a.Name, a.Required || !p.Nullable
		case AnnotationQuery:
			return SourceQuery, a.Name, !p.Nullable
		}
	}

	if name, ok := matchRouteParam(p, routeParams); ok {
		return SourcePath, name, !p.Nullable
	}

	if verb == http.MethodGet || verb == http.MethodDelete {
		return SourceQuery, p.JSONName, !p.Nullable
	}

	return SourceBody, p.JSONName, false
}

func matchRouteParam(p *PropertyInfo, routeParams []string) (string, bool) {
	for _, rp := range routeParams {
		if p.RouteName != "" {
			if strings.EqualFold(rp, p.RouteName) {
				return rp, true
			}
			continue
		}
		if strings.EqualFold(rp, p.Name) || strings.EqualFold(rp, p.JSONName) {
			return rp, true
		}
	}
	return "", false
}

func markIgnored(body *BodyMetadata, p *PropertyInfo) {
	for _, m := range body.Properties {
		if m.Name == p.Name {
			m.Ignored = true
			return
		}
	}
}

// parseRouteParams extracts wildcard names from a ServeMux pattern such as
// "GET /users/{id}/files/{path...}".
func parseRouteParams(pattern string) []string {
	var names []string
	for {
		start := strings.IndexByte(pattern, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(pattern[start:], '}')
		if end < 0 {
			return names
		}
		name := strings.TrimSuffix(pattern[start+1:start+end], "...")
		if name != "" && name != "$" {
			names = append(names, name)
		}
		pattern = pattern[start+end+1:]
	}
}
