package endpoint

import (
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

const (
	mimeJSON    = "application/json"
	mimeProblem = "application/problem+json"
)

// Document generates the OpenAPI 3 document of every registered route.
// Operation filters run in order on each operation; the first filter
// error aborts generation.
func (r *Router) Document() (*openapi3.T, error) {
	r.mu.RLock()
	routes := append([]route(nil), r.routes...)
	r.mu.RUnlock()

	reg := newSchemaRegistry()
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       r.title,
			Version:     r.version,
			Description: r.description,
		},
		Servers:    r.servers,
		Paths:      openapi3.Paths{},
		Components: &openapi3.Components{Schemas: reg.schemas},
	}
	if len(r.securitySchemes) > 0 {
		doc.Components.SecuritySchemes = make(openapi3.SecuritySchemes, len(r.securitySchemes))
		for _, s := range r.securitySchemes {
			doc.Components.SecuritySchemes[s.name] = &openapi3.SecuritySchemeRef{Value: s.scheme}
		}
	}

	synth := &ExampleSynthesizer{Schemas: reg.schemas}
	filters := append([]OperationFilter{DescriptionFilter{}}, r.filters...)
	rc := &Reclassifier{Cache: r.cache}
	ids := make(map[string]bool)
	tags := make(map[string]bool)

	for _, rt := range routes {
		path := toOpenAPIPath(rt.pattern)
		oc := &OperationContext{
			Method:      rt.verb,
			Path:        path,
			Definition:  rt.def,
			Document:    doc,
			Synthesizer: synth,
		}

		var op *openapi3.Operation
		if d := rt.def; d != nil {
			desc := NewAPIDescription(d.RequestType, rt.pattern, rt.verb)
			rc.Apply(desc)
			oc.Description = desc
			oc.Metadata = RouteMetadata{
				Tags:           d.Tags,
				Authorizations: d.Authorizations,
				AllowAnonymous: d.AllowAnonymous,
			}
			op = endpointOperation(reg, synth, d, desc)
			op.OperationID = operationID(ids, d.OperationID, rt.verb, path)
		} else {
			info := rt.info
			if info == nil {
				info = &OperationInfo{}
			}
			oc.Description = &APIDescription{Verb: rt.verb, Route: rt.pattern}
			oc.Metadata = RouteMetadata{
				Tags:           info.Tags,
				Authorizations: info.Authorizations,
				AllowAnonymous: info.AllowAnonymous,
				Controller:     info.Controller,
			}
			op = rawOperation(info)
			op.OperationID = operationID(ids, "", rt.verb, path)
		}

		for _, f := range filters {
			if err := f.Apply(op, oc); err != nil {
				return nil, err
			}
		}

		for _, t := range op.Tags {
			tags[t] = true
		}

		item := doc.Paths[path]
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths[path] = item
		}
		item.SetOperation(rt.verb, op)
	}

	doc.Tags = documentTags(tags, r.tagDescs)
	return doc, nil
}

func endpointOperation(reg *schemaRegistry, synth *ExampleSynthesizer, d *Definition, desc *APIDescription) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.Tags = d.Tags
	op.Deprecated = d.Deprecated
	op.Responses = make(openapi3.Responses)

	var example reflect.Value
	if d.Summary.ExampleRequest != nil {
		if v, ok := deref(reflect.ValueOf(d.Summary.ExampleRequest)); ok && v.Kind() == reflect.Struct {
			example = v
		}
	}

	for _, p := range desc.Parameters {
		if p.Source == SourceBody {
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().
					WithRequired(true).
					WithJSONSchemaRef(reg.bodySchema(p.Type, p.Body)),
			}
			continue
		}

		param := &openapi3.Parameter{
			Name:     p.Name,
			In:       p.Source.String(),
			Required: p.Required || p.Source == SourcePath,
			Schema:   reg.ref(p.Type),
		}
		if p.Property != nil {
			param.Description = p.Property.Field.Tag.Get("doc")
			if example.IsValid() {
				if fv, ok := fieldValue(example, p.Property.Field); ok && fv.CanInterface() {
					param.Example = synth.FromExample(param.Schema, fv.Interface())
				}
			}
		}
		op.AddParameter(param)
	}

	status := d.Status
	if d.ResponseType == nil || indirectType(d.ResponseType) == reflect.TypeFor[Void]() {
		op.Responses[strconv.Itoa(status)] = &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription(statusDescription(status)),
		}
	} else {
		op.Responses[strconv.Itoa(status)] = &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(statusDescription(status)).
				WithJSONSchemaRef(reg.ref(d.ResponseType)),
		}
	}

	errs := append([]int(nil), d.Errors...)
	if t := indirectType(d.RequestType); t != nil && t != reflect.TypeFor[Void]() {
		errs = append([]int{http.StatusBadRequest}, errs...)
	}
	if len(errs) > 0 {
		problem := reg.ref(reflect.TypeFor[ProblemDetail]())
		for _, code := range errs {
			key := strconv.Itoa(code)
			if _, ok := op.Responses[key]; ok {
				continue
			}
			op.Responses[key] = &openapi3.ResponseRef{
				Value: openapi3.NewResponse().
					WithDescription(statusDescription(code)).
					WithContent(openapi3.Content{mimeProblem: openapi3.NewMediaType().WithSchemaRef(problem)}),
			}
		}
	}
	return op
}

func rawOperation(info *OperationInfo) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.Summary = info.Summary
	op.Description = info.Description
	op.Tags = info.Tags

	status := info.Status
	if status == 0 {
		status = http.StatusOK
	}
	op.Responses = openapi3.Responses{
		strconv.Itoa(status): &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription(statusDescription(status)),
		},
	}
	return op
}

// operationID returns the configured id when it is still unused, and a
// verb and path derived id otherwise.
func operationID(used map[string]bool, configured, verb, path string) string {
	if configured != "" && !used[configured] {
		used[configured] = true
		return configured
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(verb))
	for _, seg := range strings.Split(path, "/") {
		seg = strings.Trim(seg, "{}")
		if seg == "" {
			continue
		}
		b.WriteByte('_')
		b.WriteString(sanitizeName(seg))
	}
	id := b.String()
	for i := 2; used[id]; i++ {
		id = b.String() + "_" + strconv.Itoa(i)
	}
	used[id] = true
	return id
}

func documentTags(seen map[string]bool, descs map[string]string) openapi3.Tags {
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	var tags openapi3.Tags
	for _, name := range names {
		tags = append(tags, &openapi3.Tag{Name: name, Description: descs[name]})
	}
	return tags
}

func statusDescription(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Response"
}

// toOpenAPIPath converts a ServeMux pattern like "/files/{path...}" to an
// OpenAPI path, dropping wildcard suffixes and the end anchor.
func toOpenAPIPath(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	pattern = strings.ReplaceAll(pattern, "{$}", "")
	return strings.ReplaceAll(pattern, "...", "")
}
