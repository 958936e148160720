package endpoint

import (
	"reflect"
	"strings"
)

// BindingSource is the part of an HTTP request a field is read from.
type BindingSource int

// Binding sources.
const (
	SourceBody BindingSource = iota
	SourcePath
	SourceQuery
	SourceHeader
	SourceCustom
)

// String returns the OpenAPI "in" value of the source.
func (s BindingSource) String() string {
	switch s {
	case SourcePath:
		return "path"
	case SourceQuery:
		return "query"
	case SourceHeader:
		return "header"
	case SourceCustom:
		return "custom"
	default:
		return "body"
	}
}

// AnnotationKind identifies the binding tag a field carries.
type AnnotationKind int

// Annotation kinds, in precedence order.
const (
	AnnotationHeader AnnotationKind = iota + 1
	AnnotationClaim
	AnnotationBind
	AnnotationQuery
)

// Annotation is the single binding tag that won for a field.
type Annotation struct {
	Kind     AnnotationKind
	Name     string
	Required bool
}

// annotationTags lists the binding tags in precedence order.
var annotationTags = []struct {
	tag  string
	kind AnnotationKind
}{
	{"header", AnnotationHeader},
	{"claim", AnnotationClaim},
	{"bind", AnnotationBind},
	{"query", AnnotationQuery},
}

// PropertyInfo describes one bindable field of a request shape.
type PropertyInfo struct {
	Field    reflect.StructField
	Name     string
	JSONName string

	// RouteName is the name from a path tag, matched against route
	// parameters before the Go and JSON names.
	RouteName string

	Annotation *Annotation
	Nullable   bool
}

// RequestParameter is the introspected form of a request shape.
type RequestParameter struct {
	Shape      reflect.Type
	Properties []PropertyInfo
}

// introspect enumerates the exported fields of t, flattening embedded
// structs, and resolves each field's binding annotation.
func introspect(t reflect.Type) *RequestParameter {
	t = indirectType(t)
	rp := &RequestParameter{Shape: t}
	if t == nil || t.Kind() != reflect.Struct {
		return rp
	}

	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous && indirectType(f.Type).Kind() == reflect.Struct {
			continue
		}
		name := jsonFieldName(f)
		if name == "-" && !hasBindingTag(f) {
			continue
		}
		if name == "-" {
			name = f.Name
		}

		p := PropertyInfo{
			Field:      f,
			Name:       f.Name,
			JSONName:   name,
			Annotation: annotationOf(f, name),
			Nullable:   isNullable(f.Type),
		}
		if tag := f.Tag.Get("path"); tag != "" {
			p.RouteName, _ = tagOptions(tag)
		}
		rp.Properties = append(rp.Properties, p)
	}
	return rp
}

// annotationOf returns the highest precedence binding tag on f.
func annotationOf(f reflect.StructField, jsonName string) *Annotation {
	for _, at := range annotationTags {
		tag, ok := f.Tag.Lookup(at.tag)
		if !ok {
			continue
		}
		name, opts := tagOptions(tag)
		if name == "" {
			if at.kind == AnnotationQuery {
				name = jsonName
			} else {
				name = f.Name
			}
		}
		a := &Annotation{Kind: at.kind, Name: name}
		// Query annotations never carry their own required flag.
		if at.kind != AnnotationQuery {
			a.Required = tagContains(opts, "required")
		}
		return a
	}
	return nil
}

func hasBindingTag(f reflect.StructField) bool {
	for _, at := range annotationTags {
		if _, ok := f.Tag.Lookup(at.tag); ok {
			return true
		}
	}
	_, ok := f.Tag.Lookup("path")
	return ok
}

// isNullable reports whether a field of type t can hold "no value".
func isNullable(t reflect.Type) bool {
	//exhaustive:ignore
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// tagOptions splits a struct tag value on comma and returns
// the name and remaining options.
func tagOptions(tag string) (string, string) {
	name, opts, _ := strings.Cut(tag, ",")
	return name, opts
}

// tagContains reports whether a comma-separated list of options
// contains a particular option.
func tagContains(opts string, name string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == name {
			return true
		}
	}
	return false
}
