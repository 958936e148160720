package endpoint

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
)

const componentPrefix = "#/components/schemas/"

// schemaRegistry converts Go types to OpenAPI schemas. Named struct types
// are registered once as components and referenced by $ref.
type schemaRegistry struct {
	schemas openapi3.Schemas
	names   map[reflect.Type]string
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{
		schemas: make(openapi3.Schemas),
		names:   make(map[reflect.Type]string),
	}
}

// ref returns a schema reference for t. Named structs become component
// references, everything else is inlined.
func (r *schemaRegistry) ref(t reflect.Type) *openapi3.SchemaRef {
	nullable := false
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
		nullable = true
	}

	if t.Kind() == reflect.Struct && t.Name() != "" && !isWellKnown(t) {
		name, ok := r.names[t]
		if !ok {
			name = r.componentName(t)
			r.names[t] = name
			// Register before walking fields so recursive types terminate.
			r.schemas[name] = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
			*r.schemas[name].Value = *r.structSchema(t, nil)
		}
		return openapi3.NewSchemaRef(componentPrefix+name, r.schemas[name].Value)
	}

	s := r.inline(t)
	if nullable {
		s.Nullable = true
	}
	return openapi3.NewSchemaRef("", s)
}

// inline builds the schema of t without registering it.
func (r *schemaRegistry) inline(t reflect.Type) *openapi3.Schema {
	switch t {
	case reflect.TypeFor[time.Time]():
		return openapi3.NewDateTimeSchema()
	case reflect.TypeFor[time.Duration]():
		return &openapi3.Schema{Type: "string", Format: "duration"}
	case reflect.TypeFor[uuid.UUID]():
		return openapi3.NewUUIDSchema()
	case reflect.TypeFor[json.RawMessage]():
		return &openapi3.Schema{}
	case reflect.TypeFor[Void]():
		return &openapi3.Schema{}
	}

	//exhaustive:ignore
	switch t.Kind() {
	case reflect.String:
		return openapi3.NewStringSchema()
	case reflect.Bool:
		return openapi3.NewBoolSchema()
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return openapi3.NewInt32Schema()
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return openapi3.NewInt64Schema()
	case reflect.Float32:
		return &openapi3.Schema{Type: "number", Format: "float"}
	case reflect.Float64:
		return openapi3.NewFloat64Schema().WithFormat("double")
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return openapi3.NewBytesSchema()
		}
		return &openapi3.Schema{Type: "array", Items: r.ref(t.Elem())}
	case reflect.Array:
		return &openapi3.Schema{Type: "array", Items: r.ref(t.Elem())}
	case reflect.Map:
		return openapi3.NewObjectSchema()
	case reflect.Struct:
		return r.structSchema(t, nil)
	}

	if t.Implements(reflect.TypeFor[encoding.TextMarshaler]()) {
		return openapi3.NewStringSchema()
	}
	return &openapi3.Schema{}
}

// structSchema builds an object schema from the fields of t. Properties
// for which omit returns true are left out.
func (r *schemaRegistry) structSchema(t reflect.Type, omit func(jsonName string) bool) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous && indirectType(f.Type).Kind() == reflect.Struct {
			continue
		}
		name := jsonFieldName(f)
		if name == "-" || omit != nil && omit(name) {
			continue
		}

		prop := r.ref(f.Type)
		if doc := f.Tag.Get("doc"); doc != "" && prop.Ref == "" {
			prop.Value.Description = doc
		}
		s.Properties[name] = prop

		if isRequiredField(f) {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

// bodySchema returns the request body schema of t with the ignored
// properties removed. Without ignored properties it is a plain reference.
func (r *schemaRegistry) bodySchema(t reflect.Type, body *BodyMetadata) *openapi3.SchemaRef {
	t = indirectType(t)
	if len(body.IgnoredNames()) == 0 || t.Kind() != reflect.Struct {
		return r.ref(t)
	}
	return openapi3.NewSchemaRef("", r.structSchema(t, body.IsIgnored))
}

// resolve returns the schema a reference points at.
func (r *schemaRegistry) resolve(ref *openapi3.SchemaRef) *openapi3.Schema {
	return resolveSchema(r.schemas, ref)
}

func resolveSchema(schemas openapi3.Schemas, ref *openapi3.SchemaRef) *openapi3.Schema {
	if ref == nil {
		return nil
	}
	if ref.Value != nil {
		return ref.Value
	}
	if name, ok := strings.CutPrefix(ref.Ref, componentPrefix); ok {
		if c, ok := schemas[name]; ok && c != nil {
			return c.Value
		}
	}
	return nil
}

func (r *schemaRegistry) componentName(t reflect.Type) string {
	base := sanitizeName(t.Name())
	name := base
	for i := 2; ; i++ {
		if _, taken := r.schemas[name]; !taken {
			return name
		}
		name = base + strconv.Itoa(i)
	}
}

// sanitizeName makes generic instantiation names like "Page[pkg.User]"
// usable as component keys.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		case c == '[' || c == ',':
			b.WriteRune('_')
		}
	}
	return b.String()
}

func isWellKnown(t reflect.Type) bool {
	return t == reflect.TypeFor[time.Time]() || t == reflect.TypeFor[Void]()
}

func isRequiredField(f reflect.StructField) bool {
	if f.Tag.Get("required") == "true" {
		return true
	}
	v := f.Tag.Get("validate")
	return v == "required" || strings.HasPrefix(v, "required,")
}
