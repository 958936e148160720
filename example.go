package endpoint

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultExampleDepth = 8

// ExampleSynthesizer builds documentation examples by walking a schema
// against an example value. A nil result means "no example" and is never
// an error.
type ExampleSynthesizer struct {
	// Schemas resolves component references.
	Schemas openapi3.Schemas

	// Now and NewID produce placeholder date-time and uuid values.
	Now   func() time.Time
	NewID func() string

	// MaxDepth bounds recursion through nested and self-referencing
	// schemas.
	MaxDepth int
}

// FromExample synthesizes an example for ref from the example value.
func (s *ExampleSynthesizer) FromExample(ref *openapi3.SchemaRef, example any) any {
	return s.fromExample(ref, reflect.ValueOf(example), 0)
}

// Default synthesizes a placeholder example for ref.
func (s *ExampleSynthesizer) Default(ref *openapi3.SchemaRef) any {
	return s.placeholder(ref, 0)
}

func (s *ExampleSynthesizer) maxDepth() int {
	if s.MaxDepth > 0 {
		return s.MaxDepth
	}
	return defaultExampleDepth
}

func (s *ExampleSynthesizer) fromExample(ref *openapi3.SchemaRef, v reflect.Value, depth int) any {
	schema := resolveSchema(s.Schemas, ref)
	if schema == nil || depth > s.maxDepth() {
		return nil
	}

	v, ok := deref(v)
	if !ok {
		return s.placeholder(ref, depth)
	}

	switch schema.Type {
	case "object":
		return s.objectExample(schema, v, depth)
	case "array":
		return s.arrayExample(schema, v, depth)
	case "":
		if len(schema.Properties) > 0 {
			return s.objectExample(schema, v, depth)
		}
		return nil
	default:
		return leafExample(schema, v)
	}
}

func (s *ExampleSynthesizer) objectExample(schema *openapi3.Schema, v reflect.Value, depth int) any {
	if len(schema.Properties) == 0 {
		if v.Kind() == reflect.Map {
			return mapExample(v)
		}
		return nil
	}

	out := make(map[string]any, len(schema.Properties))
	for _, key := range sortedKeys(schema.Properties) {
		prop := schema.Properties[key]
		fv, found := lookupMember(v, key)

		var val any
		if !found {
			val = s.placeholder(prop, depth+1)
		} else {
			val = s.fromExample(prop, fv, depth+1)
		}
		if val != nil {
			out[key] = val
		}
	}
	return out
}

func (s *ExampleSynthesizer) arrayExample(schema *openapi3.Schema, v reflect.Value, depth int) any {
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, 0, v.Len())
	for i := range v.Len() {
		if val := s.fromExample(schema.Items, v.Index(i), depth+1); val != nil {
			out = append(out, val)
		}
	}
	return out
}

func (s *ExampleSynthesizer) placeholder(ref *openapi3.SchemaRef, depth int) any {
	schema := resolveSchema(s.Schemas, ref)
	if schema == nil || depth > s.maxDepth() {
		return nil
	}

	switch schema.Type {
	case "boolean":
		return true
	case "integer":
		switch schema.Format {
		case "int32":
			return int32(0)
		case "int64":
			return int64(0)
		}
		return 0
	case "number":
		switch schema.Format {
		case "float":
			return float32(0)
		case "double":
			return float64(0)
		}
		return 0.0
	case "string":
		switch schema.Format {
		case "date-time":
			return s.now().UTC()
		case "uuid":
			return s.newID()
		case "duration", "date-span":
			return time.Duration(0).String()
		}
		return ""
	case "array":
		if item := s.placeholder(schema.Items, depth+1); item != nil {
			return []any{item}
		}
		return []any{}
	case "object":
		out := make(map[string]any, len(schema.Properties))
		for _, key := range sortedKeys(schema.Properties) {
			if val := s.placeholder(schema.Properties[key], depth+1); val != nil {
				out[key] = val
			}
		}
		return out
	}
	return nil
}

func (s *ExampleSynthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ExampleSynthesizer) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New().String()
}

// leafExample converts a primitive example value into a literal matching
// the schema's type and format. Unsupported pairs return nil.
func leafExample(schema *openapi3.Schema, v reflect.Value) any {
	switch schema.Type {
	case "boolean":
		if v.Kind() == reflect.Bool {
			return v.Bool()
		}
	case "number":
		f, ok := toFloat(v)
		if !ok {
			return nil
		}
		switch schema.Format {
		case "float":
			return float32(f)
		case "double":
			return f
		}
	case "integer":
		n, ok := toInt(v)
		if !ok {
			return nil
		}
		switch schema.Format {
		case "int32":
			return int32(n)
		case "int64":
			return n
		}
	case "string":
		return stringExample(schema.Format, v)
	}
	return nil
}

func stringExample(format string, v reflect.Value) any {
	if !v.CanInterface() {
		if v.Kind() == reflect.String {
			return v.String()
		}
		return nil
	}

	switch format {
	case "byte":
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), v.Bytes()...)
		}
		if v.Kind() == reflect.String {
			return v.String()
		}
		return nil
	case "date-time":
		if t, ok := v.Interface().(time.Time); ok {
			return t
		}
	case "uuid":
		if id, ok := v.Interface().(uuid.UUID); ok {
			return id
		}
	case "duration", "date-span":
		if d, ok := v.Interface().(time.Duration); ok {
			return d.String()
		}
	}

	if v.Kind() == reflect.String {
		return v.String()
	}
	if st, ok := v.Interface().(fmt.Stringer); ok {
		return st.String()
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return base64.StdEncoding.EncodeToString(v.Bytes())
	}
	return nil
}

// lookupMember finds the value for a schema property on a struct or map:
// first by JSON name, then by Go name, then by the pascal-cased key when
// the key starts lower-case.
func lookupMember(v reflect.Value, key string) (reflect.Value, bool) {
	switch v.Kind() {
	case reflect.Struct:
		fields := reflect.VisibleFields(v.Type())
		for _, f := range fields {
			if f.IsExported() && !f.Anonymous && jsonFieldName(f) == key {
				return fieldValue(v, f)
			}
		}
		candidates := []string{key}
		if r := []rune(key); len(r) > 0 && unicode.IsLower(r[0]) {
			candidates = append(candidates, pascalCase(key))
		}
		for _, name := range candidates {
			if f, ok := v.Type().FieldByName(name); ok && f.IsExported() {
				return fieldValue(v, f)
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		candidates := []string{key}
		if r := []rune(key); len(r) > 0 && unicode.IsLower(r[0]) {
			candidates = append(candidates, pascalCase(key))
		}
		for _, name := range candidates {
			mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
			if mv.IsValid() {
				return mv, true
			}
		}
	}
	return reflect.Value{}, false
}

// pascalCase upper-cases the first letter. A Caser holds state, so one is
// built per call.
func pascalCase(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(s)
}

// fieldValue reads a possibly promoted field without panicking on nil
// embedded pointers.
func fieldValue(v reflect.Value, f reflect.StructField) (reflect.Value, bool) {
	fv, err := v.FieldByIndexErr(f.Index)
	if err != nil {
		return reflect.Value{}, false
	}
	return fv, true
}

// mapExample copies the primitive entries of a string keyed map.
func mapExample(v reflect.Value) any {
	if v.Type().Key().Kind() != reflect.String {
		return nil
	}
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		val, ok := deref(iter.Value())
		if !ok || !val.CanInterface() {
			continue
		}
		//exhaustive:ignore
		switch val.Kind() {
		case reflect.Bool, reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			out[iter.Key().String()] = val.Interface()
		}
	}
	return out
}

// deref unwraps pointers and interfaces. It reports false for nil values.
func deref(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return v, false
	}
	if (v.Kind() == reflect.Slice || v.Kind() == reflect.Map) && v.IsNil() {
		return reflect.Value{}, false
	}
	return v, true
}

func toFloat(v reflect.Value) (float64, bool) {
	//exhaustive:ignore
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}

func toInt(v reflect.Value) (int64, bool) {
	//exhaustive:ignore
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func sortedKeys(m openapi3.Schemas) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// removeIgnored deletes ignored keys, compared case-insensitively, from an
// object example or from each object of an array example.
func removeIgnored(example any, ignored []string) any {
	if len(ignored) == 0 {
		return example
	}
	switch ex := example.(type) {
	case map[string]any:
		for key := range ex {
			for _, name := range ignored {
				if strings.EqualFold(key, name) {
					delete(ex, key)
					break
				}
			}
		}
	case []any:
		for _, item := range ex {
			removeIgnored(item, ignored)
		}
	}
	return example
}
