package endpoint

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"time"
)

// binding is one non-body field of a request shape and where to read it.
type binding struct {
	index    []int
	source   BindingSource
	kind     AnnotationKind
	name     string
	required bool
}

// bindingPlan is the precomputed binding of a request shape on one route.
// It uses the same classification as the API description so the
// documented and the bound parameter surfaces agree.
type bindingPlan struct {
	void     bool
	hasBody  bool
	rawIndex []int
	bindings []binding
}

func newBindingPlan(shape reflect.Type, route, verb string, cache *ParameterCache) *bindingPlan {
	shape = indirectType(shape)
	if shape == reflect.TypeFor[Void]() {
		return &bindingPlan{void: true}
	}
	if shape.Kind() != reflect.Struct {
		return &bindingPlan{hasBody: true}
	}

	plan := &bindingPlan{}
	if f, ok := shape.FieldByName("RawRequest"); ok && f.Type == reflect.TypeFor[RawRequest]() {
		plan.rawIndex = f.Index
	}

	routeParams := parseRouteParams(route)
	rp := cache.Get(shape)
	for i := range rp.Properties {
		p := &rp.Properties[i]
		source, name, _ := classify(p, routeParams, verb)
		if source == SourceBody {
			plan.hasBody = true
			continue
		}
		b := binding{index: p.Field.Index, source: source, name: name}
		if p.Annotation != nil {
			b.kind = p.Annotation.Kind
			b.required = p.Annotation.Required
		}
		plan.bindings = append(plan.bindings, b)
	}
	return plan
}

// bind creates a new Req and populates it from r. Problems with the
// request are returned as validation failures.
func bind[Req any](r *http.Request, plan *bindingPlan) (*Req, []ValidationError) {
	req := new(Req)
	if plan.void {
		return req, nil
	}

	if plan.hasBody {
		if err := decodeBody(r, req); err != nil {
			return req, []ValidationError{{
				Field:   "body",
				Message: fmt.Errorf("%w: %w", ErrBindBody, err).Error(),
			}}
		}
	}

	v := reflect.ValueOf(req).Elem()
	if v.Kind() != reflect.Struct {
		return req, nil
	}

	if plan.rawIndex != nil {
		v.FieldByIndex(plan.rawIndex).Set(reflect.ValueOf(RawRequest{Request: r}))
	}

	var failures []ValidationError
	for _, b := range plan.bindings {
		// A body must never supply values for header, path, query or
		// claim fields.
		if plan.hasBody {
			if fv, err := v.FieldByIndexErr(b.index); err == nil && fv.CanSet() {
				fv.SetZero()
			}
		}

		values, sentinel := lookupValues(r, b)
		if len(values) == 0 {
			if b.required {
				failures = append(failures, ValidationError{
					Field:   b.name,
					Message: fmt.Sprintf("%s value is required", b.source),
				})
			}
			continue
		}

		field, err := fieldByIndexAlloc(v, b.index)
		if err == nil {
			err = setFieldValues(field, values)
		}
		if err != nil {
			failures = append(failures, ValidationError{
				Field:   b.name,
				Message: fmt.Errorf("%w: %s: %w", sentinel, b.name, err).Error(),
				Value:   values[0],
			})
		}
	}
	return req, failures
}

// lookupValues reads the raw values for a binding.
func lookupValues(r *http.Request, b binding) ([]string, error) {
	//exhaustive:ignore
	switch b.source {
	case SourcePath:
		return nonEmpty(r.PathValue(b.name)), ErrBindPath
	case SourceQuery:
		return r.URL.Query()[b.name], ErrBindQuery
	case SourceHeader:
		return r.Header.Values(b.name), ErrBindHeader
	case SourceCustom:
		if b.kind == AnnotationClaim {
			return ClaimsFromContext(r.Context())[b.name], ErrBindClaim
		}
		if vs := nonEmpty(r.PathValue(b.name)); len(vs) > 0 {
			return vs, ErrBindCustom
		}
		if vs := r.URL.Query()[b.name]; len(vs) > 0 {
			return vs, ErrBindCustom
		}
		return r.Header.Values(b.name), ErrBindCustom
	}
	return nil, nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// fieldByIndexAlloc walks to a possibly promoted field, allocating nil
// embedded pointers on the way.
func fieldByIndexAlloc(v reflect.Value, index []int) (reflect.Value, error) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, fmt.Errorf("cannot allocate embedded %s", v.Type())
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	if !v.CanSet() {
		return reflect.Value{}, fmt.Errorf("field of type %s is not settable", v.Type())
	}
	return v, nil
}

// setFieldValues sets a field from one or more raw values. Slices take
// every value, everything else takes the first.
func setFieldValues(field reflect.Value, values []string) error {
	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() != reflect.Uint8 && !isTextUnmarshaler(field.Type()) {
		s := reflect.MakeSlice(field.Type(), len(values), len(values))
		for i, val := range values {
			if err := setFieldValue(s.Index(i), val); err != nil {
				return err
			}
		}
		field.Set(s)
		return nil
	}
	return setFieldValue(field, values[0])
}

// setFieldValue sets a reflect.Value from a string, supporting common types.
func setFieldValue(field reflect.Value, value string) error {
	if field.Kind() == reflect.Pointer {
		ptr := reflect.New(field.Type().Elem())
		if err := setFieldValue(ptr.Elem(), value); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	if field.Type() == reflect.TypeFor[time.Duration]() {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}

	if field.CanAddr() {
		if tu, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return tu.UnmarshalText([]byte(value))
		}
	}

	//exhaustive:ignore
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.Uint8 {
			field.SetBytes([]byte(value))
			return nil
		}
		return fmt.Errorf("unsupported type: %s", field.Type())
	default:
		return fmt.Errorf("unsupported type: %s", field.Type())
	}
	return nil
}

func isTextUnmarshaler(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(reflect.TypeFor[encoding.TextUnmarshaler]())
}

// decodeBody decodes the request body as JSON into target.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
