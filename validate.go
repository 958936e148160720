package endpoint

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// SelfValidator is implemented by request types that validate themselves.
type SelfValidator interface {
	Validate() error
}

// Validator validates any request.
type Validator interface {
	Validate(req any) error
}

// StructValidator validates `validate` struct tags with
// go-playground/validator. Failures are reported with JSON field names.
type StructValidator struct {
	v *validator.Validate
}

// NewStructValidator returns the default request validator.
func NewStructValidator() *StructValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := jsonFieldName(f)
		if name == "-" {
			return ""
		}
		return name
	})
	return &StructValidator{v: v}
}

// Validate returns a 400 ProblemDetail listing every failed rule.
func (s *StructValidator) Validate(req any) error {
	if t := indirectType(reflect.TypeOf(req)); t == nil || t.Kind() != reflect.Struct {
		return nil
	}

	err := s.v.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failures := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on the '%s=%s' rule", fe.Tag(), fe.Param())
		}
		failures = append(failures, ValidationError{
			Field:   fe.Field(),
			Message: msg,
			Value:   fe.Value(),
		})
	}
	return ValidationProblem(failures)
}

// validationFailures flattens a validation error into failures.
func validationFailures(err error) []ValidationError {
	if err == nil {
		return nil
	}
	var pd *ProblemDetail
	if errors.As(err, &pd) && len(pd.Errors) > 0 {
		return pd.Errors
	}
	return []ValidationError{{Message: err.Error()}}
}

// validateRequest runs the self validator and then the router validator.
func validateRequest(req any, v Validator) []ValidationError {
	var failures []ValidationError
	if sv, ok := req.(SelfValidator); ok {
		failures = append(failures, validationFailures(sv.Validate())...)
	}
	if v != nil {
		failures = append(failures, validationFailures(v.Validate(req))...)
	}
	return failures
}
