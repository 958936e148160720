package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Phase is the lifecycle state of an EndpointSpan.
type Phase int

// Span phases.
const (
	PhaseNoSpan Phase = iota
	PhaseStarted
	PhaseValidationFailed
	PhaseExecuting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseValidationFailed:
		return "validation_failed"
	case PhaseExecuting:
		return "executing"
	case PhaseClosed:
		return "closed"
	default:
		return "no_span"
	}
}

// Span event and attribute names.
const (
	EventValidationFailed  = "ValidationFailed"
	AttrValidationFailures = "ValidationFailures"
)

// Outcome labels recorded when a span closes.
const (
	OutcomeOK               = "ok"
	OutcomeValidationFailed = "validation_failed"
	OutcomeError            = "error"
)

// EndpointSpan tracks the span of one endpoint invocation through
// validation and execution. The span is ended exactly once, by whichever
// of ValidationFailed, Fail or Complete comes first. All methods are safe
// on a nil receiver.
type EndpointSpan struct {
	mu    sync.Mutex
	span  trace.Span
	phase Phase

	recordException bool
	onClose         func(outcome string)
}

func newEndpointSpan(span trace.Span, recordException bool, onClose func(string)) *EndpointSpan {
	return &EndpointSpan{
		span:            span,
		phase:           PhaseStarted,
		recordException: recordException,
		onClose:         onClose,
	}
}

// Span returns the underlying span.
func (s *EndpointSpan) Span() trace.Span {
	if s == nil {
		return nil
	}
	return s.span
}

// Phase returns the current phase.
func (s *EndpointSpan) Phase() Phase {
	if s == nil {
		return PhaseNoSpan
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ValidationFailed records the failures as an event, marks the span as
// failed and closes it.
func (s *EndpointSpan) ValidationFailed(failures []ValidationError) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseStarted {
		return
	}
	s.phase = PhaseValidationFailed

	payload, err := json.Marshal(failures)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", err.Error()))
	}
	s.span.AddEvent(EventValidationFailed, trace.WithAttributes(
		attribute.String(AttrValidationFailures, string(payload)),
	))
	s.span.SetStatus(codes.Error, EventValidationFailed)
	s.close(OutcomeValidationFailed)
}

// Executing marks the start of handler execution.
func (s *EndpointSpan) Executing() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseStarted {
		s.phase = PhaseExecuting
	}
}

// Fail marks the span failed with the error's kind and closes it. The
// error itself is left for the caller to handle.
func (s *EndpointSpan) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed || s.phase == PhaseValidationFailed {
		return
	}

	kind := ErrorKind(err)
	s.span.SetAttributes(attribute.String("error.type", kind))
	if s.recordException {
		s.span.RecordError(err, trace.WithAttributes(attribute.String("exception.type", kind)))
	}
	s.span.SetStatus(codes.Error, kind)
	s.close(OutcomeError)
}

// Complete marks the span successful and closes it. It does nothing if
// the span is already closed.
func (s *EndpointSpan) Complete() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseStarted && s.phase != PhaseExecuting {
		return
	}
	s.span.SetStatus(codes.Ok, "")
	s.close(OutcomeOK)
}

// close must be called with mu held.
func (s *EndpointSpan) close(outcome string) {
	s.phase = PhaseClosed
	s.span.End()
	if s.onClose != nil {
		s.onClose(outcome)
	}
}

type endpointSpanKey struct{}

func withEndpointSpan(ctx context.Context, s *EndpointSpan) context.Context {
	return context.WithValue(ctx, endpointSpanKey{}, s)
}

// EndpointSpanFromContext returns the endpoint span of the request, or nil
// when the request is not traced.
func EndpointSpanFromContext(ctx context.Context) *EndpointSpan {
	s, _ := ctx.Value(endpointSpanKey{}).(*EndpointSpan)
	return s
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ErrorKind names the type of err, without pointer or package path, for
// example "endpoint.HTTPError".
func ErrorKind(err error) string {
	if pe, ok := err.(*PanicError); ok {
		if inner, ok := pe.Value.(error); ok {
			return ErrorKind(inner)
		}
		return "panic"
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.String()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
