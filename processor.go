package endpoint

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
)

// PreContext is handed to pre-processors after binding and before
// validation.
type PreContext[Req any] struct {
	Request  *Req
	HTTP     *http.Request
	Failures []ValidationError
}

// Fail records a validation failure. Any failure stops the request
// before the handler runs.
func (c *PreContext[Req]) Fail(field, message string) {
	c.Failures = append(c.Failures, ValidationError{Field: field, Message: message})
}

// PreProcessor runs before validation. A returned error aborts the
// request and goes to the error handler.
type PreProcessor[Req any] interface {
	PreProcess(ctx context.Context, pc *PreContext[Req]) error
}

// PreProcessorFunc adapts a function to PreProcessor.
type PreProcessorFunc[Req any] func(ctx context.Context, pc *PreContext[Req]) error

// PreProcess calls f.
func (f PreProcessorFunc[Req]) PreProcess(ctx context.Context, pc *PreContext[Req]) error {
	return f(ctx, pc)
}

// PostContext is handed to post-processors after the handler returns.
type PostContext[Req, Resp any] struct {
	Request  *Req
	Response *Resp
	HTTP     *http.Request
	Err      error
}

// PostProcessor runs after the handler, whether it failed or not.
type PostProcessor[Req, Resp any] interface {
	PostProcess(ctx context.Context, pc *PostContext[Req, Resp]) error
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc[Req, Resp any] func(ctx context.Context, pc *PostContext[Req, Resp]) error

// PostProcess calls f.
func (f PostProcessorFunc[Req, Resp]) PostProcess(ctx context.Context, pc *PostContext[Req, Resp]) error {
	return f(ctx, pc)
}

// WithPreProcessors appends pre-processors in execution order.
func WithPreProcessors[Req any](pp ...PreProcessor[Req]) RouteOption {
	return func(d *Definition) {
		for _, p := range pp {
			d.PreProcessors = append(d.PreProcessors, p)
		}
	}
}

// WithPostProcessors appends post-processors in execution order.
func WithPostProcessors[Req, Resp any](pp ...PostProcessor[Req, Resp]) RouteOption {
	return func(d *Definition) {
		for _, p := range pp {
			d.PostProcessors = append(d.PostProcessors, p)
		}
	}
}

// preProcessorsFor narrows the stored processors to the endpoint's
// request type. A mismatch is a registration bug and panics.
func preProcessorsFor[Req any](d *Definition) []PreProcessor[Req] {
	out := make([]PreProcessor[Req], 0, len(d.PreProcessors))
	for _, p := range d.PreProcessors {
		pp, ok := p.(PreProcessor[Req])
		if !ok {
			panic(fmt.Sprintf("endpoint: pre-processor %T does not accept %s", p, reflect.TypeFor[Req]()))
		}
		out = append(out, pp)
	}
	return out
}

func postProcessorsFor[Req, Resp any](d *Definition) []PostProcessor[Req, Resp] {
	out := make([]PostProcessor[Req, Resp], 0, len(d.PostProcessors))
	for _, p := range d.PostProcessors {
		pp, ok := p.(PostProcessor[Req, Resp])
		if !ok {
			panic(fmt.Sprintf("endpoint: post-processor %T does not accept %s -> %s",
				p, reflect.TypeFor[Req](), reflect.TypeFor[Resp]()))
		}
		out = append(out, pp)
	}
	return out
}
