package endpoint

import (
	"context"
	"net/http"
)

// Void is used as a type parameter when a request has no parameters/body
// or a response has no body (results in 204 No Content).
type Void struct{}

// Handler is the "execute" form of an endpoint: it receives the bound
// request and returns the response the framework serializes.
type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)

// HandleFunc is the "handle" form of an endpoint: it receives the bound
// request and produces no response body.
type HandleFunc[Req any] func(ctx context.Context, req *Req) error

// RawHandler is an escape hatch for anything that needs direct access to
// the underlying http primitives.
type RawHandler func(w http.ResponseWriter, r *http.Request)

// executor reports which handler form an endpoint was registered with.
type executor interface {
	executes() bool
}

func (Handler[Req, Resp]) executes() bool { return true }

func (HandleFunc[Req]) executes() bool { return false }
