package endpoint

import "context"

// Mapper converts between the wire shapes of an endpoint and a domain
// entity.
type Mapper[Req, Resp, Entity any] interface {
	ToEntity(ctx context.Context, req *Req) (*Entity, error)
	FromEntity(ctx context.Context, e *Entity) (*Resp, error)
}

// MapperFuncs adapts a pair of functions to Mapper.
type MapperFuncs[Req, Resp, Entity any] struct {
	To   func(ctx context.Context, req *Req) (*Entity, error)
	From func(ctx context.Context, e *Entity) (*Resp, error)
}

// ToEntity calls m.To.
func (m MapperFuncs[Req, Resp, Entity]) ToEntity(ctx context.Context, req *Req) (*Entity, error) {
	return m.To(ctx, req)
}

// FromEntity calls m.From.
func (m MapperFuncs[Req, Resp, Entity]) FromEntity(ctx context.Context, e *Entity) (*Resp, error) {
	return m.From(ctx, e)
}

// Mapped builds a Handler that maps the request to an entity, runs fn on
// it, and maps the result back to the response.
func Mapped[Req, Resp, Entity any](m Mapper[Req, Resp, Entity], fn func(ctx context.Context, e *Entity) (*Entity, error)) Handler[Req, Resp] {
	return func(ctx context.Context, req *Req) (*Resp, error) {
		in, err := m.ToEntity(ctx, req)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return m.FromEntity(ctx, out)
	}
}
