package endpoint

import (
	"context"
	"net/http"
)

type contextKey[T any] struct{}

// SetValue stores a typed value in the request context. For use in middleware.
func SetValue[T any](r *http.Request, val T) *http.Request {
	ctx := context.WithValue(r.Context(), contextKey[T]{}, val)
	return r.WithContext(ctx)
}

// GetValue retrieves a typed value from the request context. For use in handlers.
func GetValue[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(contextKey[T]{}).(T)
	return val, ok
}

// Claims are the caller's identity claims, keyed by claim type. Fields
// tagged `claim:"type"` are bound from them.
type Claims map[string][]string

// Get returns the first value of the claim type.
func (c Claims) Get(claimType string) string {
	if vs := c[claimType]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// WithClaims returns a copy of ctx carrying the claims. Authentication
// middleware calls this after verifying the caller.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, contextKey[Claims]{}, c)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) Claims {
	c, _ := GetValue[Claims](ctx)
	return c
}
