package endpoint

import (
	"reflect"
	"sync"
)

// ParameterCache memoizes introspection per request shape for the life of
// the process. Entries are never evicted.
type ParameterCache struct {
	entries sync.Map // reflect.Type -> *RequestParameter
}

// NewParameterCache returns an empty cache.
func NewParameterCache() *ParameterCache {
	return &ParameterCache{}
}

// Get returns the cached parameter for t, introspecting it on first use.
// Concurrent first calls may both introspect; the first stored value wins.
func (c *ParameterCache) Get(t reflect.Type) *RequestParameter {
	t = indirectType(t)
	if t == nil {
		return &RequestParameter{}
	}
	if v, ok := c.entries.Load(t); ok {
		return v.(*RequestParameter)
	}
	v, _ := c.entries.LoadOrStore(t, introspect(t))
	return v.(*RequestParameter)
}

var defaultCache = NewParameterCache()

// GetRequestParameter returns the process-wide cached parameter for t.
func GetRequestParameter(t reflect.Type) *RequestParameter {
	return defaultCache.Get(t)
}
