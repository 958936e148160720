package endpoint

// Group is a collection of routes under a shared prefix with shared middleware,
// tags and authorization requirements.
type Group struct {
	router         *Router
	prefix         string
	middleware     []Middleware
	tags           []string
	authorizations []Authorization
	authSchemes    []string
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithGroupTags adds default tags to all routes registered on the group.
func WithGroupTags(tags ...string) GroupOption {
	return func(g *Group) {
		g.tags = append(g.tags, tags...)
	}
}

// WithGroupMiddleware adds middleware to the group.
func WithGroupMiddleware(mw ...Middleware) GroupOption {
	return func(g *Group) {
		g.middleware = append(g.middleware, mw...)
	}
}

// WithGroupRoles requires the roles on every route of the group.
func WithGroupRoles(roles ...string) GroupOption {
	return func(g *Group) {
		g.authorizations = append(g.authorizations, Authorization{Roles: roles})
	}
}

// WithGroupAuthSchemes limits the security schemes of every route of the
// group. Routes that name their own schemes keep them.
func WithGroupAuthSchemes(schemes ...string) GroupOption {
	return func(g *Group) {
		g.authSchemes = append(g.authSchemes, schemes...)
	}
}

// Group creates a new route group with the given prefix and options.
func (r *Router) Group(prefix string, opts ...GroupOption) *Group {
	g := &Group{
		router: r,
		prefix: prefix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// prefixRoute implements Registrar for Group.
func (g *Group) prefixRoute(d *Definition) {
	for i, p := range d.Routes {
		d.Routes[i] = g.prefix + p
	}
	d.Tags = append(append([]string(nil), g.tags...), d.Tags...)
	d.Authorizations = append(append([]Authorization(nil), g.authorizations...), d.Authorizations...)
	if len(d.AuthSchemes) == 0 {
		d.AuthSchemes = append([]string(nil), g.authSchemes...)
	}
}

// addRoute implements Registrar for Group. Endpoint routes arrive already
// prefixed; raw routes are prefixed here.
func (g *Group) addRoute(rt route) {
	if rt.def == nil {
		rt.pattern = g.prefix + rt.pattern
		if rt.info != nil {
			rt.info.Tags = append(append([]string(nil), g.tags...), rt.info.Tags...)
			rt.info.Authorizations = append(append([]Authorization(nil), g.authorizations...), rt.info.Authorizations...)
		}
	}
	g.router.addRoute(rt)
}

func (g *Group) getValidator() Validator { return g.router.validator }

func (g *Group) getErrorHandler() ErrorHandler { return g.router.errorHandler }

func (g *Group) getCache() *ParameterCache { return g.router.cache }

func (g *Group) routeMiddleware() []Middleware { return g.middleware }
