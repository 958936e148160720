package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/endpoint"
	"github.com/bjaus/endpoint/telemetry"
)

// demoKeys maps API keys to the claims of their holder.
var demoKeys = map[string]endpoint.Claims{
	"admin-key":  {"sub": {"u-admin"}, "role": {"admin", "member"}},
	"member-key": {"sub": {"u-member"}, "role": {"member"}},
}

type appConfig struct {
	Logger    *slog.Logger
	Providers *telemetry.Providers
	Store     *userStore
	Keys      map[string]endpoint.Claims
	Rate      float64
	Burst     int
}

func newRouter(cfg appConfig) *endpoint.Router {
	diag := []endpoint.DiagnosticsOption{
		endpoint.WithDiagnosticsLogger(cfg.Logger),
		endpoint.WithRecordException(true),
		endpoint.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/v1/health"
		}),
		endpoint.WithEnrich(func(span trace.Span, event string, r *http.Request) {
			if event == "start" {
				span.SetAttributes(attribute.String("tenant", r.Header.Get(tenantHeader)))
			}
		}),
	}
	httpOpts := []otelhttp.Option{
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/docs")
		}),
	}
	if cfg.Providers != nil {
		diag = append(diag,
			endpoint.WithTracerProvider(cfg.Providers.TracerProvider()),
			endpoint.WithMeterProvider(cfg.Providers.MeterProvider()),
		)
		httpOpts = append(httpOpts,
			otelhttp.WithTracerProvider(cfg.Providers.TracerProvider()),
			otelhttp.WithMeterProvider(cfg.Providers.MeterProvider()),
		)
	}

	r := endpoint.New(
		endpoint.WithTitle("Users API"),
		endpoint.WithAPIVersion("1.0.0"),
		endpoint.WithAPIDescription("Tenant scoped user management."),
		endpoint.WithLogger(cfg.Logger),
		endpoint.WithSecurityScheme("ApiKey", openapi3.NewSecurityScheme().
			WithType("apiKey").
			WithIn("header").
			WithName("Authorization")),
		endpoint.WithTagDescriptions(map[string]string{
			"users": "Manage the users of a tenant.",
			"ops":   "Operational endpoints.",
		}),
		endpoint.WithDiagnostics(diag...),
		endpoint.WithHTTPInstrumentation(httpOpts...),
	)

	r.Use(endpoint.RequestID())
	r.Use(endpoint.Logger(cfg.Logger, endpoint.WithLogSkip(func(req *http.Request) bool {
		return req.URL.Path == "/v1/health"
	})))
	r.Use(endpoint.Recovery(endpoint.RecoveryConfig{Logger: cfg.Logger}))
	r.Use(authenticate(r, cfg.Keys))

	r.ServeSpec("/openapi.json")
	r.ServeSpecYAML("/openapi.yaml")
	r.ServeSpecV2("/swagger.json")
	r.ServeDocs("/docs", endpoint.WithDocsTitle("Users API"))

	v1 := r.Group("/v1")

	endpoint.Get(v1, "/health", handleHealth,
		endpoint.WithSummary("Health check"),
		endpoint.WithDescription("Returns the current server time."),
		endpoint.WithTags("ops"),
		endpoint.WithAllowAnonymous(),
	)

	endpoint.Raw(v1, http.MethodGet, "/events", handleEvents, endpoint.OperationInfo{
		Summary:        "Event stream",
		Description:    "Server-Sent Events stream emitting count ticks.",
		Tags:           []string{"ops"},
		AllowAnonymous: true,
	})

	users := r.Group("/v1",
		endpoint.WithGroupTags("users"),
		endpoint.WithGroupRoles("member"),
		endpoint.WithGroupAuthSchemes("ApiKey"),
	)
	registerUsers(users, cfg)

	return r
}

func registerUsers(g *endpoint.Group, cfg appConfig) {
	h := &userHandlers{store: cfg.Store}

	endpoint.Get(g, "/users", h.list,
		endpoint.WithName("ListUsers"),
		endpoint.WithSummary("List users"),
		endpoint.WithDescription("Returns the users of the tenant, optionally filtered by role."),
		endpoint.WithPreProcessors(requireTenant[listUsersRequest](cfg.Store)),
	)

	endpoint.Post(g, "/users", endpoint.Mapped[createUserRequest, userView, User](createUserMapper, cfg.Store.create),
		endpoint.WithName("CreateUser"),
		endpoint.WithStatus(http.StatusCreated),
		endpoint.WithSummary("Create user"),
		endpoint.WithRoles("admin"),
		endpoint.WithErrors(http.StatusConflict, http.StatusTooManyRequests),
		endpoint.WithRequestExample(createUserRequest{Name: "Ada", Email: "ada@acme.test", Role: "member"}),
		endpoint.WithPreProcessors(
			endpoint.Throttle[createUserRequest](endpoint.ThrottleConfig{
				Rate:    cfg.Rate,
				Burst:   cfg.Burst,
				KeyFunc: callerKey,
			}),
			requireTenant[createUserRequest](cfg.Store),
		),
		endpoint.WithPostProcessors(audit[createUserRequest, userView](cfg.Logger, "user.create")),
	)

	endpoint.Get(g, "/users/{id}", h.get,
		endpoint.WithName("GetUser"),
		endpoint.WithSummary("Get user by ID"),
		endpoint.WithErrors(http.StatusNotFound),
		endpoint.WithPreProcessors(requireTenant[userByID](cfg.Store)),
	)

	endpoint.Put(g, "/users/{id}", endpoint.Mapped[updateUserRequest, userView, User](updateUserMapper, cfg.Store.update),
		endpoint.WithName("UpdateUser"),
		endpoint.WithSummary("Update user"),
		endpoint.WithDescription("Replaces the non-empty fields of the user."),
		endpoint.WithErrors(http.StatusNotFound),
		endpoint.WithPreProcessors(requireTenant[updateUserRequest](cfg.Store)),
		endpoint.WithPostProcessors(audit[updateUserRequest, userView](cfg.Logger, "user.update")),
	)

	endpoint.Handle(g, http.MethodDelete, "/users/{id}", h.delete,
		endpoint.WithName("DeleteUser"),
		endpoint.WithSummary("Delete user"),
		endpoint.WithRoles("admin"),
		endpoint.WithErrors(http.StatusNotFound),
		endpoint.WithPreProcessors(requireTenant[userByID](cfg.Store)),
	)
}

// ---------------------------------------------------------------------------
// Request / Response types
// ---------------------------------------------------------------------------

const tenantHeader = "X-Tenant"

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

type userView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type userList struct {
	Users []userView `json:"users"`
	Total int        `json:"total"`
}

type listUsersRequest struct {
	Tenant string `json:"-" header:"X-Tenant,required" doc:"Tenant the users belong to"`
	Role   string `json:"role" doc:"Filter by role" validate:"omitempty,oneof=admin member"`
	Limit  int    `json:"limit" doc:"Max results" validate:"omitempty,min=1,max=100"`
}

type createUserRequest struct {
	Tenant string `json:"-" header:"X-Tenant,required" doc:"Tenant the user belongs to"`
	Caller string `json:"-" claim:"sub"`
	Name   string `json:"name" doc:"Display name" validate:"required"`
	Email  string `json:"email" doc:"Email address" validate:"required,email"`
	Role   string `json:"role" doc:"User role" validate:"omitempty,oneof=admin member"`
}

type userByID struct {
	ID     string `json:"id" doc:"User ID"`
	Tenant string `json:"-" header:"X-Tenant,required" doc:"Tenant the user belongs to"`
}

type updateUserRequest struct {
	ID     string `json:"id" doc:"User ID"`
	Tenant string `json:"-" header:"X-Tenant,required" doc:"Tenant the user belongs to"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
	Role   string `json:"role,omitempty" validate:"omitempty,oneof=admin member"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

type userHandlers struct {
	store *userStore
}

func handleHealth(_ context.Context, _ *endpoint.Void) (*healthResponse, error) {
	return &healthResponse{Status: "ok", Time: time.Now().UTC()}, nil
}

func (h *userHandlers) list(ctx context.Context, req *listUsersRequest) (*userList, error) {
	users := h.store.list(ctx, req.Tenant, req.Role, req.Limit)
	out := &userList{Users: make([]userView, 0, len(users)), Total: len(users)}
	for i := range users {
		out.Users = append(out.Users, toView(&users[i]))
	}
	if es := endpoint.EndpointSpanFromContext(ctx); es != nil {
		es.Span().SetAttributes(attribute.Int("users.count", out.Total))
	}
	return out, nil
}

func (h *userHandlers) get(ctx context.Context, req *userByID) (*userView, error) {
	u, err := h.store.get(ctx, req.Tenant, req.ID)
	if err != nil {
		return nil, err
	}
	v := toView(u)
	return &v, nil
}

func (h *userHandlers) delete(ctx context.Context, req *userByID) error {
	return h.store.delete(ctx, req.Tenant, req.ID)
}

// handleEvents streams ?count ticks (default 3) as Server-Sent Events.
func handleEvents(w http.ResponseWriter, r *http.Request) {
	count := 3
	if s := r.URL.Query().Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			http.Error(w, "count must be between 1 and 100", http.StatusBadRequest)
			return
		}
		count = n
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for i := 1; i <= count; i++ {
		if i > 1 {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
		data, _ := json.Marshal(map[string]any{"seq": i, "time": time.Now().UTC().Format(time.RFC3339)})
		_, _ = fmt.Fprintf(w, "id: %d\nevent: tick\ndata: %s\n\n", i, data)
		flusher.Flush()
	}
}

// ---------------------------------------------------------------------------
// Mappers
// ---------------------------------------------------------------------------

var createUserMapper = endpoint.MapperFuncs[createUserRequest, userView, User]{
	To: func(_ context.Context, req *createUserRequest) (*User, error) {
		return &User{Tenant: req.Tenant, Name: req.Name, Email: req.Email, Role: req.Role}, nil
	},
	From: fromEntity,
}

var updateUserMapper = endpoint.MapperFuncs[updateUserRequest, userView, User]{
	To: func(_ context.Context, req *updateUserRequest) (*User, error) {
		return &User{ID: req.ID, Tenant: req.Tenant, Name: req.Name, Email: req.Email, Role: req.Role}, nil
	},
	From: fromEntity,
}

func fromEntity(_ context.Context, u *User) (*userView, error) {
	v := toView(u)
	return &v, nil
}

func toView(u *User) userView {
	return userView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Processors and middleware
// ---------------------------------------------------------------------------

// requireTenant rejects requests for tenants the store does not know.
func requireTenant[Req any](store *userStore) endpoint.PreProcessor[Req] {
	return endpoint.PreProcessorFunc[Req](func(_ context.Context, pc *endpoint.PreContext[Req]) error {
		if tenant := pc.HTTP.Header.Get(tenantHeader); tenant != "" && !store.hasTenant(tenant) {
			pc.Fail(tenantHeader, "unknown tenant")
		}
		return nil
	})
}

// audit logs the outcome of a mutating endpoint with the caller's identity.
func audit[Req, Resp any](logger *slog.Logger, action string) endpoint.PostProcessor[Req, Resp] {
	return endpoint.PostProcessorFunc[Req, Resp](func(ctx context.Context, pc *endpoint.PostContext[Req, Resp]) error {
		endpoint.AddLogAttrs(ctx, slog.String("audit", action))
		attrs := []any{
			"action", action,
			"caller", endpoint.ClaimsFromContext(ctx).Get("sub"),
			"tenant", pc.HTTP.Header.Get(tenantHeader),
		}
		if pc.Err != nil {
			attrs = append(attrs, "error", pc.Err)
			logger.WarnContext(ctx, "audit", attrs...)
			return nil
		}
		logger.InfoContext(ctx, "audit", attrs...)
		return nil
	})
}

// callerKey throttles per authenticated caller, falling back to the
// remote address.
func callerKey(r *http.Request) string {
	if sub := endpoint.ClaimsFromContext(r.Context()).Get("sub"); sub != "" {
		return sub
	}
	return r.RemoteAddr
}

// authenticate resolves "Authorization: ApiKey <key>" to claims and
// enforces the roles documented on the matched endpoint.
func authenticate(res endpoint.Resolver, keys map[string]endpoint.Claims) endpoint.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFor(r, keys)
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, err.Error())
				return
			}
			if claims != nil {
				r = r.WithContext(endpoint.WithClaims(r.Context(), claims))
			}

			if def, ok := res.Resolve(r); ok && !def.AllowAnonymous {
				if claims == nil && len(def.Authorizations) > 0 {
					writeProblem(w, http.StatusUnauthorized, "missing API key")
					return
				}
				if !authorized(claims, def.Authorizations) {
					writeProblem(w, http.StatusForbidden, "insufficient role")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFor(r *http.Request, keys map[string]endpoint.Claims) (endpoint.Claims, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return nil, nil
	}
	key, ok := strings.CutPrefix(h, "ApiKey ")
	if !ok {
		return nil, errors.New("unsupported authorization scheme")
	}
	claims, ok := keys[strings.TrimSpace(key)]
	if !ok {
		return nil, errors.New("unknown API key")
	}
	return claims, nil
}

// authorized reports whether claims satisfy every authorization. Each
// entry holds comma separated alternatives.
func authorized(claims endpoint.Claims, auths []endpoint.Authorization) bool {
	roles := claims["role"]
	for _, a := range auths {
		for _, entry := range a.Roles {
			if !slices.ContainsFunc(strings.Split(entry, ","), func(role string) bool {
				return slices.Contains(roles, strings.TrimSpace(role))
			}) {
				return false
			}
		}
	}
	return true
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&endpoint.ProblemDetail{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}
