package endpoint_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bjaus/endpoint"
)

func newDocumentedRouter() *endpoint.Router {
	r := endpoint.New(endpoint.WithTitle("Users"), endpoint.WithAPIVersion("1.0.0"))
	endpoint.Put(r, "/users/{id}", updateProfile, endpoint.WithTags("users"))
	r.ServeSpec("/openapi.json")
	r.ServeSpecYAML("/openapi.yaml")
	r.ServeSpecV2("/swagger.json")
	r.ServeDocs("/docs", endpoint.WithDocsTitle("Users API"))
	return r
}

func TestServeSpec(t *testing.T) {
	t.Parallel()

	r := newDocumentedRouter()

	tests := map[string]struct {
		target      string
		contentType string
		decode      func(t *testing.T, body []byte) map[string]any
		versionKey  string
		version     string
	}{
		"json": {
			target:      "/openapi.json",
			contentType: "application/json",
			decode:      decodeJSON,
			versionKey:  "openapi",
			version:     "3.0.3",
		},
		"yaml": {
			target:      "/openapi.yaml",
			contentType: "application/yaml",
			decode:      decodeYAML,
			versionKey:  "openapi",
			version:     "3.0.3",
		},
		"swagger 2": {
			target:      "/swagger.json",
			contentType: "application/json",
			decode:      decodeJSON,
			versionKey:  "swagger",
			version:     "2.0",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.target, nil))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.contentType, w.Header().Get("Content-Type"))

			doc := tc.decode(t, w.Body.Bytes())
			assert.Equal(t, tc.version, doc[tc.versionKey])

			paths, ok := doc["paths"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, paths, "/users/{id}")
		})
	}
}

func decodeJSON(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	return doc
}

func decodeYAML(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(body, &doc))
	return doc
}

func TestWriteSpecYAML_blockStyle(t *testing.T) {
	t.Parallel()

	r := newDocumentedRouter()

	var buf bytes.Buffer
	require.NoError(t, r.WriteSpecYAML(&buf))

	out := buf.String()
	assert.Contains(t, out, "openapi: 3.0.3\n")
	assert.Contains(t, out, "title: Users\n")
	assert.NotContains(t, out, "{\"", "no flow style mappings")
}

func TestWriteSpec(t *testing.T) {
	t.Parallel()

	r := newDocumentedRouter()

	var buf bytes.Buffer
	require.NoError(t, r.WriteSpec(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \""), "indented json")

	doc := decodeJSON(t, buf.Bytes())
	info, ok := doc["info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Users", info["title"])
}

func TestServeSpec_documentError(t *testing.T) {
	t.Parallel()

	r := endpoint.New(endpoint.WithSecurityScheme("ApiKey", apiKeyScheme()))
	endpoint.Raw(r, http.MethodGet, "/legacy", func(w http.ResponseWriter, _ *http.Request) {}, endpoint.OperationInfo{
		Authorizations: []endpoint.Authorization{{Roles: []string{"Admin"}}},
	})
	r.ServeSpec("/openapi.json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var buf bytes.Buffer
	assert.ErrorIs(t, r.WriteSpec(&buf), endpoint.ErrMissingEndpointDescription)
}

func TestServeDocs(t *testing.T) {
	t.Parallel()

	r := newDocumentedRouter()
	endpoint.Get(r, "/ping", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		return &ping{}, nil
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<title>Users API</title>")
	assert.Contains(t, w.Body.String(), `apiDescriptionUrl="/openapi.json"`)

	doc, err := r.Document()
	require.NoError(t, err)
	assert.NotContains(t, doc.Paths, "/docs", "documentation routes are not documented")
	assert.Contains(t, doc.Paths, "/ping")
}

func TestServeDocs_index(t *testing.T) {
	t.Parallel()

	r := endpoint.New(
		endpoint.WithTitle("Users"),
		endpoint.WithTagDescriptions(map[string]string{"users": "Manage tenant users"}),
	)
	r.ServeSpec("/api/openapi.json")
	r.ServeDocs("/docs", endpoint.WithDocsLayout("stacked"))

	endpoint.Get(r, "/users", func(_ context.Context, _ *userQuery) (*[]userView, error) {
		return &[]userView{}, nil
	}, endpoint.WithSummary("List users"), endpoint.WithTags("users"))
	endpoint.Handle(r, http.MethodDelete, "/users/{id}", func(_ context.Context, _ *struct {
		ID string `json:"id"`
	}) error {
		return nil
	}, endpoint.WithSummary("Purge user"), endpoint.WithTags("users"), endpoint.WithDeprecated())
	endpoint.Get(r, "/ping", func(_ context.Context, _ *endpoint.Void) (*ping, error) {
		return &ping{}, nil
	}, endpoint.WithSummary("Ping"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "<title>Users</title>")
	assert.Contains(t, body, `apiDescriptionUrl="/api/openapi.json"`)
	assert.Contains(t, body, `layout="stacked"`)
	assert.Contains(t, body, `<section id="tag-users">`)
	assert.Contains(t, body, "Manage tenant users")
	assert.Contains(t, body, "<code>GET /users</code> List users")
	assert.Contains(t, body, "<del><code>DELETE /users/{id}</code> Purge user</del>")
	assert.Contains(t, body, `<section id="tag-default">`)
	assert.Contains(t, body, "<code>GET /ping</code> Ping")
	assert.Less(t, strings.Index(body, "tag-default"), strings.Index(body, "tag-users"))
}

func TestServeDocs_specURLOverride(t *testing.T) {
	t.Parallel()

	r := endpoint.New()
	r.ServeSpec("/openapi.json")
	r.ServeDocs("/docs", endpoint.WithDocsSpecURL("https://api.example.com/openapi.json"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `apiDescriptionUrl="https://api.example.com/openapi.json"`)
	assert.Contains(t, w.Body.String(), `layout="sidebar"`)
}
