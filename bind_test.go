package endpoint_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/endpoint"
)

type bindTarget struct {
	endpoint.RawRequest

	ID      int           `json:"id"`
	Tenant  string        `json:"tenant" header:"X-Tenant"`
	Subject string        `json:"subject" claim:"sub"`
	Region  string        `json:"region" bind:"region"`
	Verbose *bool         `json:"verbose" query:"verbose"`
	Tags    []string      `json:"tags" query:"tag"`
	Wait    time.Duration `json:"wait" query:"wait"`
	Ref     uuid.UUID     `json:"ref" query:"ref"`
	Note    string        `json:"note"`
}

func TestBind(t *testing.T) {
	t.Parallel()

	ref := uuid.MustParse("0d1c2b3a-4f5e-4d6c-8b7a-9f8e7d6c5b4a")
	body := `{"note":"hello","tenant":"injected","subject":"injected","id":99}`
	r := httptest.NewRequest(http.MethodPut,
		"/things/42?verbose=true&tag=a&tag=b&wait=2s&ref="+ref.String()+"&region=eu",
		strings.NewReader(body))
	r.SetPathValue("id", "42")
	r.Header.Set("X-Tenant", "acme")
	r = r.WithContext(endpoint.WithClaims(r.Context(), endpoint.Claims{"sub": {"user-1"}}))

	got, failures := endpoint.Bind[bindTarget](r, "/things/{id}", http.MethodPut)
	require.Empty(t, failures)

	assert.Equal(t, 42, got.ID)
	assert.Equal(t, "acme", got.Tenant, "header wins over body")
	assert.Equal(t, "user-1", got.Subject, "claim wins over body")
	assert.Equal(t, "eu", got.Region)
	require.NotNil(t, got.Verbose)
	assert.True(t, *got.Verbose)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, 2*time.Second, got.Wait)
	assert.Equal(t, ref, got.Ref)
	assert.Equal(t, "hello", got.Note)
	assert.Same(t, r, got.Request)
}

func TestBind_failures(t *testing.T) {
	t.Parallel()

	type required struct {
		Tenant string `json:"tenant" header:"X-Tenant,required"`
		Count  int    `json:"count" query:"count"`
	}

	tests := map[string]struct {
		target string
		header map[string]string
		want   []string
	}{
		"missing required header": {
			target: "/items?count=1",
			want:   []string{"X-Tenant"},
		},
		"unparsable query": {
			target: "/items?count=many",
			header: map[string]string{"X-Tenant": "acme"},
			want:   []string{"count"},
		},
		"ok": {
			target: "/items?count=3",
			header: map[string]string{"X-Tenant": "acme"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}

			_, failures := endpoint.Bind[required](r, "/items", http.MethodGet)
			var fields []string
			for _, f := range failures {
				fields = append(fields, f.Field)
			}
			assert.Equal(t, tc.want, fields)
		})
	}
}

func TestBind_queryFailureWrapsSentinel(t *testing.T) {
	t.Parallel()

	type req struct {
		Count int `query:"count"`
	}

	r := httptest.NewRequest(http.MethodGet, "/items?count=x", nil)
	_, failures := endpoint.Bind[req](r, "/items", http.MethodGet)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Message, endpoint.ErrBindQuery.Error())
}

func TestBind_malformedBody(t *testing.T) {
	t.Parallel()

	type req struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"name":`))
	_, failures := endpoint.Bind[req](r, "/items", http.MethodPost)
	require.Len(t, failures, 1)
	assert.Equal(t, "body", failures[0].Field)
	assert.Contains(t, failures[0].Message, endpoint.ErrBindBody.Error())
}

func TestBind_void(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/health", nil)
	got, failures := endpoint.Bind[endpoint.Void](r, "/health", http.MethodGet)
	assert.Empty(t, failures)
	assert.NotNil(t, got)
}
