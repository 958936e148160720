// Package apitest provides typed test helpers for endpoint routers.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bjaus/endpoint"
)

// Client wraps an httptest.Server for convenient API testing.
type Client struct {
	Server *httptest.Server
	Header http.Header
}

// NewClient creates a test client from a router. Header is sent with
// every request.
func NewClient(t testing.TB, r *endpoint.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &Client{Server: srv, Header: make(http.Header)}
}

// Option adjusts a single request.
type Option func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) Option {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// Response holds a decoded API response.
type Response[T any] struct {
	Status  int
	Headers http.Header
	Body    *T
	Problem *endpoint.ProblemDetail
	Raw     *http.Response
}

// Get sends a typed GET request.
func Get[Resp any](t testing.TB, c *Client, path string, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodGet, path, nil, opts...)
}

// Post sends a typed POST request with a JSON body.
func Post[Req, Resp any](t testing.TB, c *Client, path string, body *Req, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPost, path, body, opts...)
}

// Put sends a typed PUT request with a JSON body.
func Put[Req, Resp any](t testing.TB, c *Client, path string, body *Req, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPut, path, body, opts...)
}

// Patch sends a typed PATCH request with a JSON body.
func Patch[Req, Resp any](t testing.TB, c *Client, path string, body *Req, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodPatch, path, body, opts...)
}

// Delete sends a typed DELETE request.
func Delete[Resp any](t testing.TB, c *Client, path string, opts ...Option) *Response[Resp] {
	t.Helper()
	return Do[Resp](t, c, http.MethodDelete, path, nil, opts...)
}

// Do sends a request with an optional JSON body. Problem responses are
// decoded into Problem, everything else into Body.
func Do[Resp any](t testing.TB, c *Client, method, path string, body any, opts ...Option) *Response[Resp] {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("apitest: marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.Server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("apitest: create request: %v", err)
	}

	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("apitest: execute request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("apitest: close body: %v", closeErr)
		}
	}()

	result := &Response[Resp]{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Raw:     resp,
	}

	if resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 {
		return result
	}

	dec := json.NewDecoder(resp.Body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/problem+json") {
		var pd endpoint.ProblemDetail
		if decErr := dec.Decode(&pd); decErr == nil {
			result.Problem = &pd
		}
		return result
	}

	var decoded Resp
	if decErr := dec.Decode(&decoded); decErr != nil && !errors.Is(decErr, io.EOF) {
		return result
	}
	result.Body = &decoded
	return result
}
