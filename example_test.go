package endpoint_test

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/endpoint"
)

type primitives struct {
	Active  bool      `json:"active"`
	Rank    int32     `json:"rank"`
	Total   int64     `json:"total"`
	Ratio   float32   `json:"ratio"`
	Score   float64   `json:"score"`
	Payload []byte    `json:"payload"`
	Created time.Time `json:"created"`
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
}

type withNested struct {
	Title   string            `json:"title"`
	Owner   *primitives       `json:"owner"`
	Items   []primitives      `json:"items"`
	Labels  map[string]string `json:"labels"`
	Timeout time.Duration     `json:"timeout"`
}

func fixedSynthesizer(schemas openapi3.Schemas) *endpoint.ExampleSynthesizer {
	return &endpoint.ExampleSynthesizer{
		Schemas: schemas,
		Now:     func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID:   func() string { return "00000000-0000-0000-0000-000000000001" },
	}
}

func TestExampleSynthesizer_roundTrip(t *testing.T) {
	t.Parallel()

	created := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	id := uuid.MustParse("7b1f5d0c-6a6e-4f43-9d0e-3f7c1e2a9b11")
	in := primitives{
		Active:  true,
		Rank:    7,
		Total:   1 << 40,
		Ratio:   0.25,
		Score:   3.5,
		Payload: []byte("hello"),
		Created: created,
		ID:      id,
		Name:    "Ada",
	}

	ref, schemas := endpoint.SchemaFor(reflect.TypeFor[primitives]())
	got := fixedSynthesizer(schemas).FromExample(ref, in)

	obj, ok := got.(map[string]any)
	require.True(t, ok)

	assert.Equal(t, map[string]any{
		"active":  true,
		"rank":    int32(7),
		"total":   int64(1 << 40),
		"ratio":   float32(0.25),
		"score":   3.5,
		"payload": []byte("hello"),
		"created": created,
		"id":      id,
		"name":    "Ada",
	}, obj)
}

func TestExampleSynthesizer_ignoredFieldsRemoved(t *testing.T) {
	t.Parallel()

	type req struct {
		ID     string `json:"id"`
		Tenant string `json:"tenant" header:"X-Tenant"`
		Note   string `json:"note"`
	}

	ref := endpoint.BodySchemaFor(reflect.TypeFor[req](), "/notes/{id}", "PUT")
	require.NotNil(t, ref)

	got := fixedSynthesizer(nil).FromExample(ref, req{ID: "n1", Tenant: "acme", Note: "hi"})
	got = endpoint.RemoveIgnored(got, []string{"id", "tenant"})
	assert.Equal(t, map[string]any{"note": "hi"}, got)
}

func TestExampleSynthesizer_nested(t *testing.T) {
	t.Parallel()

	ref, schemas := endpoint.SchemaFor(reflect.TypeFor[withNested]())
	s := fixedSynthesizer(schemas)

	got := s.FromExample(ref, withNested{
		Title:   "report",
		Items:   []primitives{{Name: "a"}, {Name: "b"}},
		Labels:  map[string]string{"env": "prod"},
		Timeout: 90 * time.Second,
	})
	obj, ok := got.(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "report", obj["title"])
	assert.Equal(t, "1m30s", obj["timeout"])
	assert.Equal(t, map[string]any{"env": "prod"}, obj["labels"])

	items, ok := obj["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[1].(map[string]any)["name"])

	owner, ok := obj["owner"].(map[string]any)
	require.True(t, ok, "nil members get placeholder defaults")
	assert.Equal(t, true, owner["active"])
	assert.Equal(t, int32(0), owner["rank"])
	assert.Equal(t, "", owner["name"])
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), owner["created"])
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", owner["id"])
}

func TestExampleSynthesizer_lookupByName(t *testing.T) {
	t.Parallel()

	schema := openapi3.NewObjectSchema().
		WithProperty("displayName", openapi3.NewStringSchema()).
		WithProperty("Count", openapi3.NewInt32Schema())
	ref := openapi3.NewSchemaRef("", schema)

	type untagged struct {
		DisplayName string
		Count       int
	}

	s := fixedSynthesizer(nil)

	tests := map[string]struct {
		example any
		want    any
	}{
		"pascal cased struct field": {
			example: untagged{DisplayName: "Grace", Count: 3},
			want:    map[string]any{"displayName": "Grace", "Count": int32(3)},
		},
		"map keyed by json name": {
			example: map[string]any{"displayName": "Linus", "Count": 1},
			want:    map[string]any{"displayName": "Linus", "Count": int32(1)},
		},
		"map keyed by pascal name": {
			example: map[string]any{"DisplayName": "Ken"},
			want:    map[string]any{"displayName": "Ken", "Count": int32(0)},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, s.FromExample(ref, tc.example))
		})
	}
}

func TestExampleSynthesizer_unsupported(t *testing.T) {
	t.Parallel()

	s := fixedSynthesizer(nil)

	tests := map[string]struct {
		schema  *openapi3.Schema
		example any
	}{
		"integer without format": {
			schema:  &openapi3.Schema{Type: "integer"},
			example: 5,
		},
		"number without format": {
			schema:  &openapi3.Schema{Type: "number"},
			example: 1.5,
		},
		"boolean from string": {
			schema:  openapi3.NewBoolSchema(),
			example: "yes",
		},
		"uint64 beyond int64": {
			schema:  openapi3.NewInt64Schema(),
			example: uint64(math.MaxUint64),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Nil(t, s.FromExample(openapi3.NewSchemaRef("", tc.schema), tc.example))
		})
	}

	assert.Nil(t, s.FromExample(openapi3.NewSchemaRef("#/components/schemas/Missing", nil), 1))
	assert.Equal(t, int64(math.MaxInt64), s.FromExample(openapi3.NewSchemaRef("", openapi3.NewInt64Schema()), uint64(math.MaxInt64)))
}

func TestExampleSynthesizer_Default(t *testing.T) {
	t.Parallel()

	ref, schemas := endpoint.SchemaFor(reflect.TypeFor[withNested]())
	got := fixedSynthesizer(schemas).Default(ref)

	obj, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0s", obj["timeout"])
	assert.Equal(t, "", obj["title"])

	items, ok := obj["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestExampleSynthesizer_depthBound(t *testing.T) {
	t.Parallel()

	ref, schemas := endpoint.SchemaFor(reflect.TypeFor[schemaNode]())
	s := fixedSynthesizer(schemas)
	s.MaxDepth = 3

	assert.NotPanics(t, func() {
		assert.NotNil(t, s.Default(ref))
	})
}

func TestRemoveIgnored(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		example any
		ignored []string
		want    any
	}{
		"object": {
			example: map[string]any{"Id": 1, "note": "x"},
			ignored: []string{"id"},
			want:    map[string]any{"note": "x"},
		},
		"array of objects": {
			example: []any{map[string]any{"id": 1, "note": "x"}, map[string]any{"id": 2}},
			ignored: []string{"ID"},
			want:    []any{map[string]any{"note": "x"}, map[string]any{}},
		},
		"nothing ignored": {
			example: map[string]any{"id": 1},
			want:    map[string]any{"id": 1},
		},
		"scalar untouched": {
			example: "text",
			ignored: []string{"id"},
			want:    "text",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, endpoint.RemoveIgnored(tc.example, tc.ignored))
		})
	}
}

func TestPascalCase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DisplayName", endpoint.PascalCase("displayName"))
	assert.Equal(t, "ID", endpoint.PascalCase("iD"))
}
