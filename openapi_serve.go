package endpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// ServeSpec registers a GET handler at the given path that serves
// the OpenAPI spec as JSON.
func (r *Router) ServeSpec(pattern string) {
	r.mu.Lock()
	if r.specPath == "" {
		r.specPath = pattern
	}
	r.mu.Unlock()
	r.serveDocument(pattern, "application/json", func(w io.Writer, doc *openapi3.T) error {
		return json.NewEncoder(w).Encode(doc)
	})
}

// ServeSpecYAML registers a GET handler at the given path that serves
// the OpenAPI spec as YAML.
func (r *Router) ServeSpecYAML(pattern string) {
	r.serveDocument(pattern, "application/yaml", encodeYAML)
}

// ServeSpecV2 registers a GET handler at the given path that serves the
// spec converted to Swagger 2.0 JSON.
func (r *Router) ServeSpecV2(pattern string) {
	r.serveDocument(pattern, "application/json", func(w io.Writer, doc *openapi3.T) error {
		v2, err := openapi2conv.FromV3(doc)
		if err != nil {
			return fmt.Errorf("convert to swagger 2: %w", err)
		}
		return json.NewEncoder(w).Encode(v2)
	})
}

func (r *Router) serveDocument(pattern, contentType string, encode func(io.Writer, *openapi3.T) error) {
	r.mux.HandleFunc("GET "+pattern, func(w http.ResponseWriter, req *http.Request) {
		doc, err := r.Document()
		if err != nil {
			r.logger.ErrorContext(req.Context(), "generate api document", "error", err, "path", pattern)
			writeErrorResponse(w, Error(http.StatusInternalServerError, "api document unavailable"))
			return
		}
		w.Header().Set("Content-Type", contentType)
		if err := encode(w, doc); err != nil {
			r.logger.ErrorContext(req.Context(), "encode api document", "error", err, "path", pattern)
		}
	})
}

// WriteSpec writes the OpenAPI spec as indented JSON to w.
func (r *Router) WriteSpec(w io.Writer) error {
	doc, err := r.Document()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteSpecYAML writes the OpenAPI spec as YAML to w.
func (r *Router) WriteSpecYAML(w io.Writer) error {
	doc, err := r.Document()
	if err != nil {
		return err
	}
	return encodeYAML(w, doc)
}

// encodeYAML goes through the document's JSON form so its custom
// marshalers and extensions are honoured.
func encodeYAML(w io.Writer, doc *openapi3.T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal api document: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("convert api document: %w", err)
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
