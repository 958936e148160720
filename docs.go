package endpoint

import (
	"html/template"
	"net/http"
	"sort"
)

// DocsOption configures the docs UI.
type DocsOption func(*docsConfig)

type docsConfig struct {
	title   string
	specURL string
	layout  string
}

// WithDocsTitle sets the page title for the docs UI.
func WithDocsTitle(title string) DocsOption {
	return func(c *docsConfig) {
		c.title = title
	}
}

// WithDocsSpecURL points the docs UI at a document served elsewhere. By
// default it uses the path given to ServeSpec, or /openapi.json.
func WithDocsSpecURL(url string) DocsOption {
	return func(c *docsConfig) {
		c.specURL = url
	}
}

// WithDocsLayout selects the Elements layout, "sidebar" (default) or
// "stacked".
func WithDocsLayout(layout string) DocsOption {
	return func(c *docsConfig) {
		c.layout = layout
	}
}

type docsPage struct {
	Title   string
	SpecURL string
	Layout  string
	Groups  []docsGroup
}

// docsGroup lists the operations sharing a first tag.
type docsGroup struct {
	Tag         string
	Description string
	Operations  []docsOperation
}

type docsOperation struct {
	Method     string
	Path       string
	Name       string
	Deprecated bool
}

var docsTemplate = template.Must(template.New("docs").Parse(docsHTML))

// ServeDocs serves an interactive API reference at path. The page renders
// Stoplight Elements over the router's OpenAPI document and carries a
// plain index of the registered endpoints, grouped by tag, for clients
// without JavaScript. Endpoints registered after ServeDocs are listed.
func (r *Router) ServeDocs(path string, opts ...DocsOption) {
	cfg := &docsConfig{title: r.title, layout: "sidebar"}
	for _, opt := range opts {
		opt(cfg)
	}

	r.mux.HandleFunc("GET "+path, func(w http.ResponseWriter, req *http.Request) {
		page := docsPage{
			Title:   cfg.title,
			SpecURL: cfg.specURL,
			Layout:  cfg.layout,
			Groups:  r.docsGroups(),
		}
		if page.SpecURL == "" {
			page.SpecURL = r.docsSpecURL()
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := docsTemplate.Execute(w, page); err != nil {
			r.logger.ErrorContext(req.Context(), "render docs", "error", err)
		}
	})
}

func (r *Router) docsSpecURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.specPath != "" {
		return r.specPath
	}
	return "/openapi.json"
}

func (r *Router) docsGroups() []docsGroup {
	byTag := make(map[string]*docsGroup)
	for _, d := range r.Definitions() {
		tag := "default"
		if len(d.Tags) > 0 {
			tag = d.Tags[0]
		}
		g, ok := byTag[tag]
		if !ok {
			g = &docsGroup{Tag: tag, Description: r.tagDescs[tag]}
			byTag[tag] = g
		}
		for _, route := range d.Routes {
			for _, verb := range d.Verbs {
				g.Operations = append(g.Operations, docsOperation{
					Method:     verb,
					Path:       toOpenAPIPath(route),
					Name:       d.EndpointName(),
					Deprecated: d.Deprecated,
				})
			}
		}
	}

	groups := make([]docsGroup, 0, len(byTag))
	for _, g := range byTag {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Tag < groups[j].Tag })
	return groups
}

const docsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/@stoplight/elements/styles.min.css">
  <script src="https://unpkg.com/@stoplight/elements/web-components.min.js"></script>
</head>
<body>
  <elements-api
    apiDescriptionUrl="{{.SpecURL}}"
    router="hash"
    layout="{{.Layout}}"
  ></elements-api>
  <noscript>
    <h1>{{.Title}}</h1>
    <p><a href="{{.SpecURL}}">OpenAPI document</a></p>
    {{- range .Groups}}
    <section id="tag-{{.Tag}}">
      <h2>{{.Tag}}</h2>
      {{- with .Description}}
      <p>{{.}}</p>
      {{- end}}
      <ul>
        {{- range .Operations}}
        <li>{{if .Deprecated}}<del>{{end}}<code>{{.Method}} {{.Path}}</code> {{.Name}}{{if .Deprecated}}</del>{{end}}</li>
        {{- end}}
      </ul>
    </section>
    {{- end}}
  </noscript>
</body>
</html>`
