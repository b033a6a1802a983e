// Package render turns named templates and a variable map into
// subject/HTML/text email parts using fixed {{key}} placeholders.
package render

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*
var templatesFS embed.FS

// Vars are the values substituted into a template.
type Vars map[string]any

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

type manifest struct {
	Templates map[string]struct {
		Required []string `yaml:"required"`
	} `yaml:"templates"`
}

type template struct {
	name     string
	required []string
	subject  compiled
	html     compiled
	text     compiled
}

// Renderer renders compiled templates. It is safe for concurrent use.
type Renderer struct {
	templates map[string]*template
	logger    *slog.Logger
}

// NewRenderer loads and compiles the embedded templates.
func NewRenderer() (*Renderer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("open templates: %w", err)
	}
	return NewRendererFS(sub)
}

// NewRendererFS loads templates from fsys, which must contain manifest.yaml
// and <name>.subject, <name>.html and <name>.txt for each template.
func NewRendererFS(fsys fs.FS) (*Renderer, error) {
	raw, err := fs.ReadFile(fsys, "manifest.yaml")
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	r := &Renderer{
		templates: make(map[string]*template, len(m.Templates)),
		logger:    slog.Default().With("component", "renderer"),
	}

	for name, def := range m.Templates {
		t := &template{name: name, required: def.Required}

		parts := []struct {
			ext  string
			dest *compiled
		}{
			{"subject", &t.subject},
			{"html", &t.html},
			{"txt", &t.text},
		}
		for _, p := range parts {
			filename := path.Clean(name + "." + p.ext)
			content, err := fs.ReadFile(fsys, filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}
			src := string(content)
			if p.ext == "subject" {
				src = strings.TrimSpace(src)
			}
			*p.dest = compile(src)
		}

		r.templates[name] = t
	}

	return r, nil
}

// Names returns the loaded template names in sorted order.
func (r *Renderer) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render renders the named template. Missing required variables fail the
// render; placeholders that are neither required nor supplied are logged and
// left in the output unchanged.
func (r *Renderer) Render(name string, vars Vars) (Message, error) {
	t, ok := r.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	values := make(map[string]string, len(vars))
	for k, v := range vars {
		values[k] = stripUnsafe(stringify(v))
	}

	var missing []string
	for _, key := range t.required {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Message{}, &MissingVariablesError{Template: name, Missing: missing}
	}

	subject, unresolvedSubject := t.subject.execute(func(key string) (string, bool) {
		v, ok := values[key]
		return sanitizeHeaderValue(v), ok
	})
	body, unresolvedHTML := t.html.execute(func(key string) (string, bool) {
		v, ok := values[key]
		return htmlValue(key, v), ok
	})
	text, unresolvedText := t.text.execute(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})

	if unresolved := union(unresolvedSubject, unresolvedHTML, unresolvedText); len(unresolved) > 0 {
		r.logger.Warn("template variables not provided",
			"template", name,
			"variables", unresolved,
		)
	}

	return Message{
		Subject: sanitizeHeaderValue(subject),
		HTML:    body,
		Text:    text,
	}, nil
}

func union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, k := range l {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
