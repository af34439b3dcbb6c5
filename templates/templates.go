// ABOUTME: Engine holds the home, post, and 404 page templates, each loaded from an override file or the embedded default.
// ABOUTME: Templates are parsed and trial-rendered at construction so a broken template stops startup instead of a request.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"os"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/2389-research/kes/posts"
)

//go:embed defaults/*.html
var defaultsFS embed.FS

// Template names, also the embedded default file stems.
const (
	Home     = "home"
	Post     = "post"
	NotFound = "404"
)

// Paths names optional override files. An empty path selects the embedded default.
type Paths struct {
	Home     string
	Post     string
	NotFound string
}

// HomePage is the data passed to the home template.
type HomePage struct {
	Posts []posts.Item
}

// PostPage is the data passed to the post template. Body is already HTML.
type PostPage struct {
	Title string
	Body  template.HTML
}

// Engine renders the three page templates. It is immutable after New and
// safe for concurrent use.
type Engine struct {
	templates map[string]*template.Template
}

// funcs is available to every template, overrides included.
var funcs = template.FuncMap{
	// pathEscape makes a post key safe as one URL path segment.
	"pathEscape": url.PathEscape,
}

// sample data for the startup trial render.
var validationData = map[string]any{
	Home: HomePage{Posts: []posts.Item{{Key: "sample-post", Title: "Sample Post"}}},
	Post: PostPage{Title: "Sample Post", Body: template.HTML("<p>sample</p>")},
	// The 404 page gets an empty context.
	NotFound: struct{}{},
}

// New loads each template from its override path, falling back to the
// embedded default when the override cannot be read. Any template that
// fails to parse or to render sample data is an error.
func New(paths Paths, logger *zap.Logger) (*Engine, error) {
	e := &Engine{templates: make(map[string]*template.Template, 3)}

	slots := []struct {
		name string
		path string
	}{
		{Home, paths.Home},
		{Post, paths.Post},
		{NotFound, paths.NotFound},
	}

	for _, slot := range slots {
		src, err := loadSource(slot.name, slot.path, logger)
		if err != nil {
			return nil, err
		}

		t, err := template.New(slot.name).Option("missingkey=error").Funcs(funcs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", slot.name, err)
		}
		if err := t.Execute(io.Discard, validationData[slot.name]); err != nil {
			return nil, fmt.Errorf("validating template %s: %w", slot.name, err)
		}
		e.templates[slot.name] = t
	}

	return e, nil
}

// loadSource returns the override contents for a slot, or the embedded
// default when no override is set or it cannot be read as UTF-8 text.
func loadSource(name, path string, logger *zap.Logger) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil && !utf8.Valid(data) {
			err = fmt.Errorf("%s is not valid UTF-8", path)
		}
		if err == nil {
			return string(data), nil
		}
		logger.Error("could not load template, using default",
			zap.String("template", name),
			zap.String("path", path),
			zap.Error(err))
	}

	data, err := defaultsFS.ReadFile("defaults/" + name + ".html")
	if err != nil {
		return "", fmt.Errorf("reading default template %s: %w", name, err)
	}
	return string(data), nil
}

// RenderHome renders the listing page.
func (e *Engine) RenderHome(items []posts.Item) (string, error) {
	return e.render(Home, HomePage{Posts: items})
}

// RenderPost wraps an HTML body in the post template. It satisfies
// posts.PageRenderer.
func (e *Engine) RenderPost(title, bodyHTML string) (string, error) {
	return e.render(Post, PostPage{Title: title, Body: template.HTML(bodyHTML)})
}

// RenderNotFound renders the 404 page.
func (e *Engine) RenderNotFound() (string, error) {
	return e.render(NotFound, struct{}{})
}

// RenderTo executes the named template and writes the result to w.
func (e *Engine) RenderTo(w io.Writer, name string, data any) error {
	t, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.Execute(w, data)
}

func (e *Engine) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := e.RenderTo(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
