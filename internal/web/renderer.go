// Package web holds the HTML templates and static assets and renders them
// for echo.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"recipebook/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const layout = "base.html"

// Renderer implements echo.Renderer. Each page is parsed together with the
// shared layout so pages can define the same block names.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every embedded page template.
func NewRenderer() (*Renderer, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range names {
		page := path.Base(name)
		if page == layout {
			continue
		}
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/"+layout, name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Render executes the layout for the named page.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	return t.ExecuteTemplate(w, layout, data)
}

// StaticFS returns the embedded static assets rooted at static/.
func StaticFS() fs.FS {
	return echo.MustSubFS(staticFS, "static")
}

var funcs = template.FuncMap{
	"cuisine": func(c model.Cuisine) string { return c.Label() },
	"meal":    func(m model.Meal) string { return m.Label() },
	"date":    func(v interface{ Format(string) string }) string { return v.Format(model.DateLayout) },
	"stars": func(rating float64) string {
		full := int(rating + 0.5)
		return strings.Repeat("★", full) + strings.Repeat("☆", model.MaxRating-full)
	},
	"rating": func(rating float64) string { return fmt.Sprintf("%.1f", rating) },
	"seq": func(from, to int) []int {
		out := make([]int, 0, to-from+1)
		for i := from; i <= to; i++ {
			out = append(out, i)
		}
		return out
	},
}
