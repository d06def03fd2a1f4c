package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page template names.
const (
	PageLogin          = "login"
	PageDashboard      = "dashboard"
	PageHallOfFame     = "hall_of_fame"
	PageChallenges     = "challenges"
	PageError          = "error"
	PageCallbackBridge = "callback"
)

var pageNames = []string{PageLogin, PageDashboard, PageHallOfFame, PageChallenges, PageError, PageCallbackBridge}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templatesFS,
			"templates/base.html",
			"templates/sidebar.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render writes page with the given status. The page is rendered into a
// buffer first so a template failure never produces a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

var funcs = template.FuncMap{
	"monthDay": func(t time.Time) string {
		return fmt.Sprintf("%d월 %d일", int(t.Month()), t.Day())
	},
	"dateTime": func(t time.Time) string {
		return t.Format("2006.01.02 15:04")
	},
	"percent": func(done, total int) int {
		if total <= 0 {
			return 0
		}
		return done * 100 / total
	},
}
