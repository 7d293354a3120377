package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"offsider/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// displayTime renders a stored RFC3339 timestamp for list pages. Values that
// do not parse are shown as stored.
func displayTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02 15:04")
}

func displayTimeSec(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02 15:04:05")
}

// previewText truncates long free text for table cells, keeping limit-3
// characters plus an ellipsis when anything was cut.
func previewText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "…"
}

func newTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"chip":    domain.Priority.Chip,
		"plabel":  domain.Priority.Label,
		"when":    displayTime,
		"whenSec": displayTimeSec,
		"preview": previewText,
		"deref": func(p *string) string {
			if p == nil {
				return ""
			}
			return *p
		},
	}
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

type pageData struct {
	Title    string
	RigTitle string
	Actor    string
	Body     template.HTML
}

// page renders a named body template inside the shared chrome (stylesheet,
// title heading, rig/crew line, footer).
func (s *Server) page(w http.ResponseWriter, r *http.Request, title, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.fail(w, fmt.Errorf("render %s: %w", name, err))
		return
	}
	sess := sessionFrom(r.Context())
	s.render(w, http.StatusOK, "layout", pageData{
		Title:    title,
		RigTitle: sess.RigTitle,
		Actor:    sess.Actor,
		Body:     template.HTML(buf.String()),
	})
}

// render executes a full-document template. Auth pages and the dashboard
// carry their own chrome and skip the layout.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.fail(w, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log().Printf("[server] %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
