package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"offsider/internal/repo"
)

type auditRowView struct {
	ID      int64
	When    string
	Actor   string
	What    string
	Action  string
	Summary string
}

type auditView struct {
	Actor      string
	Entity     string
	Q          string
	Rows       []auditRowView
	Page       int
	TotalPages int
	PrevURL    string
	NextURL    string
}

func auditPageURL(page int, f repo.AuditFilters) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("actor", f.Actor)
	v.Set("entity", f.Entity)
	v.Set("q", f.Q)
	return "/audit?" + v.Encode()
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	params := r.URL.Query()
	page := atoiOr(params.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	f := repo.AuditFilters{
		Actor:  params.Get("actor"),
		Entity: params.Get("entity"),
		Q:      params.Get("q"),
	}
	logs, total, err := eng.Repo.ListAuditLogs(r.Context(), f, page)
	if err != nil {
		s.fail(w, err)
		return
	}
	view := auditView{Actor: f.Actor, Entity: f.Entity, Q: f.Q, Page: page}
	view.TotalPages = (total + repo.AuditPageSize - 1) / repo.AuditPageSize
	for _, a := range logs {
		what := a.Entity + "["
		if a.EntityID != nil {
			what += itoa64(*a.EntityID)
		}
		what += "]"
		view.Rows = append(view.Rows, auditRowView{
			ID:      a.ID,
			When:    displayTimeSec(a.CreatedAt),
			Actor:   a.Actor,
			What:    what,
			Action:  a.Action,
			Summary: a.Summary,
		})
	}
	if view.TotalPages > 1 {
		if page > 1 {
			view.PrevURL = auditPageURL(page-1, f)
		}
		if page < view.TotalPages {
			view.NextURL = auditPageURL(page+1, f)
		}
	}
	s.page(w, r, "Audit Log", "audit_list", view)
}

// handleAuditDetail returns the raw entry as JSON, mainly for copy-pasting
// into incident notes.
func (s *Server) handleAuditDetail(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	a, err := eng.Repo.GetAuditLog(r.Context(), idParam(r, "id"))
	w.Header().Set("Content-Type", "application/json")
	if errors.Is(err, repo.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}`))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	json.NewEncoder(w).Encode(struct {
		ID        int64  `json:"id"`
		CreatedAt string `json:"created_at"`
		Actor     string `json:"actor"`
		Entity    string `json:"entity"`
		EntityID  *int64 `json:"entity_id"`
		Action    string `json:"action"`
		Summary   string `json:"summary"`
	}{a.ID, a.CreatedAt, a.Actor, a.Entity, a.EntityID, a.Action, a.Summary})
}
