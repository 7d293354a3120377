package server

import (
	"errors"
	"net/http"

	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

type handoverRowView struct {
	ID       int64
	Priority int
	Chip     string
	Title    string
	Body     string
	Status   string
	Toggle   string
}

func (s *Server) handleHandoverList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	notes, err := eng.Repo.ListHandoverNotes(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	rows := make([]handoverRowView, 0, len(notes))
	for _, n := range notes {
		row := handoverRowView{
			ID:       n.ID,
			Priority: int(n.Priority),
			Chip:     n.Priority.Chip(),
			Title:    n.Title,
			Body:     clipText(n.Body, 160),
			Status:   "open",
			Toggle:   "Close",
		}
		if n.IsClosed {
			row.Status, row.Toggle = "closed", "Reopen"
		}
		rows = append(rows, row)
	}
	s.page(w, r, "Handover", "handover_list", struct{ Rows []handoverRowView }{rows})
}

// clipText keeps the first limit runes and marks the cut, unlike previewText
// which fits the ellipsis inside the limit.
func clipText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

func (s *Server) handleHandoverCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateHandoverNote(r.Context(), engine.HandoverCreateOptions{
		Title:    r.FormValue("title"),
		Body:     r.FormValue("body"),
		Priority: domain.ParsePriority(r.FormValue("priority")),
		Author:   sess.Actor,
		Actor:    sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/handover", http.StatusSeeOther)
}

func (s *Server) handleHandoverToggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.ToggleHandover(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/handover", http.StatusSeeOther)
}

func (s *Server) handleHandoverDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	err = eng.DeleteHandoverNote(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/handover", http.StatusSeeOther)
}
