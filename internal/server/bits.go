package server

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

type bitRowView struct {
	ID       int64
	Serial   string
	Status   string
	Expected string
	Used     string
	Shroud   string
	Notes    string
}

type bitListView struct {
	Rows []bitRowView
}

func fmtMeters(f float64) string {
	if f == 0 {
		return ""
	}
	return trimFloat(f)
}

func (s *Server) handleBitList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	bits, err := eng.Repo.ListBits(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	shrouds, err := eng.Repo.ListShrouds(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	shroudName := make(map[int64]string, len(shrouds))
	for _, sh := range shrouds {
		shroudName[sh.ID] = sh.Name
	}

	rows := make([]bitRowView, 0, len(bits))
	for _, b := range bits {
		row := bitRowView{
			ID:     b.ID,
			Serial: b.Serial,
			Status: b.Status,
			Used:   fmtMeters(b.LifeMetersUsed),
			Notes:  previewText(strings.TrimSpace(b.Notes), 60),
		}
		if b.LifeMetersExpected != nil {
			row.Expected = fmtMeters(*b.LifeMetersExpected)
		}
		if b.ShroudID != nil {
			row.Shroud = shroudName[*b.ShroudID]
		}
		rows = append(rows, row)
	}
	s.page(w, r, "Bits", "bit_list", bitListView{Rows: rows})
}

type shroudOptionView struct {
	ID   int64
	Name string
}

type bitFormView struct {
	Statuses []string
	Shrouds  []shroudOptionView
}

func (s *Server) handleBitNewForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	shrouds, err := eng.Repo.ListShrouds(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	view := bitFormView{Statuses: domain.BitStatuses}
	for _, sh := range shrouds {
		view.Shrouds = append(view.Shrouds, shroudOptionView{ID: sh.ID, Name: sh.Name})
	}
	s.page(w, r, "New Bit", "bit_form", view)
}

func (s *Server) handleBitCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	var expected *float64
	if f := atofOr(r.FormValue("life_expected"), 0); f != 0 {
		expected = &f
	}
	_, err = eng.CreateBit(r.Context(), engine.BitCreateOptions{
		Serial:             r.FormValue("serial"),
		Status:             r.FormValue("status"),
		LifeMetersExpected: expected,
		LifeMetersUsed:     atofOr(r.FormValue("life_used"), 0),
		ShroudID:           optionalID(r.FormValue("shroud_id")),
		Notes:              r.FormValue("notes"),
		Actor:              sess.Actor,
	})
	switch {
	case errors.Is(err, engine.ErrInvalidStatus):
		http.Error(w, "Invalid status", http.StatusUnprocessableEntity)
	case err != nil:
		s.fail(w, err)
	default:
		http.Redirect(w, r, "/bits", http.StatusSeeOther)
	}
}

type bitDetailView struct {
	ID       int64
	Serial   string
	Status   string
	Expected string
	Used     string
	Shroud   string
	Notes    template.HTML
}

func (s *Server) handleBitDetail(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	b, err := eng.Repo.GetBit(ctx, idParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Redirect(w, r, "/bits", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	view := bitDetailView{
		ID:       b.ID,
		Serial:   b.Serial,
		Status:   b.Status,
		Expected: "—",
		Used:     trimFloat(b.LifeMetersUsed),
		Shroud:   "—",
		Notes:    multiline(b.Notes),
	}
	if b.LifeMetersExpected != nil && *b.LifeMetersExpected != 0 {
		view.Expected = trimFloat(*b.LifeMetersExpected)
	}
	if b.ShroudID != nil {
		if sh, err := eng.Repo.GetShroud(ctx, *b.ShroudID); err == nil {
			view.Shroud = sh.Name
		}
	}
	s.page(w, r, "Bit #"+itoa64(b.ID), "bit_detail", view)
}

// multiline escapes free text and keeps its line breaks.
func multiline(s string) template.HTML {
	if s == "" {
		return ""
	}
	esc := template.HTMLEscapeString(s)
	return template.HTML(strings.ReplaceAll(esc, "\n", "<br>"))
}

type shroudRowView struct {
	ID        int64
	Name      string
	Condition string
	Notes     string
}

type shroudListView struct {
	Rows []shroudRowView
}

func (s *Server) handleShroudList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	shrouds, err := eng.Repo.ListShrouds(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	rows := make([]shroudRowView, 0, len(shrouds))
	for _, sh := range shrouds {
		rows = append(rows, shroudRowView{ID: sh.ID, Name: sh.Name, Condition: sh.Condition, Notes: sh.Notes})
	}
	s.page(w, r, "Shrouds", "shroud_list", shroudListView{Rows: rows})
}

func (s *Server) handleShroudNewForm(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "New Shroud", "shroud_form", struct{ Conditions []string }{domain.ShroudConditions})
}

func (s *Server) handleShroudCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateShroud(r.Context(), engine.ShroudCreateOptions{
		Name:      r.FormValue("name"),
		Condition: r.FormValue("condition"),
		Notes:     r.FormValue("notes"),
		Actor:     sess.Actor,
	})
	switch {
	case errors.Is(err, engine.ErrInvalidStatus):
		http.Error(w, "Invalid condition", http.StatusUnprocessableEntity)
	case err != nil:
		s.fail(w, err)
	default:
		http.Redirect(w, r, "/shrouds", http.StatusSeeOther)
	}
}
