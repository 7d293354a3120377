package server

import (
	"net/http"
	"strings"
	"time"

	"offsider/internal/engine"
)

// formTimestamp converts a datetime-local value to RFC3339. Blank or
// unparseable input becomes nil rather than an error, matching how crews
// actually fill these forms.
func formTimestamp(v string) *string {
	v = strings.TrimSpace(strings.ReplaceAll(v, "T", " "))
	if v == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			s := t.UTC().Format(time.RFC3339)
			return &s
		}
	}
	return nil
}

type travelRowView struct {
	ID    int64
	Who   string
	Route string
	Start string
	Notes string
}

func (s *Server) handleTravelList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	logs, err := eng.Repo.ListTravelLogs(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	rows := make([]travelRowView, 0, len(logs))
	for _, t := range logs {
		row := travelRowView{
			ID:    t.ID,
			Route: t.FromLocation + " → " + t.ToLocation,
			Notes: t.Notes,
		}
		if t.Person != nil {
			row.Who = *t.Person
		}
		if t.StartedAt != nil {
			row.Start = displayTime(*t.StartedAt)
		}
		rows = append(rows, row)
	}
	s.page(w, r, "Travel", "travel_list", struct{ Rows []travelRowView }{rows})
}

func (s *Server) handleTravelNewForm(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "New Travel Log", "travel_form", nil)
}

func (s *Server) handleTravelCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateTravelLog(r.Context(), engine.TravelCreateOptions{
		Person:       r.FormValue("person"),
		FromLocation: r.FormValue("from_location"),
		ToLocation:   r.FormValue("to_location"),
		StartedAt:    formTimestamp(r.FormValue("started_at")),
		EndedAt:      formTimestamp(r.FormValue("ended_at")),
		Notes:        r.FormValue("notes"),
		Actor:        sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/travel", http.StatusSeeOther)
}

type usageRowView struct {
	ID    int64
	Item  string
	Qty   string
	Notes string
}

type usagePageView struct {
	Options []stockOptionView
	Rows    []usageRowView
}

func (s *Server) handleUsageList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	logs, err := eng.Repo.ListUsageLogs(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	stock, err := eng.Repo.ListStockItems(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	view := usagePageView{}
	for _, it := range stock {
		view.Options = append(view.Options, stockOptionView{ID: it.ID, Label: it.Name + " (" + it.Unit + ")"})
	}
	for _, u := range logs {
		view.Rows = append(view.Rows, usageRowView{
			ID:    u.ID,
			Item:  u.ItemName,
			Qty:   trimFloat(u.Qty) + " " + u.Unit,
			Notes: u.Notes,
		})
	}
	s.page(w, r, "Daily Usage", "usage_list", view)
}

func (s *Server) handleUsageCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateUsageLog(r.Context(), engine.UsageCreateOptions{
		StockItemID: optionalID(r.FormValue("stock_item_id")),
		ItemName:    r.FormValue("item_name"),
		Qty:         atofOr(r.FormValue("qty"), 0),
		Unit:        r.FormValue("unit"),
		Notes:       r.FormValue("notes"),
		Actor:       sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/usage", http.StatusSeeOther)
}
