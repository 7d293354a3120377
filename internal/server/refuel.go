package server

import (
	"fmt"
	"net/http"
	"strings"

	"offsider/internal/engine"
)

type refuelRowView struct {
	ID     int64
	Fuel   string
	Litres string
	When   string
	Notes  string
}

func (s *Server) handleRefuelList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	logs, err := eng.Repo.ListRefuelLogs(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	rows := make([]refuelRowView, 0, len(logs))
	for _, l := range logs {
		row := refuelRowView{
			ID:   l.ID,
			Fuel: l.FuelType,
			When: l.BeforeAfterNote,
		}
		if l.AmountLitres != 0 {
			row.Litres = trimFloat(l.AmountLitres)
		}
		var extra []string
		if l.TankCapacityL != nil && *l.TankCapacityL != 0 {
			extra = append(extra, fmt.Sprintf("Cap %.0fL", *l.TankCapacityL))
		}
		if l.TargetPercent != nil {
			extra = append(extra, fmt.Sprintf("Target %d%%", *l.TargetPercent))
		}
		if l.EstAddedLitres != nil && *l.EstAddedLitres != 0 {
			extra = append(extra, fmt.Sprintf("Est +%.0fL", *l.EstAddedLitres))
		}
		row.Notes = l.Notes
		if len(extra) > 0 {
			row.Notes += " · " + strings.Join(extra, ", ")
		}
		rows = append(rows, row)
	}
	s.page(w, r, "Refuel", "refuel_list", struct{ Rows []refuelRowView }{rows})
}

type refuelFormView struct {
	Cap    string
	Target string
	Est    string
}

func (s *Server) handleRefuelNewForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := refuelFormView{}
	if f := optionalFloat(q.Get("tank_capacity_l")); f != nil {
		view.Cap = fmt.Sprintf("%.0f", *f)
	}
	if n := optionalInt(q.Get("target_percent")); n != nil {
		view.Target = fmt.Sprintf("%d", *n)
	}
	if f := optionalFloat(q.Get("est_added_litres")); f != nil {
		view.Est = fmt.Sprintf("%.0f", *f)
	}
	s.page(w, r, "New Refuel", "refuel_form", view)
}

func (s *Server) handleRefuelCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateRefuelLog(r.Context(), engine.RefuelCreateOptions{
		FuelType:        r.FormValue("fuel_type"),
		AmountLitres:    atofOr(r.FormValue("amount_litres"), 0),
		BeforeAfterNote: r.FormValue("before_after_note"),
		Notes:           r.FormValue("notes"),
		TankCapacityL:   optionalFloat(r.FormValue("tank_capacity_l")),
		TargetPercent:   optionalInt(r.FormValue("target_percent")),
		EstAddedLitres:  optionalFloat(r.FormValue("est_added_litres")),
		Actor:           sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/refuel", http.StatusSeeOther)
}

func clampPercent(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

type refuelCalcView struct {
	Cap        int
	Current    int
	Target     int
	LPH        string
	LPHFixed   string
	Crit       int
	Add        int
	Hours      string
	PrefillURL string
}

func (s *Server) handleRefuelCalc(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	capL := atofOr(q.Get("tank_capacity_l"), 1000)
	if capL < 1 {
		capL = 1
	}
	current := clampPercent(atoiOr(q.Get("current_percent"), 40))
	target := clampPercent(atoiOr(q.Get("target_percent"), 80))
	crit := clampPercent(atoiOr(q.Get("critical_percent"), 25))
	lph := atofOr(q.Get("hourly_usage_lph"), 20)
	if lph < 0 {
		lph = 0
	}

	currentL := capL * float64(current) / 100
	targetL := capL * float64(target) / 100
	addL := targetL - currentL
	if addL < 0 {
		addL = 0
	}

	var hours string
	switch {
	case lph <= 0:
		hours = "∞"
	case current <= crit:
		hours = "0.0 h"
	default:
		litres := capL * float64(current-crit) / 100
		hours = fmt.Sprintf("%.1f h", litres/lph)
	}

	view := refuelCalcView{
		Cap:      int(capL),
		Current:  current,
		Target:   target,
		LPH:      trimFloat(lph),
		LPHFixed: fmt.Sprintf("%.1f", lph),
		Crit:     crit,
		Add:      int(addL),
		Hours:    hours,
		PrefillURL: fmt.Sprintf("/refuel/new?tank_capacity_l=%d&target_percent=%d&est_added_litres=%d",
			int(capL), target, int(addL)),
	}
	s.page(w, r, "Refuel calculator", "refuel_calc", view)
}

func (s *Server) handleFuelWatchCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateFuelWatch(r.Context(), engine.FuelWatchOptions{
		TankCapacityL:   atofOr(r.FormValue("tank_capacity_l"), 0),
		StartPercent:    atoiOr(r.FormValue("start_percent"), 0),
		CriticalPercent: atoiOr(r.FormValue("critical_percent"), 0),
		HourlyUsageLPH:  atofOr(r.FormValue("hourly_usage_lph"), 0),
		Actor:           sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/jobs", http.StatusSeeOther)
}
