package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/fuelwatch"
	"offsider/internal/repo"
)

type taskRowView struct {
	ID       int64
	Priority int
	Chip     string
	Title    string
	Extra    template.HTML
	Notes    string
	Status   string
	Toggle   string
}

// critRowView is a derived row on the critical board. HandoverID switches
// the action cell to a close form; otherwise ViewURL links out.
type critRowView struct {
	Priority   int
	Chip       string
	Title      string
	Details    string
	HandoverID int64
	ViewURL    string
}

type jobsView struct {
	CritTasks []taskRowView
	CritRows  []critRowView
	Tasks     []taskRowView
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	now := s.clock()

	tasks, err := eng.Repo.ListTasks(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	handover, err := eng.Repo.ListOpenUrgentHandover(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	faults, err := eng.Repo.ListOpenUrgentFaults(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	restocks, err := eng.Repo.ListOpenUrgentRestock(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	lowStock, err := eng.Repo.ListLowStockItems(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	bits, err := eng.Repo.ListAttentionBits(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	allStock, err := eng.Repo.ListStockItems(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	stockByID := make(map[int64]domain.StockItem, len(allStock))
	for _, it := range allStock {
		stockByID[it.ID] = it
	}

	taskRow := func(t domain.JobTask) taskRowView {
		eff := fuelwatch.EffectivePriority(t, now)
		row := taskRowView{
			ID:       t.ID,
			Priority: int(eff),
			Chip:     eff.Chip(),
			Title:    t.Title,
			Notes:    clipText(t.Notes, 160),
			Status:   "open",
			Toggle:   "Close",
		}
		if t.IsClosed {
			row.Status, row.Toggle = "closed", "Reopen"
		}
		if t.IsFuelWatch {
			if snap, ok := fuelwatch.Evaluate(t, now); ok {
				hrs := snap.FormatHours()
				if !snap.Never {
					hrs += " h"
				}
				crit := 0
				if t.CriticalPercent != nil {
					crit = *t.CriticalPercent
				}
				row.Extra = template.HTML(fmt.Sprintf(
					" <small class='muted'>(Fuel Watch · %d%% now · to %d%% in %s)</small>",
					snap.Percent, crit, hrs))
			}
		}
		return row
	}

	view := jobsView{}
	for _, want := range []domain.Priority{domain.PriorityCritical, domain.PriorityHigh} {
		for _, t := range tasks {
			if !t.IsClosed && fuelwatch.EffectivePriority(t, now) == want {
				view.CritTasks = append(view.CritTasks, taskRow(t))
			}
		}
	}
	for _, n := range handover {
		view.CritRows = append(view.CritRows, critRowView{
			Priority:   int(n.Priority),
			Chip:       n.Priority.Chip(),
			Title:      "Handover: " + n.Title,
			Details:    clipText(n.Body, 160),
			HandoverID: n.ID,
		})
	}
	for _, f := range faults {
		title := "Equipment fault"
		if f.EquipmentName != nil && *f.EquipmentName != "" {
			title = *f.EquipmentName
		}
		view.CritRows = append(view.CritRows, critRowView{
			Priority: int(f.Priority),
			Chip:     f.Priority.Chip(),
			Title:    "Fault: " + title,
			Details:  clipText(f.Description, 160),
			ViewURL:  "/equipment",
		})
	}
	for _, it := range restocks {
		name := it.Name
		if it.StockItemID != nil {
			if linked, ok := stockByID[*it.StockItemID]; ok {
				name = fmt.Sprintf("%s (%s)", linked.Name, linked.Unit)
			}
		}
		view.CritRows = append(view.CritRows, critRowView{
			Priority: int(domain.PriorityHigh),
			Chip:     "chip-high",
			Title:    "Restock: " + name,
			Details:  fmt.Sprintf("%d %s", it.Qty, it.Unit),
			ViewURL:  "/restock",
		})
	}
	for _, it := range lowStock {
		view.CritRows = append(view.CritRows, critRowView{
			Priority: int(domain.PriorityHigh),
			Chip:     "chip-high",
			Title:    "Stock: " + it.Name,
			Details:  fmt.Sprintf("QTY %d | Min %d | Buffer %d", it.OnRigQty, it.MinQty, it.BufferQty),
			ViewURL:  "/stock",
		})
	}
	for _, b := range bits {
		view.CritRows = append(view.CritRows, critRowView{
			Priority: int(domain.PriorityHigh),
			Chip:     "chip-high",
			Title:    "Bit attention: " + b.Serial,
			Details:  "Status: " + b.Status,
			ViewURL:  "/bits",
		})
	}
	for _, t := range tasks {
		view.Tasks = append(view.Tasks, taskRow(t))
	}
	s.page(w, r, "Jobs", "jobs", view)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateTask(r.Context(), engine.TaskCreateOptions{
		Title:    r.FormValue("title"),
		Notes:    r.FormValue("notes"),
		Priority: domain.ParsePriority(r.FormValue("priority")),
		Actor:    sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/jobs", http.StatusSeeOther)
}

func (s *Server) handleTaskToggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.ToggleTask(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/jobs", http.StatusSeeOther)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	err = eng.DeleteTask(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/jobs", http.StatusSeeOther)
}
