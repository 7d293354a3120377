package server

import (
	"errors"
	"net/http"

	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

type equipmentRowView struct {
	ID          int64
	Name        string
	Description string
}

func (s *Server) handleEquipmentList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	eq, err := eng.Repo.ListEquipment(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	rows := make([]equipmentRowView, 0, len(eq))
	for _, e := range eq {
		rows = append(rows, equipmentRowView{ID: e.ID, Name: e.Name, Description: e.Description})
	}
	s.page(w, r, "Equipment", "equipment_list", struct{ Rows []equipmentRowView }{rows})
}

func (s *Server) handleEquipmentNewForm(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "New Equipment", "equipment_form", nil)
}

func (s *Server) handleEquipmentCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateEquipment(r.Context(), r.FormValue("name"), r.FormValue("description"), sess.Actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/equipment", http.StatusSeeOther)
}

func (s *Server) handleEquipmentDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	err = eng.DeleteEquipment(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/equipment", http.StatusSeeOther)
}

type faultFormView struct {
	EquipmentID   int64
	EquipmentName string
}

func (s *Server) handleFaultNewForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	e, err := eng.Repo.GetEquipment(r.Context(), idParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Redirect(w, r, "/equipment", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.page(w, r, "New Fault", "fault_form", faultFormView{EquipmentID: e.ID, EquipmentName: e.Name})
}

func (s *Server) handleFaultCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateFault(r.Context(), engine.FaultCreateOptions{
		EquipmentID: idParam(r, "id"),
		Description: r.FormValue("description"),
		Priority:    domain.ParsePriority(r.FormValue("priority")),
		Actor:       sess.Actor,
	})
	if errors.Is(err, repo.ErrNotFound) {
		http.Redirect(w, r, "/equipment", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/faults", http.StatusSeeOther)
}

type faultRowView struct {
	ID          int64
	Equipment   string
	Description string
	Badge       string
	BadgeClass  string
	Priority    int
	Chip        string
	Toggle      string
}

func (s *Server) handleFaultList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	faults, err := eng.Repo.ListFaults(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	rows := make([]faultRowView, 0, len(faults))
	for _, f := range faults {
		row := faultRowView{
			ID:          f.ID,
			Description: f.Description,
			Priority:    int(f.Priority),
			Chip:        listChip(f.Priority),
			Badge:       "open",
			BadgeClass:  "badge-open",
			Toggle:      "Resolve",
		}
		if f.EquipmentName != nil {
			row.Equipment = *f.EquipmentName
		}
		switch {
		case f.IsResolved:
			row.Badge, row.BadgeClass, row.Toggle = "resolved", "badge-fixed", "Reopen"
		case f.Priority == domain.PriorityHigh:
			row.Badge, row.BadgeClass = "attention", "badge-attention"
		}
		rows = append(rows, row)
	}
	s.page(w, r, "Equipment Faults", "fault_list", struct{ Rows []faultRowView }{rows})
}

func (s *Server) handleFaultToggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.ToggleFault(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/faults", http.StatusSeeOther)
}

func (s *Server) handleFaultDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	err = eng.DeleteFault(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/faults", http.StatusSeeOther)
}
