package server

import (
	"errors"
	"net/http"
	"strings"

	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

type restockRowView struct {
	ID       int64
	Name     string
	Qty      int
	Unit     string
	Priority int
	Chip     string
	IsClosed bool
}

type restockListView struct {
	Rows []restockRowView
}

// listChip covers the restock and fault lists, which never go P0.
func listChip(p domain.Priority) string {
	switch p {
	case domain.PriorityHigh:
		return "chip-high"
	case domain.PriorityLow:
		return "chip-low"
	default:
		return "chip-med"
	}
}

func (s *Server) handleRestockList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	items, err := eng.Repo.ListRestockItems(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	stocks, err := eng.Repo.ListStockItems(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	stockByID := make(map[int64]domain.StockItem, len(stocks))
	for _, it := range stocks {
		stockByID[it.ID] = it
	}

	rows := make([]restockRowView, 0, len(items))
	for _, it := range items {
		name := it.Name
		if it.StockItemID != nil {
			if linked, ok := stockByID[*it.StockItemID]; ok {
				name = linked.Name + " (" + linked.Unit + ")"
			}
		}
		unit := it.Unit
		if unit == "" {
			unit = "ea"
		}
		rows = append(rows, restockRowView{
			ID:       it.ID,
			Name:     name,
			Qty:      it.Qty,
			Unit:     unit,
			Priority: int(it.Priority),
			Chip:     listChip(it.Priority),
			IsClosed: it.IsClosed,
		})
	}
	s.page(w, r, "Restock", "restock_list", restockListView{Rows: rows})
}

type stockOptionView struct {
	ID       int64
	Label    string
	Selected bool
}

type restockFormView struct {
	Options  []stockOptionView
	Qty      int
	Unit     string
	Priority int
}

func (s *Server) handleRestockNewForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	stocks, err := eng.Repo.ListStockItems(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	qs := r.URL.Query()
	selected := optionalID(qs.Get("stock_item_id"))
	unit := qs.Get("unit")
	if unit == "" {
		unit = "ea"
	}
	view := restockFormView{
		Qty:      atoiOr(qs.Get("qty"), 1),
		Unit:     unit,
		Priority: atoiOr(qs.Get("priority"), 2),
	}
	for _, it := range stocks {
		u := it.Unit
		if u == "" {
			u = "ea"
		}
		view.Options = append(view.Options, stockOptionView{
			ID:       it.ID,
			Label:    it.Name + " (" + u + ")",
			Selected: selected != nil && it.ID == *selected,
		})
	}
	s.page(w, r, "New Restock Item", "restock_form", view)
}

func (s *Server) handleRestockCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateRestockItem(r.Context(), engine.RestockCreateOptions{
		StockItemID: optionalID(r.FormValue("stock_item_id")),
		Name:        strings.TrimSpace(r.FormValue("name")),
		Qty:         atoiOr(r.FormValue("qty"), 1),
		Unit:        r.FormValue("unit"),
		Priority:    domain.ParsePriority(r.FormValue("priority")),
		Actor:       sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/restock", http.StatusSeeOther)
}

func (s *Server) handleRestockToggle(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := eng.ToggleRestock(r.Context(), idParam(r, "id"), sess.Actor); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/restock", http.StatusSeeOther)
}

func (s *Server) handleRestockDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := eng.DeleteRestockItem(r.Context(), idParam(r, "id"), sess.Actor); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/restock", http.StatusSeeOther)
}

type suggestRowView struct {
	StockID int64
	Name    string
	Qty     int
	Min     int
	Buffer  int
	Target  int
	Need    int
	Unit    string
}

type suggestListView struct {
	Rows []suggestRowView
}

// handleRestockSuggest proposes topping each item back up to min + buffer.
func (s *Server) handleRestockSuggest(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	stocks, err := eng.Repo.ListStockItems(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	var rows []suggestRowView
	for _, it := range stocks {
		target := it.MinQty + it.BufferQty
		if it.OnRigQty >= target {
			continue
		}
		unit := it.Unit
		if unit == "" {
			unit = "ea"
		}
		rows = append(rows, suggestRowView{
			StockID: it.ID,
			Name:    it.Name,
			Qty:     it.OnRigQty,
			Min:     it.MinQty,
			Buffer:  it.BufferQty,
			Target:  target,
			Need:    target - it.OnRigQty,
			Unit:    unit,
		})
	}
	s.page(w, r, "Restock suggestions", "restock_suggest", suggestListView{Rows: rows})
}

func (s *Server) handleRestockSuggestCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	stockID := optionalID(r.FormValue("stock_item_id"))
	if stockID == nil {
		http.Redirect(w, r, "/restock/suggest", http.StatusSeeOther)
		return
	}
	_, err = eng.CreateSuggestedRestock(r.Context(), *stockID, atoiOr(r.FormValue("qty"), 1), r.FormValue("unit"), sess.Actor)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		http.Redirect(w, r, "/restock/suggest", http.StatusSeeOther)
	case err != nil:
		s.fail(w, err)
	default:
		http.Redirect(w, r, "/restock", http.StatusSeeOther)
	}
}
