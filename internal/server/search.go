package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// searchSnippet trims text to a window of about 40 runes either side of the
// first match, or the plain head of the text when nothing matched.
func searchSnippet(text, q string) string {
	if text == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(q))
	if idx < 0 {
		r := []rune(text)
		if len(r) > 160 {
			return string(r[:160])
		}
		return text
	}
	const window = 40
	start := idx - window
	if start < 0 {
		start = 0
	}
	span := len(q)
	if span < window {
		span = window
	}
	end := idx + span + window
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}

// scopeOn reads a scope checkbox. An absent parameter counts as on, so a
// bare /search?q=... searches everything.
func scopeOn(q url.Values, name string) bool {
	if _, ok := q[name]; !ok {
		return true
	}
	switch strings.ToLower(q.Get(name)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

type searchScopes struct {
	Stock     bool
	Restock   bool
	Bits      bool
	Equipment bool
	Handover  bool
	Jobs      bool
	Locations bool
}

type searchRowView struct {
	Item    string
	Details string
	URL     string
	Action  string
}

type searchSection struct {
	Title string
	Rows  []searchRowView
}

type searchView struct {
	Q        string
	Scopes   searchScopes
	Queried  bool
	Sections []searchSection
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	params := r.URL.Query()
	q := params.Get("q")
	view := searchView{
		Q: q,
		Scopes: searchScopes{
			Stock:     scopeOn(params, "scope_stock"),
			Restock:   scopeOn(params, "scope_restock"),
			Bits:      scopeOn(params, "scope_bits"),
			Equipment: scopeOn(params, "scope_equipment"),
			Handover:  scopeOn(params, "scope_handover"),
			Jobs:      scopeOn(params, "scope_jobs"),
			Locations: scopeOn(params, "scope_locations"),
		},
		Queried: q != "",
	}
	if !view.Queried {
		s.page(w, r, "Search", "search", view)
		return
	}

	addSection := func(title string, rows []searchRowView) {
		if len(rows) > 0 {
			view.Sections = append(view.Sections, searchSection{Title: title, Rows: rows})
		}
	}

	if view.Scopes.Stock {
		items, err := eng.Repo.SearchStockItems(ctx, q)
		if err != nil {
			s.fail(w, err)
			return
		}
		var rows []searchRowView
		for _, it := range items {
			loc := ""
			if it.Location != nil {
				loc = *it.Location
			}
			rows = append(rows, searchRowView{Item: it.Name, Details: searchSnippet(loc, q), URL: "/stock", Action: "View"})
		}
		addSection("Stock", rows)
	}
	if view.Scopes.Restock {
		items, err := eng.Repo.SearchRestockItems(ctx, q)
		if err != nil {
			s.fail(w, err)
			return
		}
		var rows []searchRowView
		for _, it := range items {
			unit := it.Unit
			if unit == "" {
				unit = "ea"
			}
			rows = append(rows, searchRowView{Item: it.Name, Details: fmt.Sprintf("%d %s", it.Qty, unit), URL: "/restock", Action: "View"})
		}
		addSection("Restock", rows)
	}
	if view.Scopes.Bits {
		items, err := eng.Repo.SearchBits(ctx, q)
		if err != nil {
			s.fail(w, err)
			return
		}
		var rows []searchRowView
		for _, b := range items {
			rows = append(rows, searchRowView{Item: b.Serial, Details: "Status: " + b.Status, URL: "/bits", Action: "View"})
		}
		addSection("Bits", rows)
	}
	if view.Scopes.Equipment {
		items, err := eng.Repo.SearchFaults(ctx, q)
		if err != nil {
			s.fail(w, err)
			return
		}
		var rows []searchRowView
		for _, f := range items {
			item := "Equipment fault"
			if f.EquipmentName != nil && *f.EquipmentName != "" {
				item = *f.EquipmentName
			}
			rows = append(rows, searchRowView{Item: item, Details: searchSnippet(f.Description, q), URL: "/equipment", Action: "View"})
		}
		addSection("Equipment faults", rows)
	}
	if view.Scopes.Handover {
		items, err := eng.Repo.SearchHandoverNotes(ctx, q)
		if err != nil {
			s.fail(w, err)
			return
		}
		var rows []searchRowView
		for _, n := range items {
			rows = append(rows, searchRowView{Item: n.Title, Details: searchSnippet(n.Body, q), URL: "/handover", Action: "View"})
		}
		addSection("Handover", rows)
	}
	if view.Scopes.Jobs {
		items, err := eng.Repo.SearchTasks(ctx, q)
		if err != nil {
			s.fail(w, err)
			return
		}
		var rows []searchRowView
		for _, t := range items {
			rows = append(rows, searchRowView{Item: t.Title, Details: searchSnippet(t.Notes, q), URL: "/jobs", Action: "View"})
		}
		addSection("Jobs", rows)
	}
	if view.Scopes.Locations {
		items, err := eng.Repo.SearchLocationNodes(ctx, q)
		if err != nil {
			s.fail(w, err)
			return
		}
		var rows []searchRowView
		for _, n := range items {
			kind := ""
			if n.Kind != nil {
				kind = *n.Kind
			}
			rows = append(rows, searchRowView{
				Item:    n.Name,
				Details: strings.TrimSpace(kind + " " + searchSnippet(n.Notes, q)),
				URL:     fmt.Sprintf("/map/%d/edit", n.ID),
				Action:  "Open",
			})
		}
		addSection("Locations", rows)
	}
	s.page(w, r, "Search", "search", view)
}
