package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

// laydownLocation mirrors the area filter: anything stored in a container or
// on the laydown pad counts as off-rig.
func laydownLocation(location *string) bool {
	if location == nil {
		return false
	}
	l := strings.ToLower(*location)
	return strings.Contains(l, "container") || strings.Contains(l, "sea container") || strings.Contains(l, "laydown")
}

func severityRank(it domain.StockItem) int {
	if it.OnRigQty < it.MinQty {
		return 0
	}
	if it.OnRigQty < it.BufferQty {
		return 1
	}
	return 2
}

// nodeIndex is the location tree loaded once per request for breadcrumb and
// select rendering.
type nodeIndex struct {
	byID    map[int64]domain.LocationNode
	buckets map[int64][]domain.LocationNode
}

func indexNodes(nodes []domain.LocationNode) nodeIndex {
	idx := nodeIndex{byID: make(map[int64]domain.LocationNode, len(nodes)), buckets: nodesByParent(nodes)}
	for _, n := range nodes {
		idx.byID[n.ID] = n
	}
	return idx
}

// breadcrumb walks parent pointers up from a node, guarding against cycles.
func (idx nodeIndex) breadcrumb(nodeID int64) []string {
	seen := make(map[int64]bool)
	var parts []string
	cur, ok := idx.byID[nodeID]
	for ok && !seen[cur.ID] {
		seen[cur.ID] = true
		parts = append(parts, cur.Name)
		if cur.ParentID == nil {
			break
		}
		cur, ok = idx.byID[*cur.ParentID]
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

func (idx nodeIndex) breadcrumbText(nodeID int64) string {
	var kept []string
	for _, p := range idx.breadcrumb(nodeID) {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " / ")
}

// breadcrumbLinks renders parts as progressive search links into /stock.
func breadcrumbLinks(parts []string) template.HTML {
	if len(parts) == 0 {
		return ""
	}
	links := make([]string, 0, len(parts))
	for i := range parts {
		prefix := strings.Join(parts[:i+1], " / ")
		links = append(links, fmt.Sprintf("<a class='muted' href='/stock?q=%s'>%s</a>",
			url.QueryEscape(prefix), template.HTMLEscapeString(parts[i])))
	}
	return template.HTML(strings.Join(links, " <span class='muted'>›</span> "))
}

func freeTextBreadcrumb(location *string) template.HTML {
	if location == nil || *location == "" {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(*location, "/") {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return template.HTML(template.HTMLEscapeString(*location))
	}
	return breadcrumbLinks(parts)
}

// locationOptions renders the tree as an indented select, with a none row
// first.
func (idx nodeIndex) locationOptions(selected *int64) template.HTML {
	var b strings.Builder
	b.WriteString("<option value=''>— none —</option>\n")
	var walk func(pid int64, depth int)
	walk = func(pid int64, depth int) {
		for _, n := range idx.buckets[pid] {
			sel := ""
			if selected != nil && n.ID == *selected {
				sel = " selected"
			}
			b.WriteString(fmt.Sprintf("<option value='%d'%s>%s%s</option>\n",
				n.ID, sel, strings.Repeat("&nbsp;", depth*2), template.HTMLEscapeString(n.Name)))
			walk(n.ID, depth+1)
		}
	}
	walk(0, 0)
	return template.HTML(b.String())
}

type stockRowView struct {
	ID           int64
	Name         string
	Qty          int
	Min          int
	Buffer       int
	Unit         string
	RowClass     string
	Badge        string
	BadgeClass   string
	Location     template.HTML
	Token        string
	AdjustAction string
	RestockURL   string
	RestockNeed  int
}

type stockListView struct {
	Q    string
	Area string
	Rows []stockRowView
}

func (s *Server) handleStockList(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	area := strings.ToLower(r.URL.Query().Get("area"))
	if area == "" {
		area = "all"
	}

	items, err := eng.Repo.ListStockItems(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	switch area {
	case "laydown":
		items = filterStock(items, func(it domain.StockItem) bool { return laydownLocation(it.Location) })
	case "rig":
		items = filterStock(items, func(it domain.StockItem) bool { return !laydownLocation(it.Location) })
	}

	nodes, err := eng.Repo.ListLocationNodes(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	idx := indexNodes(nodes)
	linkByStock, err := linkMap(ctx, eng)
	if err != nil {
		s.fail(w, err)
		return
	}

	if q != "" {
		ql := strings.ToLower(q)
		items = filterStock(items, func(it domain.StockItem) bool {
			if strings.Contains(strings.ToLower(it.Name), ql) || strings.Contains(strings.ToLower(it.Unit), ql) {
				return true
			}
			if it.Location != nil && strings.Contains(strings.ToLower(*it.Location), ql) {
				return true
			}
			if nodeID, ok := linkByStock[it.ID]; ok {
				return strings.Contains(strings.ToLower(idx.breadcrumbText(nodeID)), ql)
			}
			return false
		})
	}

	sortStockBySeverity(items)

	redirect := url.Values{}
	redirect.Set("q", q)
	redirect.Set("area", area)

	rows := make([]stockRowView, 0, len(items))
	for _, it := range items {
		row := stockRowView{
			ID:           it.ID,
			Name:         it.Name,
			Qty:          it.OnRigQty,
			Min:          it.MinQty,
			Buffer:       it.BufferQty,
			Unit:         it.Unit,
			Token:        engine.ConcurrencyToken(it.UpdatedAt),
			AdjustAction: fmt.Sprintf("/stock/%d/adjust?%s", it.ID, redirect.Encode()),
		}
		switch severityRank(it) {
		case 0:
			row.Badge, row.BadgeClass, row.RowClass = "CRITICAL", "badge-critical", "row-critical"
		case 1:
			row.Badge, row.BadgeClass, row.RowClass = "LOW", "badge-attention", "row-attention"
		}
		if row.Badge != "" {
			row.RestockNeed = it.MinQty + it.BufferQty - it.OnRigQty
			if row.RestockNeed < 1 {
				row.RestockNeed = 1
			}
			unit := it.Unit
			if unit == "" {
				unit = "ea"
			}
			row.RestockURL = fmt.Sprintf("/restock/new?stock_item_id=%d&qty=%d&unit=%s", it.ID, row.RestockNeed, url.QueryEscape(unit))
		}
		if nodeID, ok := linkByStock[it.ID]; ok {
			row.Location = breadcrumbLinks(idx.breadcrumb(nodeID))
			if row.Location == "" {
				row.Location = template.HTML("<span class='muted'>[missing location]</span>")
			}
		} else {
			row.Location = freeTextBreadcrumb(it.Location)
		}
		rows = append(rows, row)
	}

	s.page(w, r, "Stock", "stock_list", stockListView{Q: q, Area: area, Rows: rows})
}

func filterStock(items []domain.StockItem, keep func(domain.StockItem) bool) []domain.StockItem {
	out := items[:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func sortStockBySeverity(items []domain.StockItem) {
	sort.Slice(items, func(i, j int) bool {
		ra, rb := severityRank(items[i]), severityRank(items[j])
		if ra != rb {
			return ra < rb
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}

func linkMap(ctx context.Context, eng engine.Engine) (map[int64]int64, error) {
	links, err := eng.Repo.ListLinks(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]int64, len(links))
	for _, l := range links {
		m[l.StockItemID] = l.LocationNodeID
	}
	return m, nil
}

type stockFormView struct {
	Action   string
	Token    string
	IsEdit   bool
	Name     string
	Qty      int
	Min      int
	Buffer   int
	Unit     string
	Location string
	Options  template.HTML
}

func (s *Server) handleStockNewForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	nodes, err := eng.Repo.ListLocationNodes(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	selected := optionalID(r.URL.Query().Get("selected_node_id"))
	s.page(w, r, "New Stock Item", "stock_form", stockFormView{
		Action:  "/stock/new",
		Unit:    "ea",
		Options: indexNodes(nodes).locationOptions(selected),
	})
}

func (s *Server) handleStockCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	unit := r.FormValue("unit")
	if unit == "" {
		unit = "ea"
	}
	_, err = eng.CreateStockItem(r.Context(), engine.StockCreateOptions{
		Name:           r.FormValue("name"),
		OnRigQty:       atoiOr(r.FormValue("on_rig_qty"), 0),
		MinQty:         atoiOr(r.FormValue("min_qty"), 0),
		BufferQty:      atoiOr(r.FormValue("buffer_qty"), 0),
		Unit:           unit,
		Location:       r.FormValue("location"),
		LocationNodeID: optionalID(r.FormValue("location_node_id")),
		Actor:          sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/stock", http.StatusSeeOther)
}

func (s *Server) handleStockEditForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	it, err := eng.Repo.GetStockItem(ctx, idParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Redirect(w, r, "/stock", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	nodes, err := eng.Repo.ListLocationNodes(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	selected := optionalID(r.URL.Query().Get("selected_node_id"))
	if selected == nil {
		if link, err := eng.Repo.GetLinkForStock(ctx, it.ID); err == nil {
			selected = &link.LocationNodeID
		}
	}
	loc := ""
	if it.Location != nil {
		loc = *it.Location
	}
	s.page(w, r, "Edit: "+it.Name, "stock_form", stockFormView{
		Action:   fmt.Sprintf("/stock/%d/edit", it.ID),
		Token:    engine.ConcurrencyToken(it.UpdatedAt),
		IsEdit:   true,
		Name:     it.Name,
		Qty:      it.OnRigQty,
		Min:      it.MinQty,
		Buffer:   it.BufferQty,
		Unit:     it.Unit,
		Location: loc,
		Options:  indexNodes(nodes).locationOptions(selected),
	})
}

type conflictView struct {
	Blocked string
	Name    string
	Qty     int
	EditURL string
}

func (s *Server) handleStockUpdate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	id := idParam(r, "id")
	unit := r.FormValue("unit")
	if unit == "" {
		unit = "ea"
	}
	_, err = eng.UpdateStockItem(r.Context(), engine.StockUpdateOptions{
		ID:                id,
		IfUnmodifiedSince: r.FormValue("if_unmodified_since"),
		Name:              r.FormValue("name"),
		OnRigQty:          atoiOr(r.FormValue("on_rig_qty"), 0),
		MinQty:            atoiOr(r.FormValue("min_qty"), 0),
		BufferQty:         atoiOr(r.FormValue("buffer_qty"), 0),
		Unit:              unit,
		Location:          r.FormValue("location"),
		LocationNodeID:    optionalID(r.FormValue("location_node_id")),
		Actor:             sess.Actor,
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		http.Redirect(w, r, "/stock", http.StatusSeeOther)
	case errors.Is(err, engine.ErrConflict):
		s.renderStockConflict(w, r, eng, id, "Conflict — Stock edit", "Save blocked")
	case err != nil:
		s.fail(w, err)
	default:
		http.Redirect(w, r, "/stock", http.StatusSeeOther)
	}
}

func (s *Server) handleStockAdjust(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	id := idParam(r, "id")
	delta := atoiOr(r.FormValue("delta"), 0)
	_, err = eng.AdjustStock(r.Context(), id, delta, r.FormValue("if_unmodified_since"), sess.Actor)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		http.Redirect(w, r, "/stock", http.StatusSeeOther)
	case errors.Is(err, engine.ErrConflict):
		s.renderStockConflict(w, r, eng, id, "Conflict — Stock adjust", "Update blocked")
	case err != nil:
		s.fail(w, err)
	default:
		redirect := url.Values{}
		redirect.Set("q", r.URL.Query().Get("q"))
		area := r.URL.Query().Get("area")
		if area == "" {
			area = "all"
		}
		redirect.Set("area", area)
		http.Redirect(w, r, "/stock?"+redirect.Encode(), http.StatusSeeOther)
	}
}

// renderStockConflict shows the current row state so the crew can retry with
// fresh numbers. The write has already been refused.
func (s *Server) renderStockConflict(w http.ResponseWriter, r *http.Request, eng engine.Engine, id int64, title, blocked string) {
	it, err := eng.Repo.GetStockItem(r.Context(), id)
	if err != nil {
		http.Redirect(w, r, "/stock", http.StatusSeeOther)
		return
	}
	var buf strings.Builder
	view := conflictView{Blocked: blocked, Name: it.Name, Qty: it.OnRigQty}
	if blocked == "Save blocked" {
		view.EditURL = fmt.Sprintf("/stock/%d/edit", it.ID)
	}
	if err := s.tmpl.ExecuteTemplate(&buf, "stock_conflict", view); err != nil {
		s.fail(w, err)
		return
	}
	s.render(w, http.StatusOK, "layout", pageData{Title: title, Body: template.HTML(buf.String())})
}

func (s *Server) handleStockDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := eng.DeleteStockItem(r.Context(), idParam(r, "id"), sess.Actor); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/stock", http.StatusSeeOther)
}
