package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

func mapSubtree(parent int64, buckets map[int64][]domain.LocationNode, counts map[int64]int, b *strings.Builder) {
	children := buckets[parent]
	if len(children) == 0 {
		return
	}
	b.WriteString("<ul class='tree'>")
	for _, n := range children {
		name := template.HTMLEscapeString(n.Name)
		b.WriteString("<li><a class='node-name' href='/map/")
		fmt.Fprintf(b, "%d'>%s</a> ", n.ID, name)
		if c := counts[n.ID]; c > 0 {
			fmt.Fprintf(b, "<span class='chip chip-low' title='Linked stock items'>%d</span> ", c)
		}
		kind := ""
		if n.Kind != nil {
			kind = template.HTMLEscapeString(*n.Kind)
		}
		fmt.Fprintf(b, "<span class='muted small'>%s</span>", kind)
		fmt.Fprintf(b, "<div class='actions' style='margin:.25rem 0;'>"+
			"<a class='btn btn-sm' href='/map/%d/edit'>Edit</a>"+
			"<a class='btn btn-sm' href='/map/%d/move'>Move</a>"+
			"<form method='post' action='/map/%d/delete' style='display:inline'>"+
			"<button class='btn btn-sm' type='submit' onclick='return confirm(\"Delete %s?\\n(Children will be orphaned to root; links preserved.)\")'>Delete</button>"+
			"</form></div>", n.ID, n.ID, n.ID, name)
		mapSubtree(n.ID, buckets, counts, b)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

type mapTreeView struct {
	Q     string
	Tree  template.HTML
	Empty bool
}

func (s *Server) handleMapTree(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	nodes, err := eng.Repo.ListLocationNodes(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q != "" {
		ql := strings.ToLower(q)
		kept := nodes[:0]
		for _, n := range nodes {
			if strings.Contains(strings.ToLower(n.Name), ql) {
				kept = append(kept, n)
			}
		}
		nodes = kept
	}
	counts, err := eng.Repo.LinkedStockCounts(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	var b strings.Builder
	mapSubtree(0, nodesByParent(nodes), counts, &b)
	s.page(w, r, "Map / Locations", "map_tree", mapTreeView{
		Q:     q,
		Tree:  template.HTML(b.String()),
		Empty: len(nodes) == 0,
	})
}

type nodeDetailView struct {
	ID         int64
	Name       string
	Kind       string
	Notes      string
	Breadcrumb string
}

func (s *Server) handleNodeDetail(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	n, err := eng.Repo.GetLocationNode(ctx, idParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Redirect(w, r, "/map", http.StatusSeeOther)
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
	view := nodeDetailView{
		ID:         n.ID,
		Name:       n.Name,
		Notes:      n.Notes,
		Breadcrumb: indexNodes(nodes).breadcrumbText(n.ID),
	}
	if n.Kind != nil {
		view.Kind = *n.Kind
	}
	if view.Breadcrumb == "" {
		view.Breadcrumb = "(root)"
	}
	s.page(w, r, "Location: "+n.Name, "node_detail", view)
}

// parentOptions is the flat by-name select used on node forms; self is
// excluded so a node cannot become its own parent.
func parentOptions(nodes []domain.LocationNode, exclude int64, selected *int64) []stockOptionView {
	opts := make([]stockOptionView, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == exclude {
			continue
		}
		opts = append(opts, stockOptionView{
			ID:       n.ID,
			Label:    n.Name,
			Selected: selected != nil && n.ID == *selected,
		})
	}
	return opts
}

type nodeFormView struct {
	Action  string
	IsEdit  bool
	Name    string
	Kind    string
	Notes   string
	Options []stockOptionView
}

func (s *Server) handleNodeNewForm(w http.ResponseWriter, r *http.Request) {
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
	s.page(w, r, "New Location Node", "node_form", nodeFormView{
		Action:  "/map/new",
		Options: parentOptions(nodes, 0, optionalID(r.URL.Query().Get("parent_id"))),
	})
}

func (s *Server) handleNodeCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.CreateLocationNode(r.Context(), engine.NodeCreateOptions{
		Name:     r.FormValue("name"),
		Kind:     r.FormValue("kind"),
		ParentID: optionalID(r.FormValue("parent_id")),
		Notes:    r.FormValue("notes"),
		Actor:    sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/map", http.StatusSeeOther)
}

func (s *Server) handleNodeEditForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	n, err := eng.Repo.GetLocationNode(ctx, idParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Redirect(w, r, "/map", http.StatusSeeOther)
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
	view := nodeFormView{
		Action:  fmt.Sprintf("/map/%d/edit", n.ID),
		IsEdit:  true,
		Name:    n.Name,
		Notes:   n.Notes,
		Options: parentOptions(nodes, n.ID, n.ParentID),
	}
	if n.Kind != nil {
		view.Kind = *n.Kind
	}
	s.page(w, r, "Edit: "+n.Name, "node_form", view)
}

func (s *Server) handleNodeUpdate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	_, err = eng.UpdateLocationNode(r.Context(), engine.NodeUpdateOptions{
		ID:       idParam(r, "id"),
		Name:     r.FormValue("name"),
		Kind:     r.FormValue("kind"),
		ParentID: optionalID(r.FormValue("parent_id")),
		Notes:    r.FormValue("notes"),
		Actor:    sess.Actor,
	})
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/map", http.StatusSeeOther)
}

type nodeMoveView struct {
	ID      int64
	Name    string
	Options []stockOptionView
}

func (s *Server) handleNodeMoveForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()
	n, err := eng.Repo.GetLocationNode(ctx, idParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Redirect(w, r, "/map", http.StatusSeeOther)
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
	s.page(w, r, "Move: "+n.Name, "node_move", nodeMoveView{
		ID:      n.ID,
		Name:    n.Name,
		Options: parentOptions(nodes, n.ID, n.ParentID),
	})
}

func (s *Server) handleNodeMove(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	err = eng.MoveLocationNode(r.Context(), idParam(r, "id"), optionalID(r.FormValue("parent_id")), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/map", http.StatusSeeOther)
}

func (s *Server) handleNodeDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	err = eng.DeleteLocationNode(r.Context(), idParam(r, "id"), sess.Actor)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/map", http.StatusSeeOther)
}

// handleNodeQuickCreate backs the small add-a-location form embedded in the
// stock forms. It bounces back to the caller with the new node preselected.
func (s *Server) handleNodeQuickCreate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	n, err := eng.CreateLocationNode(r.Context(), engine.NodeCreateOptions{
		Name:     strings.TrimSpace(r.FormValue("name")),
		ParentID: optionalID(r.FormValue("parent_id")),
		Actor:    sess.Actor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	rt := r.FormValue("return_to")
	if rt == "" || !strings.HasPrefix(rt, "/") {
		rt = "/stock/new"
	}
	joiner := "?"
	if strings.Contains(rt, "?") {
		joiner = "&"
	}
	http.Redirect(w, r, fmt.Sprintf("%s%sselected_node_id=%d", rt, joiner, n.ID), http.StatusSeeOther)
}
