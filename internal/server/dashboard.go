package server

import (
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"offsider/internal/domain"
)

const treePreviewMax = 24

type dashboardView struct {
	Title        string
	Actor        string
	LowCrit      int
	OpenRestock  int
	CriticalJobs int
	OpenFaults   int
	Tree         template.HTML
	Recent       []auditRowView
}

type auditRowView struct {
	ID      int64
	When    string
	Actor   string
	What    string
	Summary string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	ctx := r.Context()

	stocks, err := eng.Repo.ListStockItems(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	lowCrit := 0
	for _, it := range stocks {
		if it.OnRigQty < it.MinQty || it.OnRigQty < it.BufferQty {
			lowCrit++
		}
	}
	openRestock, err := eng.Repo.CountOpenRestock(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	openFaults, err := eng.Repo.CountOpenFaults(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	attention, err := eng.Repo.ListAttentionBits(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	urgentNotes, err := eng.Repo.ListOpenUrgentHandover(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	openTasks, err := eng.Repo.ListOpenTasks(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	urgentTasks := 0
	for _, t := range openTasks {
		if t.StoredPriority() <= domain.PriorityHigh {
			urgentTasks++
		}
	}
	nodes, err := eng.Repo.ListLocationNodes(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	recent, err := eng.Repo.RecentAuditLogs(ctx, 10)
	if err != nil {
		s.fail(w, err)
		return
	}

	title := sess.RigTitle
	if title == "" {
		title = sess.Rig
	}
	if title == "" {
		title = "Rig"
	}
	s.render(w, http.StatusOK, "dashboard", dashboardView{
		Title:        title + " Dashboard - Offsider tools v0.1",
		Actor:        sess.Actor,
		LowCrit:      lowCrit,
		OpenRestock:  openRestock,
		CriticalJobs: lowCrit + openRestock + openFaults + len(attention) + len(urgentNotes) + urgentTasks,
		OpenFaults:   openFaults,
		Tree:         treePreview(nodes, treePreviewMax),
		Recent:       auditRows(recent),
	})
}

func auditRows(entries []domain.AuditLog) []auditRowView {
	rows := make([]auditRowView, 0, len(entries))
	for _, e := range entries {
		ref := "-"
		if e.EntityID != nil {
			ref = fmt.Sprintf("%d", *e.EntityID)
		}
		rows = append(rows, auditRowView{
			ID:      e.ID,
			When:    displayTime(e.CreatedAt),
			Actor:   e.Actor,
			What:    fmt.Sprintf("%s[%s] %s", e.Entity, ref, e.Action),
			Summary: e.Summary,
		})
	}
	return rows
}

// nodesByParent buckets the location tree by parent id, siblings sorted
// case-insensitively.
func nodesByParent(nodes []domain.LocationNode) map[int64][]domain.LocationNode {
	buckets := make(map[int64][]domain.LocationNode)
	for _, n := range nodes {
		pid := int64(0)
		if n.ParentID != nil {
			pid = *n.ParentID
		}
		buckets[pid] = append(buckets[pid], n)
	}
	for pid := range buckets {
		b := buckets[pid]
		sort.Slice(b, func(i, j int) bool {
			return strings.ToLower(b[i].Name) < strings.ToLower(b[j].Name)
		})
	}
	return buckets
}

// treePreview renders the dashboard location snippet, capped at max nodes.
func treePreview(nodes []domain.LocationNode, max int) template.HTML {
	if len(nodes) == 0 {
		return template.HTML("<p class='muted'>No locations yet.</p>")
	}
	buckets := nodesByParent(nodes)
	shown := 0
	var walk func(pid int64) string
	walk = func(pid int64) string {
		children := buckets[pid]
		if len(children) == 0 {
			return ""
		}
		var b strings.Builder
		b.WriteString("<ul class='tree'>")
		for _, n := range children {
			if shown >= max {
				break
			}
			shown++
			b.WriteString("<li><span class='node-name'>")
			b.WriteString(template.HTMLEscapeString(n.Name))
			b.WriteString("</span>")
			b.WriteString(walk(n.ID))
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
		return b.String()
	}
	out := walk(0)
	if shown >= max {
		out += "<p class='muted' style='margin:.25rem 0 0;'>…truncated — see full <a href='/map'>Locations</a></p>"
	}
	return template.HTML(out)
}
