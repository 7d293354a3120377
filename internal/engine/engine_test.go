package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"offsider/internal/db"
	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/migrate"
	"offsider/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	DB     *sql.DB
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{DataDir: t.TempDir(), Rig: "default"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
	eng.Audit.Now = eng.Now
	return testEnv{Engine: eng, DB: conn, Ctx: context.Background()}
}

func auditSummaries(t *testing.T, env testEnv, entity, action string) []string {
	t.Helper()
	rows, err := env.DB.QueryContext(env.Ctx, `SELECT summary FROM audit_logs WHERE entity=? AND action=? ORDER BY id`, entity, action)
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			t.Fatalf("scan audit: %v", err)
		}
		out = append(out, s)
	}
	return out
}

func countAudit(t *testing.T, env testEnv) int {
	t.Helper()
	var n int
	if err := env.DB.QueryRowContext(env.Ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&n); err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return n
}

func TestStockAdjustClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{
		Name: "Rags", OnRigQty: 3, MinQty: 1, BufferQty: 1, Actor: "tester",
	})
	if err != nil {
		t.Fatalf("create stock: %v", err)
	}
	it, err = env.Engine.AdjustStock(env.Ctx, it.ID, -10, "", "tester")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if it.OnRigQty != 0 {
		t.Fatalf("expected clamp at 0, got %d", it.OnRigQty)
	}
	got := auditSummaries(t, env, "stock", "adjust")
	if len(got) != 1 || got[0] != "Rags: 3 → 0 (-10)" {
		t.Fatalf("unexpected adjust audit: %v", got)
	}
	it, err = env.Engine.AdjustStock(env.Ctx, it.ID, 5, "", "tester")
	if err != nil || it.OnRigQty != 5 {
		t.Fatalf("adjust up: qty=%d err=%v", it.OnRigQty, err)
	}
	got = auditSummaries(t, env, "stock", "adjust")
	if got[1] != "Rags: 0 → 5 (+5)" {
		t.Fatalf("unexpected second adjust audit: %q", got[1])
	}
}

func TestStockAdjustConflict(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{Name: "Grease", OnRigQty: 4, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	token := engine.ConcurrencyToken(it.UpdatedAt)

	// item changes while the first client holds its token
	env.Engine.Now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.AdjustStock(env.Ctx, it.ID, 1, token, "tester"); err != nil {
		t.Fatalf("first adjust should pass: %v", err)
	}

	_, err = env.Engine.AdjustStock(env.Ctx, it.ID, 1, token, "tester")
	if !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// an empty token skips the check entirely
	got, err := env.Engine.AdjustStock(env.Ctx, it.ID, 1, "", "tester")
	if err != nil || got.OnRigQty != 6 {
		t.Fatalf("empty token adjust: qty=%d err=%v", got.OnRigQty, err)
	}
}

func TestConcurrencyToken(t *testing.T) {
	if got := engine.ConcurrencyToken("2024-06-01T08:00:00Z"); got != "2024-06-01T08:00:00Z" {
		t.Fatalf("plain: %q", got)
	}
	if got := engine.ConcurrencyToken("2024-06-01T10:00:00.789+02:00"); got != "2024-06-01T08:00:00Z" {
		t.Fatalf("offset and fraction: %q", got)
	}
	if got := engine.ConcurrencyToken("not a time"); got != "1970-01-01T00:00:00Z" {
		t.Fatalf("unparseable: %q", got)
	}
}

func TestStockUpdateAuditFormat(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{
		Name: "Core trays", OnRigQty: 10, MinQty: 2, BufferQty: 3, Actor: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.UpdateStockItem(env.Ctx, engine.StockUpdateOptions{
		ID: it.ID, Name: "Trays", OnRigQty: 8, MinQty: 2, BufferQty: 3, Unit: "box", Actor: "tester",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got := auditSummaries(t, env, "stock", "update")
	want := "Core trays [10/2/3 ea] → Trays [8/2/3 box]"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("update audit = %v, want %q", got, want)
	}
}

func TestRestockCloseFulfillsLinkedStock(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{Name: "Filters", OnRigQty: 2, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := env.Engine.CreateRestockItem(env.Ctx, engine.RestockCreateOptions{
		StockItemID: &it.ID, Qty: 5, Priority: domain.PriorityHigh, Actor: "tester",
	})
	if err != nil {
		t.Fatalf("create restock: %v", err)
	}
	if r.Name != "Filters" || r.Unit != "ea" {
		t.Fatalf("expected linked fallbacks, got %q %q", r.Name, r.Unit)
	}
	r, err = env.Engine.ToggleRestock(env.Ctx, r.ID, "tester")
	if err != nil || !r.IsClosed {
		t.Fatalf("close restock: closed=%v err=%v", r.IsClosed, err)
	}
	after, err := env.Engine.Repo.GetStockItem(env.Ctx, it.ID)
	if err != nil || after.OnRigQty != 7 {
		t.Fatalf("expected fulfilled qty 7, got %d (%v)", after.OnRigQty, err)
	}
	fulfills := auditSummaries(t, env, "stock", "restock-fulfill")
	if len(fulfills) != 1 || fulfills[0] != "Filters: 2 → 7 (+5)" {
		t.Fatalf("fulfill audit = %v", fulfills)
	}
	// reopening never takes stock back out
	r, err = env.Engine.ToggleRestock(env.Ctx, r.ID, "tester")
	if err != nil || r.IsClosed {
		t.Fatalf("reopen: closed=%v err=%v", r.IsClosed, err)
	}
	after, _ = env.Engine.Repo.GetStockItem(env.Ctx, it.ID)
	if after.OnRigQty != 7 {
		t.Fatalf("reopen changed qty to %d", after.OnRigQty)
	}
	if got := auditSummaries(t, env, "restock", "reopen"); len(got) != 1 || got[0] != "Filters" {
		t.Fatalf("reopen audit = %v", got)
	}
}

func TestRestockCloseAfterStockDeleted(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{Name: "Rod grease", OnRigQty: 1, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := env.Engine.CreateRestockItem(env.Ctx, engine.RestockCreateOptions{StockItemID: &it.ID, Qty: 3, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteStockItem(env.Ctx, it.ID, "tester"); err != nil {
		t.Fatalf("delete stock: %v", err)
	}
	r, err = env.Engine.ToggleRestock(env.Ctx, r.ID, "tester")
	if err != nil || !r.IsClosed {
		t.Fatalf("close after delete: closed=%v err=%v", r.IsClosed, err)
	}
	if got := auditSummaries(t, env, "stock", "restock-fulfill"); len(got) != 0 {
		t.Fatalf("unexpected fulfill audit: %v", got)
	}
}

func TestRestockDefaults(t *testing.T) {
	env := newTestEnv(t)
	r, err := env.Engine.CreateRestockItem(env.Ctx, engine.RestockCreateOptions{Qty: 0, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "Unnamed" || r.Unit != "ea" || r.Qty != 1 {
		t.Fatalf("unlinked defaults: %q %q %d", r.Name, r.Unit, r.Qty)
	}
}

func TestSuggestedRestock(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{Name: "Rags", OnRigQty: 1, MinQty: 3, BufferQty: 2, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := env.Engine.CreateSuggestedRestock(env.Ctx, it.ID, 4, "", "tester")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if r.Priority != domain.PriorityMedium || r.StockItemID == nil || *r.StockItemID != it.ID {
		t.Fatalf("suggested fields: %+v", r)
	}
	got := auditSummaries(t, env, "restock", "create")
	if len(got) != 1 || got[0] != "Suggested: Rags x4ea" {
		t.Fatalf("suggested audit = %v", got)
	}
}

func TestUsageDecrementTruncatesAndClamps(t *testing.T) {
	env := newTestEnv(t)
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{Name: "Rags", OnRigQty: 5, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	u, err := env.Engine.CreateUsageLog(env.Ctx, engine.UsageCreateOptions{StockItemID: &it.ID, Qty: 2.7, Actor: "tester"})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.ItemName != "Rags" {
		t.Fatalf("linked name fallback: %q", u.ItemName)
	}
	after, _ := env.Engine.Repo.GetStockItem(env.Ctx, it.ID)
	if after.OnRigQty != 3 {
		t.Fatalf("expected whole-unit decrement to 3, got %d", after.OnRigQty)
	}
	if _, err := env.Engine.CreateUsageLog(env.Ctx, engine.UsageCreateOptions{StockItemID: &it.ID, Qty: 10, Actor: "tester"}); err != nil {
		t.Fatal(err)
	}
	after, _ = env.Engine.Repo.GetStockItem(env.Ctx, it.ID)
	if after.OnRigQty != 0 {
		t.Fatalf("expected clamp at 0, got %d", after.OnRigQty)
	}
	got := auditSummaries(t, env, "usage", "create")
	if len(got) != 2 || got[0] != "Rags -2.7ea" {
		t.Fatalf("usage audit = %v", got)
	}
	// usage never writes a stock audit entry of its own
	if adj := auditSummaries(t, env, "stock", "adjust"); len(adj) != 0 {
		t.Fatalf("unexpected stock audit: %v", adj)
	}
}

func TestFuelWatchCreate(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateFuelWatch(env.Ctx, engine.FuelWatchOptions{
		TankCapacityL: 1200, StartPercent: 80, CriticalPercent: 25, HourlyUsageLPH: 40, Actor: "tester",
	})
	if err != nil {
		t.Fatalf("create fuel watch: %v", err)
	}
	if !task.IsFuelWatch || task.Title != "Fuel Watch" {
		t.Fatalf("task fields: %+v", task)
	}
	if task.StartedAt == nil || *task.StartedAt != "2024-06-01T08:00:00Z" {
		t.Fatalf("started_at = %v", task.StartedAt)
	}
	if task.StoredPriority() != domain.PriorityMedium {
		t.Fatalf("priority = %v", task.StoredPriority())
	}
	got := auditSummaries(t, env, "jobtask", "create-fuelwatch")
	want := "Cap 1200L; start 80%; crit 25%; 40.0 L/h"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("fuel watch audit = %v, want %q", got, want)
	}
}

func TestFaultSnapshotSurvivesEquipmentDelete(t *testing.T) {
	env := newTestEnv(t)
	eq, err := env.Engine.CreateEquipment(env.Ctx, "Mud pump", "main pump", "tester")
	if err != nil {
		t.Fatal(err)
	}
	f, err := env.Engine.CreateFault(env.Ctx, engine.FaultCreateOptions{
		EquipmentID: eq.ID, Description: "Leaking seal", Priority: domain.PriorityHigh, Actor: "tester",
	})
	if err != nil {
		t.Fatalf("create fault: %v", err)
	}
	if err := env.Engine.DeleteEquipment(env.Ctx, eq.ID, "tester"); err != nil {
		t.Fatalf("delete equipment: %v", err)
	}
	got, err := env.Engine.Repo.GetFault(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("get fault: %v", err)
	}
	if got.EquipmentName == nil || *got.EquipmentName != "Mud pump" {
		t.Fatalf("snapshot lost: %v", got.EquipmentName)
	}
}

func TestCreateFaultRequiresEquipment(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateFault(env.Ctx, engine.FaultCreateOptions{EquipmentID: 99, Description: "x", Actor: "tester"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNodeDeleteOrphansChildren(t *testing.T) {
	env := newTestEnv(t)
	parent, err := env.Engine.CreateLocationNode(env.Ctx, engine.NodeCreateOptions{Name: "Container A", Kind: "container", Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := env.Engine.CreateLocationNode(env.Ctx, engine.NodeCreateOptions{Name: "Shelf 1", ParentID: &parent.ID, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	it, err := env.Engine.CreateStockItem(env.Ctx, engine.StockCreateOptions{Name: "Bolts", OnRigQty: 1, LocationNodeID: &parent.ID, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteLocationNode(env.Ctx, parent.ID, "tester"); err != nil {
		t.Fatalf("delete node: %v", err)
	}
	got, err := env.Engine.Repo.GetLocationNode(env.Ctx, child.ID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if got.ParentID != nil {
		t.Fatalf("child not orphaned to root: %v", *got.ParentID)
	}
	// the stock link stays behind, now pointing at a missing node
	link, err := env.Engine.Repo.GetLinkForStock(env.Ctx, it.ID)
	if err != nil {
		t.Fatalf("link gone: %v", err)
	}
	if link.LocationNodeID != parent.ID {
		t.Fatalf("link moved: %d", link.LocationNodeID)
	}
}

func TestMoveLocationNodeAudit(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.Engine.CreateLocationNode(env.Ctx, engine.NodeCreateOptions{Name: "A", Actor: "tester"})
	b, _ := env.Engine.CreateLocationNode(env.Ctx, engine.NodeCreateOptions{Name: "B", Actor: "tester"})
	if err := env.Engine.MoveLocationNode(env.Ctx, b.ID, &a.ID, "tester"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := env.Engine.MoveLocationNode(env.Ctx, b.ID, nil, "tester"); err != nil {
		t.Fatalf("move to root: %v", err)
	}
	got := auditSummaries(t, env, "location", "move")
	if len(got) != 2 || got[0] != "Moved to parent 1" || got[1] != "Moved to root" {
		t.Fatalf("move audit = %v", got)
	}
}

func TestBitStatusValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateBit(env.Ctx, engine.BitCreateOptions{Serial: "B-1", Status: "RUSTY", Actor: "tester"})
	if !errors.Is(err, engine.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	b, err := env.Engine.CreateBit(env.Ctx, engine.BitCreateOptions{Serial: "B-1", Status: "NEW", Actor: "tester"})
	if err != nil || b.ID == 0 {
		t.Fatalf("create bit: %v", err)
	}
	if got := auditSummaries(t, env, "bit", "create"); len(got) != 1 || got[0] != "B-1" {
		t.Fatalf("bit audit = %v", got)
	}
}

func TestShroudCreateWritesNoAudit(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateShroud(env.Ctx, engine.ShroudCreateOptions{Name: "S-1", Actor: "tester"})
	if err != nil {
		t.Fatalf("create shroud: %v", err)
	}
	if s.Condition != "NEW" {
		t.Fatalf("default condition: %q", s.Condition)
	}
	if n := countAudit(t, env); n != 0 {
		t.Fatalf("expected no audit rows, got %d", n)
	}
}

func TestToggleTaskLeavesDoneFlag(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Grease rods", Priority: domain.PriorityLow, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.ToggleTask(env.Ctx, task.ID, "tester")
	if err != nil || !task.IsClosed {
		t.Fatalf("toggle: closed=%v err=%v", task.IsClosed, err)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.IsDone {
		t.Fatalf("toggle flipped is_done")
	}
}
