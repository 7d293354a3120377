package scheduler_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"offsider/internal/db"
	"offsider/internal/domain"
	"offsider/internal/engine"
	"offsider/internal/migrate"
	"offsider/internal/scheduler"
)

var watchStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newRig(t *testing.T, stores *db.Stores, rig string) engine.Engine {
	t.Helper()
	conn, err := stores.Get(rig)
	if err != nil {
		t.Fatalf("open rig %s: %v", rig, err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return watchStart }
	eng.Audit.Now = eng.Now
	return eng
}

func escalations(t *testing.T, ctx context.Context, conn *sql.DB) []string {
	t.Helper()
	rows, err := conn.QueryContext(ctx, `SELECT summary FROM audit_logs WHERE action='auto-escalate' AND actor='system' ORDER BY id`)
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

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSweepEscalatesOnce(t *testing.T) {
	dir := t.TempDir()
	stores := db.NewStores(dir, migrate.Migrate)
	eng := newRig(t, stores, "default")
	ctx := context.Background()

	task, err := eng.CreateFuelWatch(ctx, engine.FuelWatchOptions{
		TankCapacityL: 1000, StartPercent: 80, CriticalPercent: 25, HourlyUsageLPH: 50, Actor: "tester",
	})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}

	sched := scheduler.New(db.DirRegistry{Dir: dir}, stores)
	sched.Logger = quiet()
	sched.Now = func() time.Time { return watchStart.Add(10 * time.Hour) }
	sched.Sweep(ctx)

	got, err := eng.Repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StoredPriority() != domain.PriorityHigh {
		t.Fatalf("priority = %v, want high", got.StoredPriority())
	}
	sums := escalations(t, ctx, eng.DB)
	want := "Priority 2 → 1: Fuel Watch (now ~30%, crit in 1.0h)"
	if len(sums) != 1 || sums[0] != want {
		t.Fatalf("audit = %v, want %q", sums, want)
	}

	// same clock again: the ratchet holds and nothing new is written
	sched.Sweep(ctx)
	if sums := escalations(t, ctx, eng.DB); len(sums) != 1 {
		t.Fatalf("second sweep wrote again: %v", sums)
	}

	// deeper into depletion: high moves to critical
	sched.Now = func() time.Time { return watchStart.Add(12 * time.Hour) }
	sched.Sweep(ctx)
	got, _ = eng.Repo.GetTask(ctx, task.ID)
	if got.StoredPriority() != domain.PriorityCritical {
		t.Fatalf("priority = %v, want critical", got.StoredPriority())
	}
	sums = escalations(t, ctx, eng.DB)
	if len(sums) != 2 || sums[1] != "Priority 1 → 0: Fuel Watch (now ~20%, crit in 0.0h)" {
		t.Fatalf("audit = %v", sums)
	}

	// a clock running backwards never de-escalates
	sched.Now = func() time.Time { return watchStart.Add(1 * time.Hour) }
	sched.Sweep(ctx)
	got, _ = eng.Repo.GetTask(ctx, task.ID)
	if got.StoredPriority() != domain.PriorityCritical {
		t.Fatalf("de-escalated to %v", got.StoredPriority())
	}
	if sums := escalations(t, ctx, eng.DB); len(sums) != 2 {
		t.Fatalf("backward clock wrote: %v", sums)
	}
}

func TestSweepSkipsClosedAndPlainTasks(t *testing.T) {
	dir := t.TempDir()
	stores := db.NewStores(dir, migrate.Migrate)
	eng := newRig(t, stores, "default")
	ctx := context.Background()

	plain, err := eng.CreateTask(ctx, engine.TaskCreateOptions{Title: "Sort core shed", Priority: domain.PriorityLow, Actor: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	watch, err := eng.CreateFuelWatch(ctx, engine.FuelWatchOptions{
		TankCapacityL: 500, StartPercent: 90, CriticalPercent: 20, HourlyUsageLPH: 100, Actor: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.ToggleTask(ctx, watch.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	sched := scheduler.New(db.DirRegistry{Dir: dir}, stores)
	sched.Logger = quiet()
	sched.Now = func() time.Time { return watchStart.Add(100 * time.Hour) }
	sched.Sweep(ctx)

	if got, _ := eng.Repo.GetTask(ctx, plain.ID); got.StoredPriority() != domain.PriorityLow {
		t.Fatalf("plain task moved to %v", got.StoredPriority())
	}
	if got, _ := eng.Repo.GetTask(ctx, watch.ID); got.StoredPriority() != domain.PriorityMedium {
		t.Fatalf("closed watch moved to %v", got.StoredPriority())
	}
	if sums := escalations(t, ctx, eng.DB); len(sums) != 0 {
		t.Fatalf("unexpected audit: %v", sums)
	}
}

type listRegistry []string

func (l listRegistry) ListRigIDs() ([]string, error) { return l, nil }

type mapStores map[string]*sql.DB

func (m mapStores) Get(rig string) (*sql.DB, error) {
	if conn, ok := m[rig]; ok {
		return conn, nil
	}
	return nil, fmt.Errorf("no store for rig %s", rig)
}

func TestSweepContinuesPastFailingRig(t *testing.T) {
	dir := t.TempDir()
	stores := db.NewStores(dir, migrate.Migrate)
	eng := newRig(t, stores, "rc02")
	ctx := context.Background()
	if _, err := eng.CreateFuelWatch(ctx, engine.FuelWatchOptions{
		TankCapacityL: 1000, StartPercent: 80, CriticalPercent: 25, HourlyUsageLPH: 50, Actor: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	sched := scheduler.New(listRegistry{"ghost", "rc02"}, mapStores{"rc02": eng.DB})
	sched.Logger = log.New(&buf, "", 0)
	sched.Now = func() time.Time { return watchStart.Add(20 * time.Hour) }
	sched.Sweep(ctx)

	out := buf.String()
	if !strings.Contains(out, "error on rig ghost") {
		t.Fatalf("missing rig error in %q", out)
	}
	if !strings.Contains(out, "rc02: escalated 1 task(s).") {
		t.Fatalf("missing escalation line in %q", out)
	}
}

func TestStartStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	stores := db.NewStores(dir, migrate.Migrate)
	var buf bytes.Buffer
	sched := scheduler.New(db.DirRegistry{Dir: dir}, stores)
	sched.Interval = 10 * time.Millisecond
	sched.Logger = log.New(&buf, "", 0)

	stop := sched.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	stop()

	out := buf.String()
	if !strings.Contains(out, "[scheduler] started") {
		t.Fatalf("missing start line in %q", out)
	}
	if !strings.Contains(out, "[scheduler] stopped") {
		t.Fatalf("missing stop line in %q", out)
	}
}
