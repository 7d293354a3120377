// Package scheduler runs the background loop that escalates open fuel-watch
// tasks across every rig database. Stored priority is a one-way ratchet:
// the loop only moves it toward urgent, and every move gets an audit entry.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"offsider/internal/audit"
	"offsider/internal/domain"
	"offsider/internal/fuelwatch"
	"offsider/internal/repo"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 60 * time.Second

// Registry lists the rig ids to sweep. db.DirRegistry is the concrete
// implementation.
type Registry interface {
	ListRigIDs() ([]string, error)
}

// Stores hands out the database connection for one rig.
type Stores interface {
	Get(rig string) (*sql.DB, error)
}

type Scheduler struct {
	Registry Registry
	Stores   Stores
	Interval time.Duration
	Logger   *log.Logger
	Now      func() time.Time
}

func New(reg Registry, stores Stores) *Scheduler {
	return &Scheduler{Registry: reg, Stores: stores, Interval: DefaultInterval}
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return DefaultInterval
}

// Run sweeps immediately, then once per interval, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.interval()
	s.logger().Printf("[scheduler] started, polling every %ds", int(interval/time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger().Printf("[scheduler] stopped")
			return
		case <-ticker.C:
		}
	}
}

// Start runs the loop in its own goroutine. The returned stop function
// cancels it and waits for the current pass to finish.
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Sweep runs one escalation pass over every rig. A failing rig is logged
// and never stops the others.
func (s *Scheduler) Sweep(ctx context.Context) {
	rigs, err := s.Registry.ListRigIDs()
	if err != nil {
		s.logger().Printf("[scheduler] error listing rigs: %v", err)
		return
	}
	for _, rig := range rigs {
		if ctx.Err() != nil {
			return
		}
		n, err := s.sweepRig(ctx, rig)
		if err != nil {
			s.logger().Printf("[scheduler] error on rig %s: %v", rig, err)
			continue
		}
		if n > 0 {
			s.logger().Printf("[scheduler] %s: escalated %d task(s).", rig, n)
		}
	}
}

func (s *Scheduler) sweepRig(ctx context.Context, rig string) (int, error) {
	conn, err := s.Stores.Get(rig)
	if err != nil {
		return 0, err
	}
	r := repo.Repo{DB: conn}
	tasks, err := r.ListOpenTasks(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	escalated := 0
	for _, t := range tasks {
		if !t.IsFuelWatch {
			continue
		}
		stored := t.StoredPriority()
		effective := fuelwatch.EffectivePriority(t, now)
		if !effective.MoreUrgentThan(stored) {
			continue
		}
		if err := r.UpdateTaskPriority(ctx, t.ID, effective); err != nil {
			return escalated, err
		}
		escalated++
		// the escalation is already committed; the audit entry rides in
		// its own transaction so losing it cannot undo the priority
		if err := s.appendAudit(ctx, conn, t, stored, effective, now); err != nil {
			return escalated, err
		}
	}
	return escalated, nil
}

func (s *Scheduler) appendAudit(ctx context.Context, conn *sql.DB, t domain.JobTask, stored, effective domain.Priority, now time.Time) error {
	summary := fmt.Sprintf("Priority %d → %d: %s", stored, effective, t.Title)
	if snap, ok := fuelwatch.Evaluate(t, now); ok {
		summary += fmt.Sprintf(" (now ~%d%%, crit in %sh)", snap.Percent, snap.FormatHours())
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	w := audit.Writer{DB: conn, Now: s.Now}
	if err := w.Append(ctx, tx, audit.SystemActor, "jobtask", t.ID, "auto-escalate", summary); err != nil {
		return err
	}
	return tx.Commit()
}
