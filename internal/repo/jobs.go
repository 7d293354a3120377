package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

const taskColumns = `id,title,notes,priority,is_closed,is_done,is_fuel_watch,tank_capacity_l,start_percent,critical_percent,hourly_usage_lph,started_at,created_at`

func scanTask(scan func(dest ...any) error) (domain.JobTask, error) {
	var t domain.JobTask
	var notes, startedAt sql.NullString
	var prio, startPct, critPct sql.NullInt64
	var capacity, lph sql.NullFloat64
	err := scan(&t.ID, &t.Title, &notes, &prio, &t.IsClosed, &t.IsDone, &t.IsFuelWatch,
		&capacity, &startPct, &critPct, &lph, &startedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if notes.Valid {
		t.Notes = notes.String
	}
	if prio.Valid {
		p := domain.Priority(prio.Int64)
		t.Priority = &p
	}
	t.TankCapacityL = ptrFloat(capacity)
	t.StartPercent = ptrInt(startPct)
	t.CriticalPercent = ptrInt(critPct)
	t.HourlyUsageLPH = ptrFloat(lph)
	t.StartedAt = ptrString(startedAt)
	return t, nil
}

func (r Repo) listTasks(ctx context.Context, query string, args ...any) ([]domain.JobTask, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JobTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTasks returns every task, open first, then by urgency and newest id.
func (r Repo) ListTasks(ctx context.Context) ([]domain.JobTask, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM job_tasks ORDER BY is_closed, priority, id DESC`)
}

// ListOpenTasks returns tasks with is_closed=0; the escalation loop and the
// critical board both read from this.
func (r Repo) ListOpenTasks(ctx context.Context) ([]domain.JobTask, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM job_tasks WHERE is_closed=0 ORDER BY priority, id DESC`)
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.JobTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM job_tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.JobTask, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM job_tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.JobTask) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO job_tasks(title,notes,priority,is_closed,is_done,is_fuel_watch,tank_capacity_l,start_percent,critical_percent,hourly_usage_lph,started_at,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, nullable(t.Notes), int(t.StoredPriority()), t.IsClosed, t.IsDone, t.IsFuelWatch,
		nullableFloat(t.TankCapacityL), nullableInt(t.StartPercent), nullableInt(t.CriticalPercent),
		nullableFloat(t.HourlyUsageLPH), nullableString(t.StartedAt), t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) SetTaskClosedTx(ctx context.Context, tx *sql.Tx, id int64, closed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE job_tasks SET is_closed=? WHERE id=?`, closed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskPriority writes the priority field alone; the escalation loop
// relies on this being a single atomic statement.
func (r Repo) UpdateTaskPriority(ctx context.Context, id int64, p domain.Priority) error {
	return updateTaskPriority(ctx, r.DB, id, p)
}

func (r Repo) UpdateTaskPriorityTx(ctx context.Context, tx *sql.Tx, id int64, p domain.Priority) error {
	return updateTaskPriority(ctx, tx, id, p)
}

func updateTaskPriority(ctx context.Context, q execer, id int64, p domain.Priority) error {
	res, err := q.ExecContext(ctx, `UPDATE job_tasks SET priority=? WHERE id=?`, int(p), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM job_tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
