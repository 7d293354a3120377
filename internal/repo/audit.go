package repo

import (
	"context"
	"database/sql"
	"strings"

	"offsider/internal/domain"
)

// AuditPageSize rows per page on the audit browser.
const AuditPageSize = 100

type AuditFilters struct {
	Actor  string
	Entity string
	Q      string
}

const auditColumns = `id,created_at,actor,entity,entity_id,action,summary`

func scanAudit(scan func(dest ...any) error) (domain.AuditLog, error) {
	var a domain.AuditLog
	var entityID sql.NullInt64
	var summary sql.NullString
	err := scan(&a.ID, &a.CreatedAt, &a.Actor, &a.Entity, &entityID, &a.Action, &summary)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.EntityID = ptrInt64(entityID)
	if summary.Valid {
		a.Summary = summary.String
	}
	return a, nil
}

func auditWhere(f AuditFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Actor != "" {
		conds = append(conds, "actor=?")
		args = append(args, f.Actor)
	}
	if f.Entity != "" {
		conds = append(conds, "entity=?")
		args = append(args, f.Entity)
	}
	if f.Q != "" {
		conds = append(conds, "lower(summary) LIKE '%'||lower(?)||'%'")
		args = append(args, f.Q)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListAuditLogs returns one page, newest first, with the filtered total for
// the pager.
func (r Repo) ListAuditLogs(ctx context.Context, f AuditFilters, page int) ([]domain.AuditLog, int, error) {
	if page < 1 {
		page = 1
	}
	where, args := auditWhere(f)

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, AuditPageSize, (page-1)*AuditPageSize)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []domain.AuditLog
	for rows.Next() {
		a, err := scanAudit(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, a)
	}
	return res, total, rows.Err()
}

func (r Repo) GetAuditLog(ctx context.Context, id int64) (domain.AuditLog, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id=?`, id)
	return scanAudit(row.Scan)
}

// RecentAuditLogs feeds the dashboard activity card.
func (r Repo) RecentAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditLog
	for rows.Next() {
		a, err := scanAudit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountAuditByAction(ctx context.Context, action string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM audit_logs WHERE action=?`, action).Scan(&n)
	return n, err
}
