package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

const handoverColumns = `id,title,body,priority,is_closed,author,created_at`

func scanHandover(scan func(dest ...any) error) (domain.HandoverNote, error) {
	var h domain.HandoverNote
	var body sql.NullString
	var author sql.NullString
	var prio int
	err := scan(&h.ID, &h.Title, &body, &prio, &h.IsClosed, &author, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	if body.Valid {
		h.Body = body.String
	}
	h.Author = ptrString(author)
	h.Priority = domain.Priority(prio)
	return h, nil
}

func (r Repo) listHandover(ctx context.Context, query string, args ...any) ([]domain.HandoverNote, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HandoverNote
	for rows.Next() {
		h, err := scanHandover(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) ListHandoverNotes(ctx context.Context) ([]domain.HandoverNote, error) {
	return r.listHandover(ctx, `SELECT `+handoverColumns+` FROM handover_notes ORDER BY is_closed, priority, id DESC`)
}

// ListOpenUrgentHandover returns open P0/P1 notes for the critical board.
func (r Repo) ListOpenUrgentHandover(ctx context.Context) ([]domain.HandoverNote, error) {
	return r.listHandover(ctx, `SELECT `+handoverColumns+` FROM handover_notes WHERE is_closed=0 AND priority<=1 ORDER BY priority, id DESC`)
}

func (r Repo) GetHandoverNoteTx(ctx context.Context, tx *sql.Tx, id int64) (domain.HandoverNote, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+handoverColumns+` FROM handover_notes WHERE id=?`, id)
	return scanHandover(row.Scan)
}

func (r Repo) InsertHandoverNoteTx(ctx context.Context, tx *sql.Tx, h domain.HandoverNote) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO handover_notes(title,body,priority,is_closed,author,created_at) VALUES (?,?,?,?,?,?)`,
		h.Title, nullable(h.Body), int(h.Priority), h.IsClosed, nullableString(h.Author), h.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) SetHandoverClosedTx(ctx context.Context, tx *sql.Tx, id int64, closed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE handover_notes SET is_closed=? WHERE id=?`, closed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteHandoverNoteTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM handover_notes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
