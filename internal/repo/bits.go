package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

const bitColumns = `id,serial,status,size_mm,life_meters_expected,life_meters_used,shroud_id,notes,created_at`

func scanBit(scan func(dest ...any) error) (domain.Bit, error) {
	var b domain.Bit
	var size, lifeExp sql.NullFloat64
	var shroudID sql.NullInt64
	var notes sql.NullString
	err := scan(&b.ID, &b.Serial, &b.Status, &size, &lifeExp, &b.LifeMetersUsed, &shroudID, &notes, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.SizeMM = ptrFloat(size)
	b.LifeMetersExpected = ptrFloat(lifeExp)
	b.ShroudID = ptrInt64(shroudID)
	if notes.Valid {
		b.Notes = notes.String
	}
	return b, nil
}

func (r Repo) listBits(ctx context.Context, query string, args ...any) ([]domain.Bit, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Bit
	for rows.Next() {
		b, err := scanBit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) ListBits(ctx context.Context) ([]domain.Bit, error) {
	return r.listBits(ctx, `SELECT `+bitColumns+` FROM bits ORDER BY id DESC`)
}

// ListAttentionBits returns bits whose status asks for action, for the
// dashboard count and the critical board.
func (r Repo) ListAttentionBits(ctx context.Context) ([]domain.Bit, error) {
	return r.listBits(ctx, `SELECT `+bitColumns+` FROM bits WHERE status IN ('NEEDS_RESHARPEN','VERY_USED') ORDER BY id DESC`)
}

func (r Repo) GetBit(ctx context.Context, id int64) (domain.Bit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bitColumns+` FROM bits WHERE id=?`, id)
	return scanBit(row.Scan)
}

func (r Repo) InsertBitTx(ctx context.Context, tx *sql.Tx, b domain.Bit) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO bits(serial,status,size_mm,life_meters_expected,life_meters_used,shroud_id,notes,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.Serial, b.Status, nullableFloat(b.SizeMM), nullableFloat(b.LifeMetersExpected), b.LifeMetersUsed,
		nullableInt64(b.ShroudID), nullable(b.Notes), b.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const shroudColumns = `id,name,condition,notes,created_at`

func scanShroud(scan func(dest ...any) error) (domain.Shroud, error) {
	var s domain.Shroud
	var notes sql.NullString
	err := scan(&s.ID, &s.Name, &s.Condition, &notes, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if notes.Valid {
		s.Notes = notes.String
	}
	return s, nil
}

func (r Repo) ListShrouds(ctx context.Context) ([]domain.Shroud, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+shroudColumns+` FROM shrouds ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Shroud
	for rows.Next() {
		s, err := scanShroud(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetShroud(ctx context.Context, id int64) (domain.Shroud, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+shroudColumns+` FROM shrouds WHERE id=?`, id)
	return scanShroud(row.Scan)
}

func (r Repo) InsertShroudTx(ctx context.Context, tx *sql.Tx, s domain.Shroud) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO shrouds(name,condition,notes,created_at) VALUES (?,?,?,?)`,
		s.Name, s.Condition, nullable(s.Notes), s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
