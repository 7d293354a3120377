package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

func scanEquipment(scan func(dest ...any) error) (domain.Equipment, error) {
	var e domain.Equipment
	var desc sql.NullString
	err := scan(&e.ID, &e.Name, &desc, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if desc.Valid {
		e.Description = desc.String
	}
	return e, nil
}

func (r Repo) ListEquipment(ctx context.Context) ([]domain.Equipment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,description,created_at FROM equipment ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) GetEquipment(ctx context.Context, id int64) (domain.Equipment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM equipment WHERE id=?`, id)
	return scanEquipment(row.Scan)
}

func (r Repo) InsertEquipmentTx(ctx context.Context, tx *sql.Tx, e domain.Equipment) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO equipment(name,description,created_at) VALUES (?,?,?)`,
		e.Name, nullable(e.Description), e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) DeleteEquipmentTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM equipment WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const faultColumns = `id,equipment_id,equipment_name,description,is_resolved,priority,created_at`

func scanFault(scan func(dest ...any) error) (domain.EquipmentFault, error) {
	var f domain.EquipmentFault
	var eqID sql.NullInt64
	var eqName sql.NullString
	var prio int
	err := scan(&f.ID, &eqID, &eqName, &f.Description, &f.IsResolved, &prio, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	f.EquipmentID = ptrInt64(eqID)
	f.EquipmentName = ptrString(eqName)
	f.Priority = domain.Priority(prio)
	return f, nil
}

func (r Repo) listFaults(ctx context.Context, query string, args ...any) ([]domain.EquipmentFault, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EquipmentFault
	for rows.Next() {
		f, err := scanFault(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) ListFaults(ctx context.Context) ([]domain.EquipmentFault, error) {
	return r.listFaults(ctx, `SELECT `+faultColumns+` FROM equipment_faults ORDER BY is_resolved, priority, id DESC`)
}

// ListOpenUrgentFaults returns unresolved P0/P1 faults for the critical
// board.
func (r Repo) ListOpenUrgentFaults(ctx context.Context) ([]domain.EquipmentFault, error) {
	return r.listFaults(ctx, `SELECT `+faultColumns+` FROM equipment_faults WHERE is_resolved=0 AND priority<=1 ORDER BY priority, id DESC`)
}

func (r Repo) CountOpenFaults(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM equipment_faults WHERE is_resolved=0`).Scan(&n)
	return n, err
}

func (r Repo) GetFault(ctx context.Context, id int64) (domain.EquipmentFault, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+faultColumns+` FROM equipment_faults WHERE id=?`, id)
	return scanFault(row.Scan)
}

func (r Repo) GetFaultTx(ctx context.Context, tx *sql.Tx, id int64) (domain.EquipmentFault, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+faultColumns+` FROM equipment_faults WHERE id=?`, id)
	return scanFault(row.Scan)
}

func (r Repo) InsertFaultTx(ctx context.Context, tx *sql.Tx, f domain.EquipmentFault) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO equipment_faults(equipment_id,equipment_name,description,is_resolved,priority,created_at) VALUES (?,?,?,?,?,?)`,
		nullableInt64(f.EquipmentID), nullableString(f.EquipmentName), f.Description, f.IsResolved, int(f.Priority), f.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) SetFaultResolvedTx(ctx context.Context, tx *sql.Tx, id int64, resolved bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE equipment_faults SET is_resolved=? WHERE id=?`, resolved, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteFaultTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM equipment_faults WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
