package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

func scanStockItem(scan func(dest ...any) error) (domain.StockItem, error) {
	var it domain.StockItem
	var loc sql.NullString
	err := scan(&it.ID, &it.Name, &it.OnRigQty, &it.MinQty, &it.BufferQty, &it.Unit, &loc, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Location = ptrString(loc)
	return it, nil
}

const stockColumns = `id,name,on_rig_qty,min_qty,buffer_qty,unit,location,created_at,updated_at`

func (r Repo) GetStockItem(ctx context.Context, id int64) (domain.StockItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stock_items WHERE id=?`, id)
	return scanStockItem(row.Scan)
}

func (r Repo) GetStockItemTx(ctx context.Context, tx *sql.Tx, id int64) (domain.StockItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stock_items WHERE id=?`, id)
	return scanStockItem(row.Scan)
}

func (r Repo) listStockItems(ctx context.Context, query string, args ...any) ([]domain.StockItem, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StockItem
	for rows.Next() {
		it, err := scanStockItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// ListStockItems returns every item ordered by name; area and free-text
// filtering happen at the caller, which also needs the location links.
func (r Repo) ListStockItems(ctx context.Context) ([]domain.StockItem, error) {
	return r.listStockItems(ctx, `SELECT `+stockColumns+` FROM stock_items ORDER BY lower(name)`)
}

// ListLowStockItems returns items below min or buffer, for the dashboard and
// the jobs critical board.
func (r Repo) ListLowStockItems(ctx context.Context) ([]domain.StockItem, error) {
	return r.listStockItems(ctx, `SELECT `+stockColumns+` FROM stock_items WHERE on_rig_qty < min_qty OR on_rig_qty < buffer_qty ORDER BY lower(name)`)
}

func (r Repo) CountLowStockItems(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM stock_items WHERE on_rig_qty < min_qty OR on_rig_qty < buffer_qty`).Scan(&n)
	return n, err
}

func (r Repo) InsertStockItemTx(ctx context.Context, tx *sql.Tx, it domain.StockItem) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO stock_items(name,on_rig_qty,min_qty,buffer_qty,unit,location,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		it.Name, it.OnRigQty, it.MinQty, it.BufferQty, it.Unit, nullableString(it.Location), it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateStockItemTx(ctx context.Context, tx *sql.Tx, it domain.StockItem) error {
	res, err := tx.ExecContext(ctx, `UPDATE stock_items SET name=?,on_rig_qty=?,min_qty=?,buffer_qty=?,unit=?,location=?,updated_at=? WHERE id=?`,
		it.Name, it.OnRigQty, it.MinQty, it.BufferQty, it.Unit, nullableString(it.Location), it.UpdatedAt, it.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetStockQtyTx(ctx context.Context, tx *sql.Tx, id int64, qty int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE stock_items SET on_rig_qty=?,updated_at=? WHERE id=?`, qty, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteStockItemTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM stock_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
