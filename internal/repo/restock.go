package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

const restockColumns = `id,stock_item_id,name,qty,unit,priority,is_closed,created_at`

func scanRestockItem(scan func(dest ...any) error) (domain.RestockItem, error) {
	var it domain.RestockItem
	var stockID sql.NullInt64
	var prio int
	err := scan(&it.ID, &stockID, &it.Name, &it.Qty, &it.Unit, &prio, &it.IsClosed, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.StockItemID = ptrInt64(stockID)
	it.Priority = domain.Priority(prio)
	return it, nil
}

func (r Repo) listRestockItems(ctx context.Context, query string, args ...any) ([]domain.RestockItem, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RestockItem
	for rows.Next() {
		it, err := scanRestockItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// ListRestockItems returns requests open-first, then by urgency, newest id
// first.
func (r Repo) ListRestockItems(ctx context.Context) ([]domain.RestockItem, error) {
	return r.listRestockItems(ctx, `SELECT `+restockColumns+` FROM restock_items ORDER BY is_closed, priority, id DESC`)
}

// ListOpenUrgentRestock returns open priority-1 requests for the critical
// board.
func (r Repo) ListOpenUrgentRestock(ctx context.Context) ([]domain.RestockItem, error) {
	return r.listRestockItems(ctx, `SELECT `+restockColumns+` FROM restock_items WHERE is_closed=0 AND priority=1 ORDER BY id DESC`)
}

func (r Repo) CountOpenRestock(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM restock_items WHERE is_closed=0`).Scan(&n)
	return n, err
}

func (r Repo) GetRestockItem(ctx context.Context, id int64) (domain.RestockItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+restockColumns+` FROM restock_items WHERE id=?`, id)
	return scanRestockItem(row.Scan)
}

func (r Repo) GetRestockItemTx(ctx context.Context, tx *sql.Tx, id int64) (domain.RestockItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+restockColumns+` FROM restock_items WHERE id=?`, id)
	return scanRestockItem(row.Scan)
}

func (r Repo) InsertRestockItemTx(ctx context.Context, tx *sql.Tx, it domain.RestockItem) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO restock_items(stock_item_id,name,qty,unit,priority,is_closed,created_at) VALUES (?,?,?,?,?,?,?)`,
		nullableInt64(it.StockItemID), it.Name, it.Qty, it.Unit, int(it.Priority), it.IsClosed, it.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) SetRestockClosedTx(ctx context.Context, tx *sql.Tx, id int64, closed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE restock_items SET is_closed=? WHERE id=?`, closed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRestockItemTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM restock_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
