package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

const nodeColumns = `id,name,kind,parent_id,notes,created_at`

func scanNode(scan func(dest ...any) error) (domain.LocationNode, error) {
	var n domain.LocationNode
	var kind, notes sql.NullString
	var parent sql.NullInt64
	err := scan(&n.ID, &n.Name, &kind, &parent, &notes, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Kind = ptrString(kind)
	n.ParentID = ptrInt64(parent)
	if notes.Valid {
		n.Notes = notes.String
	}
	return n, nil
}

func (r Repo) listNodes(ctx context.Context, query string, args ...any) ([]domain.LocationNode, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LocationNode
	for rows.Next() {
		n, err := scanNode(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) ListLocationNodes(ctx context.Context) ([]domain.LocationNode, error) {
	return r.listNodes(ctx, `SELECT `+nodeColumns+` FROM location_nodes ORDER BY lower(name)`)
}

func (r Repo) GetLocationNode(ctx context.Context, id int64) (domain.LocationNode, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM location_nodes WHERE id=?`, id)
	return scanNode(row.Scan)
}

func (r Repo) GetLocationNodeTx(ctx context.Context, tx *sql.Tx, id int64) (domain.LocationNode, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM location_nodes WHERE id=?`, id)
	return scanNode(row.Scan)
}

func (r Repo) InsertLocationNodeTx(ctx context.Context, tx *sql.Tx, n domain.LocationNode) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO location_nodes(name,kind,parent_id,notes,created_at) VALUES (?,?,?,?,?)`,
		n.Name, nullableString(n.Kind), nullableInt64(n.ParentID), nullable(n.Notes), n.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateLocationNodeTx(ctx context.Context, tx *sql.Tx, n domain.LocationNode) error {
	res, err := tx.ExecContext(ctx, `UPDATE location_nodes SET name=?,kind=?,notes=? WHERE id=?`,
		n.Name, nullableString(n.Kind), nullable(n.Notes), n.ID)
	if err != nil {
		return err
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetLocationNodeParentTx(ctx context.Context, tx *sql.Tx, id int64, parentID *int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE location_nodes SET parent_id=? WHERE id=?`, nullableInt64(parentID), id)
	if err != nil {
		return err
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLocationNodeTx removes a node after re-parenting its children to the
// root. Stock links pointing at the node are left behind on purpose; the
// stock page shows them as a missing location.
func (r Repo) DeleteLocationNodeTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE location_nodes SET parent_id=NULL WHERE parent_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM location_nodes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkedStockCounts maps node id to the number of stock items linked there.
func (r Repo) LinkedStockCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT location_node_id, count(*) FROM stock_location_links GROUP BY location_node_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func scanLink(scan func(dest ...any) error) (domain.StockLocationLink, error) {
	var l domain.StockLocationLink
	err := scan(&l.ID, &l.StockItemID, &l.LocationNodeID, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) GetLinkForStock(ctx context.Context, stockID int64) (domain.StockLocationLink, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,stock_item_id,location_node_id,created_at FROM stock_location_links WHERE stock_item_id=?`, stockID)
	return scanLink(row.Scan)
}

func (r Repo) ListLinks(ctx context.Context) ([]domain.StockLocationLink, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,stock_item_id,location_node_id,created_at FROM stock_location_links`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StockLocationLink
	for rows.Next() {
		l, err := scanLink(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// UpsertLinkTx points a stock item at a node, replacing any existing link.
func (r Repo) UpsertLinkTx(ctx context.Context, tx *sql.Tx, stockID, nodeID int64, createdAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stock_location_links(stock_item_id,location_node_id,created_at) VALUES (?,?,?)
		ON CONFLICT(stock_item_id) DO UPDATE SET location_node_id=excluded.location_node_id`,
		stockID, nodeID, createdAt)
	return err
}

func (r Repo) DeleteLinkForStockTx(ctx context.Context, tx *sql.Tx, stockID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM stock_location_links WHERE stock_item_id=?`, stockID)
	return err
}
