package repo

import (
	"context"
	"strings"

	"offsider/internal/domain"
)

// like builds the case-insensitive substring pattern used by the search
// queries. Matching lowercases both sides, so NULL columns simply never match.
func like(q string) string {
	return "%" + strings.ToLower(q) + "%"
}

func (r Repo) SearchStockItems(ctx context.Context, q string) ([]domain.StockItem, error) {
	p := like(q)
	return r.listStockItems(ctx, `SELECT `+stockColumns+` FROM stock_items
		WHERE lower(name) LIKE ? OR lower(unit) LIKE ? OR lower(location) LIKE ?
		ORDER BY lower(name)`, p, p, p)
}

func (r Repo) SearchRestockItems(ctx context.Context, q string) ([]domain.RestockItem, error) {
	p := like(q)
	return r.listRestockItems(ctx, `SELECT `+restockColumns+` FROM restock_items
		WHERE lower(name) LIKE ? OR lower(unit) LIKE ?
		ORDER BY id DESC`, p, p)
}

func (r Repo) SearchBits(ctx context.Context, q string) ([]domain.Bit, error) {
	p := like(q)
	return r.listBits(ctx, `SELECT `+bitColumns+` FROM bits
		WHERE lower(serial) LIKE ? OR lower(notes) LIKE ?
		ORDER BY id DESC`, p, p)
}

func (r Repo) SearchFaults(ctx context.Context, q string) ([]domain.EquipmentFault, error) {
	p := like(q)
	return r.listFaults(ctx, `SELECT `+faultColumns+` FROM equipment_faults
		WHERE lower(description) LIKE ? OR lower(equipment_name) LIKE ?
		ORDER BY id DESC`, p, p)
}

func (r Repo) SearchHandoverNotes(ctx context.Context, q string) ([]domain.HandoverNote, error) {
	p := like(q)
	return r.listHandover(ctx, `SELECT `+handoverColumns+` FROM handover_notes
		WHERE lower(title) LIKE ? OR lower(body) LIKE ?
		ORDER BY id DESC`, p, p)
}

func (r Repo) SearchTasks(ctx context.Context, q string) ([]domain.JobTask, error) {
	p := like(q)
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM job_tasks
		WHERE lower(title) LIKE ? OR lower(notes) LIKE ?
		ORDER BY id DESC`, p, p)
}

func (r Repo) SearchLocationNodes(ctx context.Context, q string) ([]domain.LocationNode, error) {
	p := like(q)
	return r.listNodes(ctx, `SELECT `+nodeColumns+` FROM location_nodes
		WHERE lower(name) LIKE ? OR lower(kind) LIKE ? OR lower(notes) LIKE ?
		ORDER BY lower(name)`, p, p, p)
}
