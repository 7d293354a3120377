package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"offsider/internal/audit"
	"offsider/internal/domain"
	"offsider/internal/repo"
)

// ErrConflict is returned when a stock write carries a concurrency token
// older than the row's updated_at.
var ErrConflict = errors.New("changed by someone else since the form was loaded")

// ErrInvalidStatus is returned for a bit status or shroud condition outside
// the allowed set.
var ErrInvalidStatus = errors.New("invalid status")

// Engine runs each mutation as one transaction: write, audit, commit.
// One Engine per rig store.
type Engine struct {
	DB    *sql.DB
	Repo  repo.Repo
	Audit audit.Writer
	Now   func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:    db,
		Repo:  repo.Repo{DB: db},
		Audit: audit.Writer{DB: db},
		Now:   time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ConcurrencyToken renders a row's updated_at as the if_unmodified_since form
// token: UTC, second precision, epoch when the stored value is unparseable.
func ConcurrencyToken(updatedAt string) string {
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		t = time.Unix(0, 0)
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// staleToken reports whether the row changed after the client token was
// issued. A missing or unparseable value on either side skips the check.
func staleToken(token, updatedAt string) bool {
	client, err := time.Parse(time.RFC3339, token)
	if err != nil {
		return false
	}
	server, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return false
	}
	return server.After(client)
}

// StockCreateOptions are parameters for creating a stock item.
type StockCreateOptions struct {
	Name           string
	OnRigQty       int
	MinQty         int
	BufferQty      int
	Unit           string
	Location       string
	LocationNodeID *int64
	Actor          string
}

func (e Engine) CreateStockItem(ctx context.Context, opts StockCreateOptions) (domain.StockItem, error) {
	if opts.Name == "" {
		return domain.StockItem{}, errors.New("name is required")
	}
	if opts.Unit == "" {
		opts.Unit = "ea"
	}
	now := e.timestamp()
	it := domain.StockItem{
		Name:      opts.Name,
		OnRigQty:  opts.OnRigQty,
		MinQty:    opts.MinQty,
		BufferQty: opts.BufferQty,
		Unit:      opts.Unit,
		Location:  optional(opts.Location),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StockItem{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertStockItemTx(ctx, tx, it)
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("insert stock item: %w", err)
	}
	it.ID = id
	if opts.LocationNodeID != nil {
		if err := e.Repo.UpsertLinkTx(ctx, tx, id, *opts.LocationNodeID, now); err != nil {
			return domain.StockItem{}, fmt.Errorf("link stock item: %w", err)
		}
	}
	if err := e.Audit.Append(ctx, tx, opts.Actor, "stock", id, "create", it.Name); err != nil {
		return domain.StockItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StockItem{}, err
	}
	return it, nil
}

// StockUpdateOptions are parameters for editing a stock item. A nil
// LocationNodeID removes any existing node link.
type StockUpdateOptions struct {
	ID                int64
	IfUnmodifiedSince string
	Name              string
	OnRigQty          int
	MinQty            int
	BufferQty         int
	Unit              string
	Location          string
	LocationNodeID    *int64
	Actor             string
}

func (e Engine) UpdateStockItem(ctx context.Context, opts StockUpdateOptions) (domain.StockItem, error) {
	before, err := e.Repo.GetStockItem(ctx, opts.ID)
	if err != nil {
		return domain.StockItem{}, err
	}
	if staleToken(opts.IfUnmodifiedSince, before.UpdatedAt) {
		return before, ErrConflict
	}
	if opts.Unit == "" {
		opts.Unit = "ea"
	}
	it := before
	it.Name = opts.Name
	it.OnRigQty = opts.OnRigQty
	it.MinQty = opts.MinQty
	it.BufferQty = opts.BufferQty
	it.Unit = opts.Unit
	it.Location = optional(opts.Location)
	it.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StockItem{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateStockItemTx(ctx, tx, it); err != nil {
		return domain.StockItem{}, err
	}
	if opts.LocationNodeID != nil {
		if err := e.Repo.UpsertLinkTx(ctx, tx, it.ID, *opts.LocationNodeID, it.UpdatedAt); err != nil {
			return domain.StockItem{}, fmt.Errorf("link stock item: %w", err)
		}
	} else if err := e.Repo.DeleteLinkForStockTx(ctx, tx, it.ID); err != nil {
		return domain.StockItem{}, err
	}
	summary := fmt.Sprintf("%s [%d/%d/%d %s] → %s [%d/%d/%d %s]",
		before.Name, before.OnRigQty, before.MinQty, before.BufferQty, before.Unit,
		it.Name, it.OnRigQty, it.MinQty, it.BufferQty, it.Unit)
	if err := e.Audit.Append(ctx, tx, opts.Actor, "stock", it.ID, "update", summary); err != nil {
		return domain.StockItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StockItem{}, err
	}
	return it, nil
}

// AdjustStock applies a quick +/- delta to on-rig quantity, clamped at zero.
func (e Engine) AdjustStock(ctx context.Context, id int64, delta int, ifUnmodifiedSince, actor string) (domain.StockItem, error) {
	it, err := e.Repo.GetStockItem(ctx, id)
	if err != nil {
		return domain.StockItem{}, err
	}
	if staleToken(ifUnmodifiedSince, it.UpdatedAt) {
		return it, ErrConflict
	}
	before := it.OnRigQty
	after := before + delta
	if after < 0 {
		after = 0
	}
	it.OnRigQty = after
	it.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StockItem{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetStockQtyTx(ctx, tx, id, after, it.UpdatedAt); err != nil {
		return domain.StockItem{}, err
	}
	summary := fmt.Sprintf("%s: %d → %d (%+d)", it.Name, before, after, delta)
	if err := e.Audit.Append(ctx, tx, actor, "stock", id, "adjust", summary); err != nil {
		return domain.StockItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StockItem{}, err
	}
	return it, nil
}

// DeleteStockItem removes the item and its node link. Restock requests that
// referenced it stay behind under their own name.
func (e Engine) DeleteStockItem(ctx context.Context, id int64, actor string) error {
	it, err := e.Repo.GetStockItem(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteLinkForStockTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Repo.DeleteStockItemTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, actor, "stock", id, "delete", it.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// RestockCreateOptions are parameters for creating a restock request. Name
// and unit fall back to the linked stock item, then "Unnamed" / "ea".
type RestockCreateOptions struct {
	StockItemID *int64
	Name        string
	Qty         int
	Unit        string
	Priority    domain.Priority
	Actor       string
}

func (e Engine) CreateRestockItem(ctx context.Context, opts RestockCreateOptions) (domain.RestockItem, error) {
	var linked *domain.StockItem
	if opts.StockItemID != nil {
		s, err := e.Repo.GetStockItem(ctx, *opts.StockItemID)
		if err == nil {
			linked = &s
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.RestockItem{}, err
		}
	}
	name := opts.Name
	if name == "" {
		if linked != nil {
			name = linked.Name
		} else {
			name = "Unnamed"
		}
	}
	unit := opts.Unit
	if unit == "" {
		if linked != nil {
			unit = linked.Unit
		} else {
			unit = "ea"
		}
	}
	qty := opts.Qty
	if qty <= 0 {
		qty = 1
	}
	it := domain.RestockItem{
		Name:      name,
		Qty:       qty,
		Unit:      unit,
		Priority:  opts.Priority,
		CreatedAt: e.timestamp(),
	}
	if linked != nil {
		it.StockItemID = &linked.ID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RestockItem{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertRestockItemTx(ctx, tx, it)
	if err != nil {
		return domain.RestockItem{}, fmt.Errorf("insert restock item: %w", err)
	}
	it.ID = id
	if err := e.Audit.Append(ctx, tx, opts.Actor, "restock", id, "create", it.Name); err != nil {
		return domain.RestockItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RestockItem{}, err
	}
	return it, nil
}

// CreateSuggestedRestock turns a top-up suggestion into a medium-priority
// request for the given stock item.
func (e Engine) CreateSuggestedRestock(ctx context.Context, stockID int64, qty int, unit, actor string) (domain.RestockItem, error) {
	s, err := e.Repo.GetStockItem(ctx, stockID)
	if err != nil {
		return domain.RestockItem{}, err
	}
	if unit == "" {
		unit = s.Unit
	}
	if unit == "" {
		unit = "ea"
	}
	it := domain.RestockItem{
		StockItemID: &s.ID,
		Name:        s.Name,
		Qty:         qty,
		Unit:        unit,
		Priority:    domain.PriorityMedium,
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RestockItem{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertRestockItemTx(ctx, tx, it)
	if err != nil {
		return domain.RestockItem{}, fmt.Errorf("insert restock item: %w", err)
	}
	it.ID = id
	summary := fmt.Sprintf("Suggested: %s x%d%s", it.Name, it.Qty, it.Unit)
	if err := e.Audit.Append(ctx, tx, actor, "restock", id, "create", summary); err != nil {
		return domain.RestockItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RestockItem{}, err
	}
	return it, nil
}

// ToggleRestock flips a request between open and closed. Closing a request
// still linked to a stock item auto-fulfills it: the on-rig quantity goes up
// by the requested amount, with its own audit entry.
func (e Engine) ToggleRestock(ctx context.Context, id int64, actor string) (domain.RestockItem, error) {
	r, err := e.Repo.GetRestockItem(ctx, id)
	if err != nil {
		return domain.RestockItem{}, err
	}
	closing := !r.IsClosed

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RestockItem{}, err
	}
	defer tx.Rollback()

	if closing && r.StockItemID != nil {
		s, err := e.Repo.GetStockItemTx(ctx, tx, *r.StockItemID)
		switch {
		case err == nil:
			before := s.OnRigQty
			after := before + r.Qty
			if err := e.Repo.SetStockQtyTx(ctx, tx, s.ID, after, e.timestamp()); err != nil {
				return domain.RestockItem{}, err
			}
			summary := fmt.Sprintf("%s: %d → %d (+%d)", s.Name, before, after, r.Qty)
			if err := e.Audit.Append(ctx, tx, actor, "stock", s.ID, "restock-fulfill", summary); err != nil {
				return domain.RestockItem{}, err
			}
		case errors.Is(err, repo.ErrNotFound):
			// linked item was deleted; close without fulfilling
		default:
			return domain.RestockItem{}, err
		}
	}
	if err := e.Repo.SetRestockClosedTx(ctx, tx, id, closing); err != nil {
		return domain.RestockItem{}, err
	}
	action := "reopen"
	if closing {
		action = "close"
	}
	if err := e.Audit.Append(ctx, tx, actor, "restock", id, action, r.Name); err != nil {
		return domain.RestockItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RestockItem{}, err
	}
	r.IsClosed = closing
	return r, nil
}

func (e Engine) DeleteRestockItem(ctx context.Context, id int64, actor string) error {
	r, err := e.Repo.GetRestockItem(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteRestockItemTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, actor, "restock", id, "delete", r.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// BitCreateOptions are parameters for registering a drill bit.
type BitCreateOptions struct {
	Serial             string
	Status             string
	SizeMM             *float64
	LifeMetersExpected *float64
	LifeMetersUsed     float64
	ShroudID           *int64
	Notes              string
	Actor              string
}

func (e Engine) CreateBit(ctx context.Context, opts BitCreateOptions) (domain.Bit, error) {
	if opts.Serial == "" {
		return domain.Bit{}, errors.New("serial is required")
	}
	if !domain.ValidBitStatus(opts.Status) {
		return domain.Bit{}, ErrInvalidStatus
	}
	b := domain.Bit{
		Serial:             opts.Serial,
		Status:             opts.Status,
		SizeMM:             opts.SizeMM,
		LifeMetersExpected: opts.LifeMetersExpected,
		LifeMetersUsed:     opts.LifeMetersUsed,
		ShroudID:           opts.ShroudID,
		Notes:              opts.Notes,
		CreatedAt:          e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bit{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertBitTx(ctx, tx, b)
	if err != nil {
		return domain.Bit{}, fmt.Errorf("insert bit: %w", err)
	}
	b.ID = id
	if err := e.Audit.Append(ctx, tx, opts.Actor, "bit", id, "create", b.Serial); err != nil {
		return domain.Bit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bit{}, err
	}
	return b, nil
}

// ShroudCreateOptions are parameters for registering a shroud.
type ShroudCreateOptions struct {
	Name      string
	Condition string
	Notes     string
	Actor     string
}

func (e Engine) CreateShroud(ctx context.Context, opts ShroudCreateOptions) (domain.Shroud, error) {
	if opts.Name == "" {
		return domain.Shroud{}, errors.New("name is required")
	}
	if opts.Condition == "" {
		opts.Condition = "NEW"
	}
	if !domain.ValidShroudCondition(opts.Condition) {
		return domain.Shroud{}, ErrInvalidStatus
	}
	s := domain.Shroud{
		Name:      opts.Name,
		Condition: opts.Condition,
		Notes:     opts.Notes,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Shroud{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertShroudTx(ctx, tx, s)
	if err != nil {
		return domain.Shroud{}, fmt.Errorf("insert shroud: %w", err)
	}
	s.ID = id
	if err := tx.Commit(); err != nil {
		return domain.Shroud{}, err
	}
	return s, nil
}

func (e Engine) CreateEquipment(ctx context.Context, name, description, actor string) (domain.Equipment, error) {
	if name == "" {
		return domain.Equipment{}, errors.New("name is required")
	}
	eq := domain.Equipment{
		Name:        name,
		Description: description,
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Equipment{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertEquipmentTx(ctx, tx, eq)
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("insert equipment: %w", err)
	}
	eq.ID = id
	if err := e.Audit.Append(ctx, tx, actor, "equipment", id, "create", eq.Name); err != nil {
		return domain.Equipment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Equipment{}, err
	}
	return eq, nil
}

// DeleteEquipment removes the equipment row only. Faults keep their
// equipment_name snapshot and stay listed.
func (e Engine) DeleteEquipment(ctx context.Context, id int64, actor string) error {
	eq, err := e.Repo.GetEquipment(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteEquipmentTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, actor, "equipment", id, "delete", eq.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// FaultCreateOptions are parameters for logging a fault against equipment.
type FaultCreateOptions struct {
	EquipmentID int64
	Description string
	Priority    domain.Priority
	Actor       string
}

func (e Engine) CreateFault(ctx context.Context, opts FaultCreateOptions) (domain.EquipmentFault, error) {
	if opts.Description == "" {
		return domain.EquipmentFault{}, errors.New("description is required")
	}
	eq, err := e.Repo.GetEquipment(ctx, opts.EquipmentID)
	if err != nil {
		return domain.EquipmentFault{}, err
	}
	f := domain.EquipmentFault{
		EquipmentID:   &eq.ID,
		EquipmentName: &eq.Name,
		Description:   opts.Description,
		Priority:      opts.Priority,
		CreatedAt:     e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.EquipmentFault{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertFaultTx(ctx, tx, f)
	if err != nil {
		return domain.EquipmentFault{}, fmt.Errorf("insert fault: %w", err)
	}
	f.ID = id
	if err := e.Audit.Append(ctx, tx, opts.Actor, "fault", id, "create", truncate(f.Description, 100)); err != nil {
		return domain.EquipmentFault{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.EquipmentFault{}, err
	}
	return f, nil
}

func (e Engine) ToggleFault(ctx context.Context, id int64, actor string) (domain.EquipmentFault, error) {
	f, err := e.Repo.GetFault(ctx, id)
	if err != nil {
		return domain.EquipmentFault{}, err
	}
	resolved := !f.IsResolved

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.EquipmentFault{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetFaultResolvedTx(ctx, tx, id, resolved); err != nil {
		return domain.EquipmentFault{}, err
	}
	action := "reopen"
	if resolved {
		action = "resolve"
	}
	if err := e.Audit.Append(ctx, tx, actor, "fault", id, action, truncate(f.Description, 100)); err != nil {
		return domain.EquipmentFault{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.EquipmentFault{}, err
	}
	f.IsResolved = resolved
	return f, nil
}

func (e Engine) DeleteFault(ctx context.Context, id int64, actor string) error {
	f, err := e.Repo.GetFault(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteFaultTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, actor, "fault", id, "delete", truncate(f.Description, 100)); err != nil {
		return err
	}
	return tx.Commit()
}

// HandoverCreateOptions are parameters for a shift handover note.
type HandoverCreateOptions struct {
	Title    string
	Body     string
	Priority domain.Priority
	Author   string
	Actor    string
}

func (e Engine) CreateHandoverNote(ctx context.Context, opts HandoverCreateOptions) (domain.HandoverNote, error) {
	if opts.Title == "" {
		return domain.HandoverNote{}, errors.New("title is required")
	}
	n := domain.HandoverNote{
		Title:     opts.Title,
		Body:      opts.Body,
		Priority:  opts.Priority,
		Author:    optional(opts.Author),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HandoverNote{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertHandoverNoteTx(ctx, tx, n)
	if err != nil {
		return domain.HandoverNote{}, fmt.Errorf("insert handover note: %w", err)
	}
	n.ID = id
	if err := e.Audit.Append(ctx, tx, opts.Actor, "handover", id, "create", n.Title); err != nil {
		return domain.HandoverNote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HandoverNote{}, err
	}
	return n, nil
}

func (e Engine) ToggleHandover(ctx context.Context, id int64, actor string) (domain.HandoverNote, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HandoverNote{}, err
	}
	defer tx.Rollback()

	n, err := e.Repo.GetHandoverNoteTx(ctx, tx, id)
	if err != nil {
		return domain.HandoverNote{}, err
	}
	closing := !n.IsClosed
	if err := e.Repo.SetHandoverClosedTx(ctx, tx, id, closing); err != nil {
		return domain.HandoverNote{}, err
	}
	action := "reopen"
	if closing {
		action = "close"
	}
	if err := e.Audit.Append(ctx, tx, actor, "handover", id, action, n.Title); err != nil {
		return domain.HandoverNote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HandoverNote{}, err
	}
	n.IsClosed = closing
	return n, nil
}

func (e Engine) DeleteHandoverNote(ctx context.Context, id int64, actor string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n, err := e.Repo.GetHandoverNoteTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteHandoverNoteTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, actor, "handover", id, "delete", n.Title); err != nil {
		return err
	}
	return tx.Commit()
}

// TravelCreateOptions are parameters for a travel log entry. Timestamps are
// RFC3339 or nil when the form field was blank or unparseable.
type TravelCreateOptions struct {
	Person       string
	FromLocation string
	ToLocation   string
	StartedAt    *string
	EndedAt      *string
	Notes        string
	Actor        string
}

func (e Engine) CreateTravelLog(ctx context.Context, opts TravelCreateOptions) (domain.TravelLog, error) {
	if opts.FromLocation == "" || opts.ToLocation == "" {
		return domain.TravelLog{}, errors.New("from and to are required")
	}
	t := domain.TravelLog{
		Person:       optional(opts.Person),
		FromLocation: opts.FromLocation,
		ToLocation:   opts.ToLocation,
		StartedAt:    opts.StartedAt,
		EndedAt:      opts.EndedAt,
		Notes:        opts.Notes,
		CreatedAt:    e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TravelLog{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTravelLogTx(ctx, tx, t)
	if err != nil {
		return domain.TravelLog{}, fmt.Errorf("insert travel log: %w", err)
	}
	t.ID = id
	summary := fmt.Sprintf("%s → %s", t.FromLocation, t.ToLocation)
	if err := e.Audit.Append(ctx, tx, opts.Actor, "travel", id, "create", summary); err != nil {
		return domain.TravelLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TravelLog{}, err
	}
	return t, nil
}

// RefuelCreateOptions are parameters for a refuel log entry; the capacity,
// target and estimate fields carry optional calculator context.
type RefuelCreateOptions struct {
	FuelType        string
	AmountLitres    float64
	BeforeAfterNote string
	Notes           string
	TankCapacityL   *float64
	TargetPercent   *int
	EstAddedLitres  *float64
	Actor           string
}

func (e Engine) CreateRefuelLog(ctx context.Context, opts RefuelCreateOptions) (domain.RefuelLog, error) {
	l := domain.RefuelLog{
		FuelType:        opts.FuelType,
		AmountLitres:    opts.AmountLitres,
		BeforeAfterNote: opts.BeforeAfterNote,
		Notes:           opts.Notes,
		TankCapacityL:   opts.TankCapacityL,
		TargetPercent:   opts.TargetPercent,
		EstAddedLitres:  opts.EstAddedLitres,
		CreatedAt:       e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RefuelLog{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertRefuelLogTx(ctx, tx, l)
	if err != nil {
		return domain.RefuelLog{}, fmt.Errorf("insert refuel log: %w", err)
	}
	l.ID = id
	summary := fmt.Sprintf("%gL %s", l.AmountLitres, l.FuelType)
	if err := e.Audit.Append(ctx, tx, opts.Actor, "refuel", id, "create", summary); err != nil {
		return domain.RefuelLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.RefuelLog{}, err
	}
	return l, nil
}

// FuelWatchOptions are the depletion parameters captured when a watch task
// is started from the calculator.
type FuelWatchOptions struct {
	TankCapacityL   float64
	StartPercent    int
	CriticalPercent int
	HourlyUsageLPH  float64
	Actor           string
}

// CreateFuelWatch stores a fuel-watch task starting now at medium priority.
// The escalation loop takes it from there.
func (e Engine) CreateFuelWatch(ctx context.Context, opts FuelWatchOptions) (domain.JobTask, error) {
	now := e.timestamp()
	p := domain.PriorityMedium
	t := domain.JobTask{
		Title:           "Fuel Watch",
		Notes:           fmt.Sprintf("Auto-escalates when predicted fuel ≤ %d%%.", opts.CriticalPercent),
		Priority:        &p,
		IsFuelWatch:     true,
		TankCapacityL:   &opts.TankCapacityL,
		StartPercent:    &opts.StartPercent,
		CriticalPercent: &opts.CriticalPercent,
		HourlyUsageLPH:  &opts.HourlyUsageLPH,
		StartedAt:       &now,
		CreatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.JobTask{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTaskTx(ctx, tx, t)
	if err != nil {
		return domain.JobTask{}, fmt.Errorf("insert fuel watch: %w", err)
	}
	t.ID = id
	summary := fmt.Sprintf("Cap %dL; start %d%%; crit %d%%; %.1f L/h",
		int(opts.TankCapacityL), opts.StartPercent, opts.CriticalPercent, opts.HourlyUsageLPH)
	if err := e.Audit.Append(ctx, tx, opts.Actor, "jobtask", id, "create-fuelwatch", summary); err != nil {
		return domain.JobTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.JobTask{}, err
	}
	return t, nil
}

// UsageCreateOptions are parameters for a daily usage entry. Linking a stock
// item decrements its on-rig quantity by the whole units used, clamped at
// zero.
type UsageCreateOptions struct {
	StockItemID *int64
	ItemName    string
	Qty         float64
	Unit        string
	Notes       string
	Actor       string
}

func (e Engine) CreateUsageLog(ctx context.Context, opts UsageCreateOptions) (domain.UsageLog, error) {
	var linked *domain.StockItem
	if opts.StockItemID != nil {
		s, err := e.Repo.GetStockItem(ctx, *opts.StockItemID)
		if err == nil {
			linked = &s
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.UsageLog{}, err
		}
	}
	name := opts.ItemName
	if name == "" {
		if linked != nil {
			name = linked.Name
		} else {
			name = "Unnamed"
		}
	}
	unit := opts.Unit
	if unit == "" {
		unit = "ea"
	}
	now := e.timestamp()
	u := domain.UsageLog{
		ItemName:  name,
		Qty:       opts.Qty,
		Unit:      unit,
		Notes:     opts.Notes,
		AtTime:    now,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UsageLog{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertUsageLogTx(ctx, tx, u)
	if err != nil {
		return domain.UsageLog{}, fmt.Errorf("insert usage log: %w", err)
	}
	u.ID = id
	if linked != nil {
		after := linked.OnRigQty - int(opts.Qty)
		if after < 0 {
			after = 0
		}
		if err := e.Repo.SetStockQtyTx(ctx, tx, linked.ID, after, now); err != nil {
			return domain.UsageLog{}, err
		}
	}
	summary := fmt.Sprintf("%s -%g%s", name, u.Qty, u.Unit)
	if err := e.Audit.Append(ctx, tx, opts.Actor, "usage", id, "create", summary); err != nil {
		return domain.UsageLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UsageLog{}, err
	}
	return u, nil
}

// TaskCreateOptions are parameters for a plain job task.
type TaskCreateOptions struct {
	Title    string
	Notes    string
	Priority domain.Priority
	Actor    string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.JobTask, error) {
	if opts.Title == "" {
		return domain.JobTask{}, errors.New("title is required")
	}
	p := opts.Priority
	t := domain.JobTask{
		Title:     opts.Title,
		Notes:     opts.Notes,
		Priority:  &p,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.JobTask{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTaskTx(ctx, tx, t)
	if err != nil {
		return domain.JobTask{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	if err := e.Audit.Append(ctx, tx, opts.Actor, "jobtask", id, "create", t.Title); err != nil {
		return domain.JobTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.JobTask{}, err
	}
	return t, nil
}

func (e Engine) ToggleTask(ctx context.Context, id int64, actor string) (domain.JobTask, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.JobTask{}, err
	}
	closing := !t.IsClosed

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.JobTask{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetTaskClosedTx(ctx, tx, id, closing); err != nil {
		return domain.JobTask{}, err
	}
	action := "reopen"
	if closing {
		action = "close"
	}
	if err := e.Audit.Append(ctx, tx, actor, "jobtask", id, action, t.Title); err != nil {
		return domain.JobTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.JobTask{}, err
	}
	t.IsClosed = closing
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, id int64, actor string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTaskTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, actor, "jobtask", id, "delete", t.Title); err != nil {
		return err
	}
	return tx.Commit()
}

// NodeCreateOptions are parameters for a location tree node.
type NodeCreateOptions struct {
	Name     string
	Kind     string
	ParentID *int64
	Notes    string
	Actor    string
}

func (e Engine) CreateLocationNode(ctx context.Context, opts NodeCreateOptions) (domain.LocationNode, error) {
	if opts.Name == "" {
		return domain.LocationNode{}, errors.New("name is required")
	}
	n := domain.LocationNode{
		Name:      opts.Name,
		Kind:      optional(opts.Kind),
		ParentID:  opts.ParentID,
		Notes:     opts.Notes,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LocationNode{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertLocationNodeTx(ctx, tx, n)
	if err != nil {
		return domain.LocationNode{}, fmt.Errorf("insert location node: %w", err)
	}
	n.ID = id
	if err := e.Audit.Append(ctx, tx, opts.Actor, "location", id, "create", n.Name); err != nil {
		return domain.LocationNode{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LocationNode{}, err
	}
	return n, nil
}

// NodeUpdateOptions are parameters for editing a location tree node.
type NodeUpdateOptions struct {
	ID       int64
	Name     string
	Kind     string
	ParentID *int64
	Notes    string
	Actor    string
}

func (e Engine) UpdateLocationNode(ctx context.Context, opts NodeUpdateOptions) (domain.LocationNode, error) {
	if opts.Name == "" {
		return domain.LocationNode{}, errors.New("name is required")
	}
	before, err := e.Repo.GetLocationNode(ctx, opts.ID)
	if err != nil {
		return domain.LocationNode{}, err
	}
	n := before
	n.Name = opts.Name
	n.Kind = optional(opts.Kind)
	n.ParentID = opts.ParentID
	n.Notes = opts.Notes

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LocationNode{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateLocationNodeTx(ctx, tx, n); err != nil {
		return domain.LocationNode{}, err
	}
	if err := e.Repo.SetLocationNodeParentTx(ctx, tx, n.ID, n.ParentID); err != nil {
		return domain.LocationNode{}, err
	}
	summary := fmt.Sprintf("%s → %s", before.Name, n.Name)
	if err := e.Audit.Append(ctx, tx, opts.Actor, "location", n.ID, "update", summary); err != nil {
		return domain.LocationNode{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LocationNode{}, err
	}
	return n, nil
}

func (e Engine) MoveLocationNode(ctx context.Context, id int64, parentID *int64, actor string) error {
	if _, err := e.Repo.GetLocationNode(ctx, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.SetLocationNodeParentTx(ctx, tx, id, parentID); err != nil {
		return err
	}
	summary := "Moved to root"
	if parentID != nil {
		summary = fmt.Sprintf("Moved to parent %d", *parentID)
	}
	if err := e.Audit.Append(ctx, tx, actor, "location", id, "move", summary); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteLocationNode removes a node; its children move to the root and any
// stock links pointing at it are left behind.
func (e Engine) DeleteLocationNode(ctx context.Context, id int64, actor string) error {
	n, err := e.Repo.GetLocationNode(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteLocationNodeTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, actor, "location", id, "delete", n.Name); err != nil {
		return err
	}
	return tx.Commit()
}
