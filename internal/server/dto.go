package server

import (
	"time"

	"offsider/internal/domain"
	"offsider/internal/fuelwatch"
)

// Response payloads

type StockItemResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	OnRigQty  int     `json:"on_rig_qty"`
	MinQty    int     `json:"min_qty"`
	BufferQty int     `json:"buffer_qty"`
	Unit      string  `json:"unit"`
	Location  *string `json:"location,omitempty"`
	Low       bool    `json:"low"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// FuelWatchStatus carries the computed state of a running watch.
// HoursToCritical is omitted when the tank is already at or below critical,
// and Never is set when usage is zero.
type FuelWatchStatus struct {
	TankCapacityL   float64  `json:"tank_capacity_l"`
	StartPercent    int      `json:"start_percent"`
	CriticalPercent int      `json:"critical_percent"`
	HourlyUsageLPH  float64  `json:"hourly_usage_lph"`
	StartedAt       string   `json:"started_at" format:"date-time"`
	PercentNow      int      `json:"percent_now"`
	HoursToCritical *float64 `json:"hours_to_critical,omitempty"`
	Never           bool     `json:"never,omitempty"`
}

type TaskResponse struct {
	ID                int64            `json:"id"`
	Title             string           `json:"title"`
	Notes             string           `json:"notes,omitempty"`
	Priority          int              `json:"priority"`
	EffectivePriority int              `json:"effective_priority"`
	IsClosed          bool             `json:"is_closed"`
	IsDone            bool             `json:"is_done"`
	IsFuelWatch       bool             `json:"is_fuel_watch"`
	FuelWatch         *FuelWatchStatus `json:"fuel_watch,omitempty"`
	CreatedAt         string           `json:"created_at" format:"date-time"`
}

type AuditLogResponse struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Actor     string `json:"actor"`
	Entity    string `json:"entity"`
	EntityID  *int64 `json:"entity_id,omitempty"`
	Action    string `json:"action"`
	Summary   string `json:"summary,omitempty"`
}

type paginatedAuditLogs struct {
	Items []AuditLogResponse `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Pages int                `json:"pages"`
}

type settingsResponse struct {
	Status              string `json:"status"`
	Timezone            string `json:"timezone"`
	ReminderHorizonDays int    `json:"reminder_horizon_days"`
	HasPINHash          bool   `json:"has_pin_hash"`
}

type dbCheckResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Conversion helpers

func stockItemResponse(it domain.StockItem) StockItemResponse {
	return StockItemResponse{
		ID:        it.ID,
		Name:      it.Name,
		OnRigQty:  it.OnRigQty,
		MinQty:    it.MinQty,
		BufferQty: it.BufferQty,
		Unit:      it.Unit,
		Location:  it.Location,
		Low:       it.OnRigQty < it.MinQty || it.OnRigQty < it.BufferQty,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

func taskResponse(t domain.JobTask, now time.Time) TaskResponse {
	resp := TaskResponse{
		ID:                t.ID,
		Title:             t.Title,
		Notes:             t.Notes,
		Priority:          int(t.StoredPriority()),
		EffectivePriority: int(fuelwatch.EffectivePriority(t, now)),
		IsClosed:          t.IsClosed,
		IsDone:            t.IsDone,
		IsFuelWatch:       t.IsFuelWatch,
		CreatedAt:         t.CreatedAt,
	}
	if snap, ok := fuelwatch.Evaluate(t, now); ok {
		st := &FuelWatchStatus{
			TankCapacityL:   *t.TankCapacityL,
			StartPercent:    *t.StartPercent,
			CriticalPercent: *t.CriticalPercent,
			HourlyUsageLPH:  *t.HourlyUsageLPH,
			StartedAt:       *t.StartedAt,
			PercentNow:      snap.Percent,
			Never:           snap.Never,
		}
		if !snap.Never && snap.HoursToCritical > 0 {
			hrs := snap.HoursToCritical
			st.HoursToCritical = &hrs
		}
		resp.FuelWatch = st
	}
	return resp
}

func auditLogResponse(a domain.AuditLog) AuditLogResponse {
	return AuditLogResponse(a)
}

func mapStockItems(items []domain.StockItem) []StockItemResponse {
	out := make([]StockItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, stockItemResponse(it))
	}
	return out
}

func mapTasks(items []domain.JobTask, now time.Time) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t, now))
	}
	return out
}

func mapAuditLogs(items []domain.AuditLog) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(items))
	for _, a := range items {
		out = append(out, auditLogResponse(a))
	}
	return out
}
