// Package offsidersdk is a minimal client for the Offsider JSON API.
package offsidersdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to one rig's slice of the API. BaseURL includes the API base
// path, e.g. "http://127.0.0.1:8000/api/v0".
type Client struct {
	BaseURL    string
	Rig        string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, rig string) *Client {
	return &Client{
		BaseURL: baseURL,
		Rig:     rig,
		Timeout: 10 * time.Second,
	}
}

// StockItem mirrors the API stock model. Low is computed server-side from the
// min and buffer levels.
type StockItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	OnRigQty  int     `json:"on_rig_qty"`
	MinQty    int     `json:"min_qty"`
	BufferQty int     `json:"buffer_qty"`
	Unit      string  `json:"unit"`
	Location  *string `json:"location,omitempty"`
	Low       bool    `json:"low"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// FuelWatchStatus carries the live fuel prediction for a fuel-watch task.
// HoursToCritical is omitted once the tank is at or below the critical
// threshold; Never marks a watch that is not depleting.
type FuelWatchStatus struct {
	TankCapacityL   float64  `json:"tank_capacity_l"`
	StartPercent    int      `json:"start_percent"`
	CriticalPercent int      `json:"critical_percent"`
	HourlyUsageLPH  float64  `json:"hourly_usage_lph"`
	StartedAt       string   `json:"started_at"`
	PercentNow      int      `json:"percent_now"`
	HoursToCritical *float64 `json:"hours_to_critical,omitempty"`
	Never           bool     `json:"never,omitempty"`
}

// Task represents a job task. Priority values run 0 (critical) to 3 (low);
// EffectivePriority reflects fuel-watch escalation at response time.
type Task struct {
	ID                int64            `json:"id"`
	Title             string           `json:"title"`
	Notes             string           `json:"notes,omitempty"`
	Priority          int              `json:"priority"`
	EffectivePriority int              `json:"effective_priority"`
	IsClosed          bool             `json:"is_closed"`
	IsDone            bool             `json:"is_done"`
	IsFuelWatch       bool             `json:"is_fuel_watch"`
	FuelWatch         *FuelWatchStatus `json:"fuel_watch,omitempty"`
	CreatedAt         string           `json:"created_at"`
}

// AuditEntry is one audit log row.
type AuditEntry struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	Actor     string `json:"actor"`
	Entity    string `json:"entity"`
	EntityID  *int64 `json:"entity_id,omitempty"`
	Action    string `json:"action"`
	Summary   string `json:"summary,omitempty"`
}

// AuditPage wraps a page of audit entries.
type AuditPage struct {
	Items []AuditEntry `json:"items"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Pages int          `json:"pages"`
}

// AuditFilters narrows an audit listing. Zero values mean no filter.
type AuditFilters struct {
	Actor  string
	Entity string
	Q      string
}

// Settings reports the rig's stored settings.
type Settings struct {
	Status              string `json:"status"`
	Timezone            string `json:"timezone"`
	ReminderHorizonDays int    `json:"reminder_horizon_days"`
	HasPINHash          bool   `json:"has_pin_hash"`
}

// DBCheck is the result of the store probe.
type DBCheck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message are filled when the
// server returned its usual error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the API is up.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", resp.Status)
	}
	return nil
}

// Stock lists stock items. With low set, only items below min or buffer.
func (c *Client) Stock(ctx context.Context, low bool) ([]StockItem, error) {
	q := url.Values{}
	if low {
		q.Set("low", "true")
	}
	var resp []StockItem
	err := c.get(ctx, "stock", q, &resp)
	return resp, err
}

// Jobs lists job tasks. With open set, closed tasks are dropped.
func (c *Client) Jobs(ctx context.Context, open bool) ([]Task, error) {
	q := url.Values{}
	if open {
		q.Set("open", "true")
	}
	var resp []Task
	err := c.get(ctx, "jobs", q, &resp)
	return resp, err
}

// Audit returns one page of the audit log, newest first.
func (c *Client) Audit(ctx context.Context, page int, f AuditFilters) (AuditPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if f.Actor != "" {
		q.Set("actor", f.Actor)
	}
	if f.Entity != "" {
		q.Set("entity", f.Entity)
	}
	if f.Q != "" {
		q.Set("q", f.Q)
	}
	var resp AuditPage
	err := c.get(ctx, "audit", q, &resp)
	return resp, err
}

// AuditEntry fetches one audit row by id.
func (c *Client) AuditEntry(ctx context.Context, id int64) (AuditEntry, error) {
	var resp AuditEntry
	err := c.get(ctx, fmt.Sprintf("audit/%d", id), nil, &resp)
	return resp, err
}

// Settings fetches the rig's settings.
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var resp Settings
	err := c.get(ctx, "debug/settings", nil, &resp)
	return resp, err
}

// DBCheck probes the rig's store.
func (c *Client) DBCheck(ctx context.Context) (DBCheck, error) {
	var resp DBCheck
	err := c.get(ctx, "debug/db-check", nil, &resp)
	return resp, err
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if q == nil {
		q = url.Values{}
	}
	if c.Rig != "" {
		q.Set("rig", c.Rig)
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
