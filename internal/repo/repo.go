package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"offsider/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableString(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func ptrInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func ptrFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// execer covers both *sql.DB and *sql.Tx so entity methods can share one
// implementation.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetOrCreateSettings returns the singleton settings row, inserting the
// defaults on first access.
func (r Repo) GetOrCreateSettings(ctx context.Context) (domain.Settings, error) {
	s, err := r.getSettings(ctx)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Settings{}, err
	}
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO settings(timezone,reminder_horizon_days) VALUES ('UTC',7)`); err != nil {
		return domain.Settings{}, err
	}
	return r.getSettings(ctx)
}

// UpdateSettings rewrites the singleton row, creating it first if needed.
func (r Repo) UpdateSettings(ctx context.Context, timezone string, horizonDays int) (domain.Settings, error) {
	s, err := r.GetOrCreateSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	_, err = r.DB.ExecContext(ctx, `UPDATE settings SET timezone=?, reminder_horizon_days=? WHERE id=?`,
		timezone, horizonDays, s.ID)
	if err != nil {
		return domain.Settings{}, err
	}
	return r.getSettings(ctx)
}

func (r Repo) getSettings(ctx context.Context) (domain.Settings, error) {
	var s domain.Settings
	var pin sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,timezone,reminder_horizon_days,crew_pin_hash FROM settings LIMIT 1`).
		Scan(&s.ID, &s.Timezone, &s.ReminderHorizonDays, &pin)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.CrewPINHash = ptrString(pin)
	return s, nil
}

// Timestamp formats a time the way every table stores it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
