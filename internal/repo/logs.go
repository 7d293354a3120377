package repo

import (
	"context"
	"database/sql"

	"offsider/internal/domain"
)

func (r Repo) ListTravelLogs(ctx context.Context) ([]domain.TravelLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,person,from_location,to_location,started_at,ended_at,notes,created_at FROM travel_logs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TravelLog
	for rows.Next() {
		var t domain.TravelLog
		var person, started, ended, notes sql.NullString
		if err := rows.Scan(&t.ID, &person, &t.FromLocation, &t.ToLocation, &started, &ended, &notes, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Person = ptrString(person)
		t.StartedAt = ptrString(started)
		t.EndedAt = ptrString(ended)
		if notes.Valid {
			t.Notes = notes.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTravelLogTx(ctx context.Context, tx *sql.Tx, t domain.TravelLog) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO travel_logs(person,from_location,to_location,started_at,ended_at,notes,created_at) VALUES (?,?,?,?,?,?,?)`,
		nullableString(t.Person), t.FromLocation, t.ToLocation, nullableString(t.StartedAt), nullableString(t.EndedAt), nullable(t.Notes), t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListRefuelLogs(ctx context.Context) ([]domain.RefuelLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,fuel_type,amount_litres,before_after_note,notes,tank_capacity_l,target_percent,est_added_litres,created_at FROM refuel_logs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RefuelLog
	for rows.Next() {
		var l domain.RefuelLog
		var note, notes sql.NullString
		var capacity, estAdded sql.NullFloat64
		var target sql.NullInt64
		if err := rows.Scan(&l.ID, &l.FuelType, &l.AmountLitres, &note, &notes, &capacity, &target, &estAdded, &l.CreatedAt); err != nil {
			return nil, err
		}
		if note.Valid {
			l.BeforeAfterNote = note.String
		}
		if notes.Valid {
			l.Notes = notes.String
		}
		l.TankCapacityL = ptrFloat(capacity)
		l.TargetPercent = ptrInt(target)
		l.EstAddedLitres = ptrFloat(estAdded)
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) InsertRefuelLogTx(ctx context.Context, tx *sql.Tx, l domain.RefuelLog) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO refuel_logs(fuel_type,amount_litres,before_after_note,notes,tank_capacity_l,target_percent,est_added_litres,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		l.FuelType, l.AmountLitres, nullable(l.BeforeAfterNote), nullable(l.Notes),
		nullableFloat(l.TankCapacityL), nullableInt(l.TargetPercent), nullableFloat(l.EstAddedLitres), l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListUsageLogs(ctx context.Context) ([]domain.UsageLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_name,qty,unit,notes,at_time,created_at FROM usage_logs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UsageLog
	for rows.Next() {
		var u domain.UsageLog
		var notes sql.NullString
		if err := rows.Scan(&u.ID, &u.ItemName, &u.Qty, &u.Unit, &notes, &u.AtTime, &u.CreatedAt); err != nil {
			return nil, err
		}
		if notes.Valid {
			u.Notes = notes.String
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertUsageLogTx(ctx context.Context, tx *sql.Tx, u domain.UsageLog) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO usage_logs(item_name,qty,unit,notes,at_time,created_at) VALUES (?,?,?,?,?,?)`,
		u.ItemName, u.Qty, u.Unit, nullable(u.Notes), u.AtTime, u.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
