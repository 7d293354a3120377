package audit

import (
	"context"
	"database/sql"
	"time"
)

// Actor recorded on entries written by the escalation loop rather than a
// person.
const SystemActor = "system"

// Writer appends audit rows inside the caller's transaction.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, actor, entity string, entityID int64, action, summary string) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if actor == "" {
		actor = "crew"
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO audit_logs(created_at,actor,entity,entity_id,action,summary) VALUES (?,?,?,?,?,?)`,
		ts, actor, entity, nullableID(entityID), action, summary)
	return err
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
