package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLSink appends entries to the audit_log table.
type SQLSink struct{ db *sql.DB }

func NewSQLSink(db *sql.DB) *SQLSink { return &SQLSink{db: db} }

func (s *SQLSink) Append(ctx context.Context, e Entry) error {
	oldV, err := encodeValues(e.Old)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newV, err := encodeValues(e.New)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor_id, action, entity_type, entity_id, old_values, new_values, ip_address, user_agent, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ActorID, e.Action, e.EntityType, e.EntityID, oldV, newV, e.IP, e.UserAgent, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}
