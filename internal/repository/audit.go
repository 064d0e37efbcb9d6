package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

type InsertAuditLogParams struct {
	EntityType string
	EntityID   pgtype.UUID
	ActorID    pgtype.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	const query = `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id int64
	if err := q.db.QueryRow(ctx, query, arg.EntityType, arg.EntityID, arg.ActorID, arg.Action,
		arg.PrevState, arg.NextState, arg.Metadata).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert audit log: %w", err)
	}
	return id, nil
}

// CountAuditEntries returns the number of audit rows for an entity and action.
func (q *Queries) CountAuditEntries(ctx context.Context, entityID pgtype.UUID, action string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log WHERE entity_id = $1 AND action = $2`, entityID, action).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}
