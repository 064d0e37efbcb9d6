package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

const reversalCheckColumns = `id, payout_id, reversing_payout_id, run_at, status, attempts, created_at`

func scanReversalCheck(row pgx.Row) (*models.ReversalCheck, error) {
	var c models.ReversalCheck
	var status string
	if err := row.Scan(&c.ID, &c.PayoutID, &c.ReversingPayoutID, &c.RunAt, &status, &c.Attempts, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Status = domain.ReversalCheckStatus(status)
	return &c, nil
}

// InsertReversalCheck schedules a check once per (payout, reversing payout).
func (q *Queries) InsertReversalCheck(ctx context.Context, c *models.ReversalCheck) (bool, error) {
	const query = `
		INSERT INTO payout_reversal_checks (id, payout_id, reversing_payout_id, run_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (payout_id, reversing_payout_id) DO NOTHING
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query, c.ID, c.PayoutID, c.ReversingPayoutID, c.RunAt, string(c.Status)).Scan(&c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert reversal check: %w", err)
	}
	return true, nil
}

func (q *Queries) GetReversalCheck(ctx context.Context, payoutID uuid.UUID, reversingPayoutID string) (*models.ReversalCheck, error) {
	const query = `SELECT ` + reversalCheckColumns + ` FROM payout_reversal_checks
		WHERE payout_id = $1 AND reversing_payout_id = $2`
	c, err := scanReversalCheck(q.db.QueryRow(ctx, query, payoutID, reversingPayoutID))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ClaimDueReversalChecks leases due checks by pushing run_at forward, so a
// concurrent worker skips them until the lease expires.
func (q *Queries) ClaimDueReversalChecks(ctx context.Context, now time.Time, lease time.Duration, limit int32) ([]models.ReversalCheck, error) {
	const query = `
		UPDATE payout_reversal_checks SET run_at = $2, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM payout_reversal_checks
			WHERE status = 'scheduled' AND run_at <= $1
			ORDER BY run_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + reversalCheckColumns
	rows, err := q.db.Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim reversal checks: %w", err)
	}
	defer rows.Close()
	var out []models.ReversalCheck
	for rows.Next() {
		c, err := scanReversalCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reversal check: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateReversalCheck moves a scheduled check to status with a new run_at.
func (q *Queries) UpdateReversalCheck(ctx context.Context, id uuid.UUID, status domain.ReversalCheckStatus, runAt time.Time) (int64, error) {
	const query = `UPDATE payout_reversal_checks SET status = $2, run_at = $3 WHERE id = $1 AND status = 'scheduled'`
	tag, err := q.db.Exec(ctx, query, id, string(status), runAt)
	if err != nil {
		return 0, fmt.Errorf("update reversal check: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CountScheduledReversalChecks(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM payout_reversal_checks WHERE status = 'scheduled'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reversal checks: %w", err)
	}
	return n, nil
}
