package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ayo6706/payout-settlement/internal/models"
)

func (q *Queries) InsertPayoutReview(ctx context.Context, r *models.PayoutReview) error {
	const query = `
		INSERT INTO payout_reviews (id, payout_id, reason, details)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`
	if err := q.db.QueryRow(ctx, query, r.ID, r.PayoutID, r.Reason, r.Details).Scan(&r.CreatedAt); err != nil {
		return fmt.Errorf("insert payout review: %w", err)
	}
	return nil
}

// HasOpenReview reports whether an unresolved review with reason exists for the payout.
func (q *Queries) HasOpenReview(ctx context.Context, payoutID uuid.UUID, reason string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM payout_reviews WHERE payout_id = $1 AND reason = $2 AND NOT resolved)`
	var exists bool
	if err := q.db.QueryRow(ctx, query, payoutID, reason).Scan(&exists); err != nil {
		return false, fmt.Errorf("check open review: %w", err)
	}
	return exists, nil
}

func (q *Queries) ListPayoutReviews(ctx context.Context, includeResolved bool, limit, offset int32) ([]models.PayoutReview, error) {
	const query = `
		SELECT id, payout_id, reason, details, resolved, resolved_by, COALESCE(resolution, ''), created_at
		FROM payout_reviews
		WHERE $1 OR NOT resolved
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, includeResolved, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list payout reviews: %w", err)
	}
	defer rows.Close()

	var out []models.PayoutReview
	for rows.Next() {
		var r models.PayoutReview
		var resolvedBy pgtype.UUID
		if err := rows.Scan(&r.ID, &r.PayoutID, &r.Reason, &r.Details, &r.Resolved, &resolvedBy, &r.Resolution, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout review: %w", err)
		}
		r.ResolvedBy = uuidPtr(resolvedBy)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResolvePayoutReview closes an open review; resolved reviews are left untouched.
func (q *Queries) ResolvePayoutReview(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, resolution string) (int64, error) {
	const query = `
		UPDATE payout_reviews SET resolved = TRUE, resolved_by = $2, resolution = $3, resolved_at = NOW()
		WHERE id = $1 AND NOT resolved`
	tag, err := q.db.Exec(ctx, query, id, nullUUID(actorID), resolution)
	if err != nil {
		return 0, fmt.Errorf("resolve payout review: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CountOpenPayoutReviews(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM payout_reviews WHERE NOT resolved`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open reviews: %w", err)
	}
	return n, nil
}
