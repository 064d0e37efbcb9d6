package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

const payoutColumns = `id, external_id, seller_id, currency, amount, ledger_amount, retained_amount,
	payout_type, state, destination_account_id, network_transfer_id, network_reversing_payout_id,
	internal_transfer_id, failure_reason, arrival_date, network_fee, reversal_applied,
	submission_attempts, created_at, updated_at`

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var (
		p                models.Payout
		payoutType       string
		state            string
		internalTransfer pgtype.UUID
		failureReason    *string
	)
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.SellerID, &p.Currency, &p.Amount, &p.LedgerAmount, &p.RetainedAmount,
		&payoutType, &state, &p.DestinationAccountID, &p.NetworkTransferID, &p.NetworkReversingPayoutID,
		&internalTransfer, &failureReason, &p.ArrivalDate, &p.NetworkFee, &p.ReversalApplied,
		&p.SubmissionAttempts, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PayoutType = domain.PayoutType(payoutType)
	p.State = domain.PayoutState(state)
	p.InternalTransferID = uuidPtr(internalTransfer)
	if failureReason != nil {
		r := domain.FailureReason(*failureReason)
		p.FailureReason = &r
	}
	return &p, nil
}

func collectPayouts(rows pgx.Rows) ([]models.Payout, error) {
	defer rows.Close()
	var out []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func failureParam(r *domain.FailureReason) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func (q *Queries) InsertPayout(ctx context.Context, p *models.Payout) error {
	const query = `
		INSERT INTO payouts (id, external_id, seller_id, currency, amount, ledger_amount, retained_amount,
			payout_type, state, destination_account_id, internal_transfer_id, network_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query,
		p.ID, p.ExternalID, p.SellerID, p.Currency, p.Amount, p.LedgerAmount, p.RetainedAmount,
		string(p.PayoutType), string(p.State), p.DestinationAccountID, nullUUID(p.InternalTransferID), p.NetworkFee,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (q *Queries) GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	p, err := scanPayout(q.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// GetPayoutByNetworkID matches a network payout id within one destination account.
func (q *Queries) GetPayoutByNetworkID(ctx context.Context, destinationAccountID uuid.UUID, networkPayoutID string) (*models.Payout, error) {
	const query = `SELECT ` + payoutColumns + ` FROM payouts
		WHERE destination_account_id = $1 AND network_transfer_id = $2`
	p, err := scanPayout(q.db.QueryRow(ctx, query, destinationAccountID, networkPayoutID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// GetPayoutByReversingID finds the original payout a reversing payout points at.
func (q *Queries) GetPayoutByReversingID(ctx context.Context, destinationAccountID uuid.UUID, reversingPayoutID string) (*models.Payout, error) {
	const query = `SELECT ` + payoutColumns + ` FROM payouts
		WHERE destination_account_id = $1 AND network_reversing_payout_id = $2`
	p, err := scanPayout(q.db.QueryRow(ctx, query, destinationAccountID, reversingPayoutID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// FindPendingPayout returns the seller's oldest unsubmitted payout, if any.
func (q *Queries) FindPendingPayout(ctx context.Context, sellerID uuid.UUID) (*models.Payout, error) {
	const query = `SELECT ` + payoutColumns + ` FROM payouts
		WHERE seller_id = $1 AND state = 'pending'
		ORDER BY created_at ASC
		LIMIT 1`
	p, err := scanPayout(q.db.QueryRow(ctx, query, sellerID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// UpdatePayout writes every mutable column, guarded by the expected current state.
// Zero rows affected means another writer moved the payout first.
func (q *Queries) UpdatePayout(ctx context.Context, p *models.Payout, expected domain.PayoutState) (int64, error) {
	const query = `
		UPDATE payouts SET
			state = $3,
			amount = $4,
			ledger_amount = $5,
			retained_amount = $6,
			destination_account_id = $7,
			network_transfer_id = $8,
			network_reversing_payout_id = $9,
			internal_transfer_id = $10,
			failure_reason = $11,
			arrival_date = $12,
			network_fee = $13,
			reversal_applied = $14,
			submission_attempts = $15,
			updated_at = NOW()
		WHERE id = $1 AND state = $2`
	tag, err := q.db.Exec(ctx, query,
		p.ID, string(expected), string(p.State), p.Amount, p.LedgerAmount, p.RetainedAmount,
		p.DestinationAccountID, p.NetworkTransferID, p.NetworkReversingPayoutID, nullUUID(p.InternalTransferID),
		failureParam(p.FailureReason), p.ArrivalDate, p.NetworkFee, p.ReversalApplied, p.SubmissionAttempts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.ErrDuplicate
		}
		return 0, fmt.Errorf("update payout: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListStalePayouts returns payouts stuck before the network acknowledged them.
func (q *Queries) ListStalePayouts(ctx context.Context, olderThan time.Time, limit int32) ([]models.Payout, error) {
	const query = `SELECT ` + payoutColumns + ` FROM payouts
		WHERE updated_at < $1
		  AND (state = 'pending' OR (state = 'processing' AND network_transfer_id IS NULL))
		ORDER BY updated_at ASC
		LIMIT $2`
	rows, err := q.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payouts: %w", err)
	}
	return collectPayouts(rows)
}

func (q *Queries) ListSellerPayouts(ctx context.Context, sellerID uuid.UUID, limit, offset int32) ([]models.Payout, error) {
	const query = `SELECT ` + payoutColumns + ` FROM payouts
		WHERE seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, sellerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list seller payouts: %w", err)
	}
	return collectPayouts(rows)
}
