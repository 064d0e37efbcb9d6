package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

// InsertCredit stores a credit. A repeated network_reference is ignored and
// reported as inserted=false.
func (q *Queries) InsertCredit(ctx context.Context, c *models.Credit) (bool, error) {
	const query = `
		INSERT INTO credits (id, seller_id, currency, amount, reason, payout_id, internal_transfer_id,
			merchant_account_id, network_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (network_reference) DO NOTHING
		RETURNING created_at`
	row := q.db.QueryRow(ctx, query, c.ID, c.SellerID, c.Currency, c.Amount, string(c.Reason),
		nullUUID(c.PayoutID), nullUUID(c.InternalTransferID), nullUUID(c.MerchantAccountID), c.NetworkReference)
	if err := row.Scan(&c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert credit: %w", err)
	}
	return true, nil
}

func (q *Queries) ListCredits(ctx context.Context, sellerID uuid.UUID) ([]models.Credit, error) {
	const query = `
		SELECT id, seller_id, currency, amount, reason, payout_id, internal_transfer_id,
			merchant_account_id, network_reference, created_at
		FROM credits WHERE seller_id = $1 ORDER BY created_at ASC`
	rows, err := q.db.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var out []models.Credit
	for rows.Next() {
		var c models.Credit
		var reason string
		var payout, transfer, merchant pgtype.UUID
		if err := rows.Scan(&c.ID, &c.SellerID, &c.Currency, &c.Amount, &reason, &payout, &transfer,
			&merchant, &c.NetworkReference, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		c.Reason = domain.CreditReason(reason)
		c.PayoutID = uuidPtr(payout)
		c.InternalTransferID = uuidPtr(transfer)
		c.MerchantAccountID = uuidPtr(merchant)
		out = append(out, c)
	}
	return out, rows.Err()
}
