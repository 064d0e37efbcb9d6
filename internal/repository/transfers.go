package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ayo6706/payout-settlement/internal/models"
)

const internalTransferColumns = `id, seller_id, destination_account_id, amount, currency, network_transfer_id,
	destination_payment_id, settled_amount, settled_currency, reversible, reversal_id, created_at`

func scanInternalTransfer(row pgx.Row) (*models.InternalTransfer, error) {
	var t models.InternalTransfer
	if err := row.Scan(&t.ID, &t.SellerID, &t.DestinationAccountID, &t.Amount, &t.Currency, &t.NetworkTransferID,
		&t.DestinationPaymentID, &t.SettledAmount, &t.SettledCurrency, &t.Reversible, &t.ReversalID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *Queries) InsertInternalTransfer(ctx context.Context, t *models.InternalTransfer) error {
	const query = `
		INSERT INTO internal_transfers (id, seller_id, destination_account_id, amount, currency,
			network_transfer_id, destination_payment_id, settled_amount, settled_currency, reversible)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query, t.ID, t.SellerID, t.DestinationAccountID, t.Amount, t.Currency,
		t.NetworkTransferID, t.DestinationPaymentID, t.SettledAmount, t.SettledCurrency, t.Reversible).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert internal transfer: %w", err)
	}
	return nil
}

func (q *Queries) GetInternalTransfer(ctx context.Context, id uuid.UUID) (*models.InternalTransfer, error) {
	t, err := scanInternalTransfer(q.db.QueryRow(ctx, `SELECT `+internalTransferColumns+` FROM internal_transfers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (q *Queries) GetInternalTransferByNetworkID(ctx context.Context, networkTransferID string) (*models.InternalTransfer, error) {
	const query = `SELECT ` + internalTransferColumns + ` FROM internal_transfers WHERE network_transfer_id = $1`
	t, err := scanInternalTransfer(q.db.QueryRow(ctx, query, networkTransferID))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// MarkInternalTransferReversed records the reversal once; a second call affects no rows.
func (q *Queries) MarkInternalTransferReversed(ctx context.Context, id uuid.UUID, reversalID string) (int64, error) {
	const query = `UPDATE internal_transfers SET reversal_id = $2 WHERE id = $1 AND reversal_id IS NULL`
	tag, err := q.db.Exec(ctx, query, id, reversalID)
	if err != nil {
		return 0, fmt.Errorf("mark internal transfer reversed: %w", err)
	}
	return tag.RowsAffected(), nil
}
