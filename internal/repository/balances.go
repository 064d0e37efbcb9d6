package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

const balanceColumns = `id, seller_id, date, currency, holding_amount, holder_of_funds,
	merchant_account_id, state, payout_id, carried_from_payout_id, created_at`

func scanBalance(row pgx.Row) (*models.Balance, error) {
	var (
		b             models.Balance
		holder, state string
		merchant      pgtype.UUID
		payout        pgtype.UUID
		carried       pgtype.UUID
	)
	if err := row.Scan(&b.ID, &b.SellerID, &b.Date, &b.Currency, &b.HoldingAmount, &holder,
		&merchant, &state, &payout, &carried, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.HolderOfFunds = domain.HolderOfFunds(holder)
	b.State = domain.BalanceState(state)
	b.MerchantAccountID = uuidPtr(merchant)
	b.PayoutID = uuidPtr(payout)
	b.CarriedFromPayoutID = uuidPtr(carried)
	return &b, nil
}

func (q *Queries) listBalances(ctx context.Context, query string, args ...interface{}) ([]models.Balance, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (q *Queries) InsertBalance(ctx context.Context, b *models.Balance) error {
	const query = `
		INSERT INTO balances (id, seller_id, date, currency, holding_amount, holder_of_funds,
			merchant_account_id, state, payout_id, carried_from_payout_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query, b.ID, b.SellerID, b.Date, b.Currency, b.HoldingAmount,
		string(b.HolderOfFunds), nullUUID(b.MerchantAccountID), string(b.State), nullUUID(b.PayoutID),
		nullUUID(b.CarriedFromPayoutID)).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

// FindUnpaidBalances locks the seller's unassigned unpaid balances.
func (q *Queries) FindUnpaidBalances(ctx context.Context, sellerID uuid.UUID) ([]models.Balance, error) {
	const query = `SELECT ` + balanceColumns + ` FROM balances
		WHERE seller_id = $1 AND state = 'unpaid' AND payout_id IS NULL
		ORDER BY date ASC, created_at ASC
		FOR UPDATE`
	out, err := q.listBalances(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("find unpaid balances: %w", err)
	}
	return out, nil
}

func (q *Queries) ListPayoutBalances(ctx context.Context, payoutID uuid.UUID) ([]models.Balance, error) {
	const query = `SELECT ` + balanceColumns + ` FROM balances WHERE payout_id = $1 ORDER BY date ASC, created_at ASC`
	out, err := q.listBalances(ctx, query, payoutID)
	if err != nil {
		return nil, fmt.Errorf("list payout balances: %w", err)
	}
	return out, nil
}

// AttachBalances moves unpaid balances into processing under a payout.
func (q *Queries) AttachBalances(ctx context.Context, payoutID uuid.UUID, balanceIDs []uuid.UUID) (int64, error) {
	const query = `
		UPDATE balances SET state = 'processing', payout_id = $1
		WHERE id = ANY($2) AND state = 'unpaid' AND payout_id IS NULL`
	tag, err := q.db.Exec(ctx, query, payoutID, balanceIDs)
	if err != nil {
		return 0, fmt.Errorf("attach balances: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) MarkBalancesPaid(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE balances SET state = 'paid' WHERE payout_id = $1 AND state = 'processing'`, payoutID)
	if err != nil {
		return 0, fmt.Errorf("mark balances paid: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReleaseBalances returns a payout's balances to the unpaid pool.
func (q *Queries) ReleaseBalances(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	const query = `
		UPDATE balances SET state = 'unpaid', payout_id = NULL
		WHERE payout_id = $1 AND state IN ('processing', 'paid')`
	tag, err := q.db.Exec(ctx, query, payoutID)
	if err != nil {
		return 0, fmt.Errorf("release balances: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteCarriedBalance removes a carry-forward that has not been paid out yet.
func (q *Queries) DeleteCarriedBalance(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	const query = `
		DELETE FROM balances
		WHERE carried_from_payout_id = $1 AND state = 'unpaid' AND payout_id IS NULL`
	tag, err := q.db.Exec(ctx, query, payoutID)
	if err != nil {
		return 0, fmt.Errorf("delete carried balance: %w", err)
	}
	return tag.RowsAffected(), nil
}
