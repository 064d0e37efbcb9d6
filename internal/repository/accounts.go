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

const merchantAccountColumns = `id, seller_id, network_account_id, holder_of_funds, currency, kind, active, created_at`

func scanMerchantAccount(row pgx.Row) (*models.MerchantAccount, error) {
	var (
		a            models.MerchantAccount
		seller       pgtype.UUID
		holder, kind string
	)
	if err := row.Scan(&a.ID, &seller, &a.NetworkAccountID, &holder, &a.Currency, &kind, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.SellerID = uuidPtr(seller)
	a.HolderOfFunds = domain.HolderOfFunds(holder)
	a.Kind = domain.MerchantAccountKind(kind)
	return &a, nil
}

func (q *Queries) InsertMerchantAccount(ctx context.Context, a *models.MerchantAccount) error {
	const query = `
		INSERT INTO merchant_accounts (id, seller_id, network_account_id, holder_of_funds, currency, kind, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	err := q.db.QueryRow(ctx, query, a.ID, nullUUID(a.SellerID), a.NetworkAccountID,
		string(a.HolderOfFunds), a.Currency, string(a.Kind), a.Active).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert merchant account: %w", err)
	}
	return nil
}

func (q *Queries) GetMerchantAccount(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error) {
	a, err := scanMerchantAccount(q.db.QueryRow(ctx, `SELECT `+merchantAccountColumns+` FROM merchant_accounts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// GetMerchantAccountByNetworkID resolves the account named in a network event.
func (q *Queries) GetMerchantAccountByNetworkID(ctx context.Context, networkAccountID string) (*models.MerchantAccount, error) {
	const query = `SELECT ` + merchantAccountColumns + ` FROM merchant_accounts WHERE network_account_id = $1`
	a, err := scanMerchantAccount(q.db.QueryRow(ctx, query, networkAccountID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ListMerchantAccounts returns the seller's accounts plus the given extra ids.
func (q *Queries) ListMerchantAccounts(ctx context.Context, sellerID uuid.UUID, extraIDs []uuid.UUID) ([]models.MerchantAccount, error) {
	const query = `SELECT ` + merchantAccountColumns + ` FROM merchant_accounts
		WHERE seller_id = $1 OR id = ANY($2)
		ORDER BY created_at ASC`
	if extraIDs == nil {
		extraIDs = []uuid.UUID{}
	}
	rows, err := q.db.Query(ctx, query, sellerID, extraIDs)
	if err != nil {
		return nil, fmt.Errorf("list merchant accounts: %w", err)
	}
	defer rows.Close()
	var out []models.MerchantAccount
	for rows.Next() {
		a, err := scanMerchantAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merchant account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
