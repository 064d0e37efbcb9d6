package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/repository"
)

// Ledger is the balance and credit slice of the store.
type Ledger interface {
	FindUnpaidBalances(ctx context.Context, sellerID uuid.UUID) ([]models.Balance, error)
	ListPayoutBalances(ctx context.Context, payoutID uuid.UUID) ([]models.Balance, error)
	AttachBalances(ctx context.Context, payoutID uuid.UUID, balanceIDs []uuid.UUID) (int64, error)
	MarkBalancesPaid(ctx context.Context, payoutID uuid.UUID) (int64, error)
	ReleaseBalances(ctx context.Context, payoutID uuid.UUID) (int64, error)
	InsertBalance(ctx context.Context, b *models.Balance) error
	DeleteCarriedBalance(ctx context.Context, payoutID uuid.UUID) (int64, error)
	InsertCredit(ctx context.Context, c *models.Credit) (bool, error)
}

// Repo is the query surface the payout services depend on. *repository.Queries implements it.
type Repo interface {
	Ledger

	InsertPayout(ctx context.Context, p *models.Payout) error
	GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	GetPayoutByNetworkID(ctx context.Context, destinationAccountID uuid.UUID, networkPayoutID string) (*models.Payout, error)
	GetPayoutByReversingID(ctx context.Context, destinationAccountID uuid.UUID, reversingPayoutID string) (*models.Payout, error)
	FindPendingPayout(ctx context.Context, sellerID uuid.UUID) (*models.Payout, error)
	UpdatePayout(ctx context.Context, p *models.Payout, expected domain.PayoutState) (int64, error)
	ListStalePayouts(ctx context.Context, olderThan time.Time, limit int32) ([]models.Payout, error)
	ListSellerPayouts(ctx context.Context, sellerID uuid.UUID, limit, offset int32) ([]models.Payout, error)

	GetMerchantAccount(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error)
	GetMerchantAccountByNetworkID(ctx context.Context, networkAccountID string) (*models.MerchantAccount, error)
	ListMerchantAccounts(ctx context.Context, sellerID uuid.UUID, extraIDs []uuid.UUID) ([]models.MerchantAccount, error)

	InsertInternalTransfer(ctx context.Context, t *models.InternalTransfer) error
	GetInternalTransfer(ctx context.Context, id uuid.UUID) (*models.InternalTransfer, error)
	GetInternalTransferByNetworkID(ctx context.Context, networkTransferID string) (*models.InternalTransfer, error)
	MarkInternalTransferReversed(ctx context.Context, id uuid.UUID, reversalID string) (int64, error)

	InsertReversalCheck(ctx context.Context, c *models.ReversalCheck) (bool, error)
	GetReversalCheck(ctx context.Context, payoutID uuid.UUID, reversingPayoutID string) (*models.ReversalCheck, error)
	ClaimDueReversalChecks(ctx context.Context, now time.Time, lease time.Duration, limit int32) ([]models.ReversalCheck, error)
	UpdateReversalCheck(ctx context.Context, id uuid.UUID, status domain.ReversalCheckStatus, runAt time.Time) (int64, error)
	CountScheduledReversalChecks(ctx context.Context) (int64, error)

	InsertPayoutReview(ctx context.Context, r *models.PayoutReview) error
	HasOpenReview(ctx context.Context, payoutID uuid.UUID, reason string) (bool, error)
	ListPayoutReviews(ctx context.Context, includeResolved bool, limit, offset int32) ([]models.PayoutReview, error)
	ResolvePayoutReview(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, resolution string) (int64, error)
	CountOpenPayoutReviews(ctx context.Context) (int64, error)

	InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (int64, error)
}

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() Repo
	RunInTx(ctx context.Context, fn func(q Repo) error) error
}

type pgStore struct {
	store *repository.Store
}

// NewQueryStore adapts the Postgres store to QueryStore.
func NewQueryStore(store *repository.Store) QueryStore {
	return pgStore{store: store}
}

func (s pgStore) Queries() Repo {
	return s.store.Queries()
}

func (s pgStore) RunInTx(ctx context.Context, fn func(q Repo) error) error {
	return s.store.RunInTx(ctx, func(q *repository.Queries) error {
		return fn(q)
	})
}

// Notifier tells sellers about payouts that did not reach them.
type Notifier interface {
	PayoutFailed(ctx context.Context, p *models.Payout) error
}
