package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/lock"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/network"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

// PayoutService settles seller balances into network payouts.
type PayoutService struct {
	store      QueryStore
	locker     lock.Locker
	resolver   FundHolderResolver
	calculator *PayoutAmountCalculator
	executor   *PayoutExecutor
	states     *payoutStateMachine
	comp       *compensator
	notifier   Notifier
	opts       Options
}

func NewPayoutService(store QueryStore, nw network.Network, locker lock.Locker, notifier Notifier, opts Options) *PayoutService {
	opts = opts.withDefaults()
	audit := NewAuditService()
	transfers := NewInternalTransferService(store, nw)
	states := &payoutStateMachine{store: store, audit: audit}
	comp := &compensator{transfers: transfers, now: opts.Now}
	executor := &PayoutExecutor{
		network:  nw,
		states:   states,
		comp:     comp,
		notifier: notifier,
	}
	return &PayoutService{
		store:      store,
		locker:     locker,
		calculator: NewPayoutAmountCalculator(transfers, opts.InstantFeePercent),
		executor:   executor,
		states:     states,
		comp:       comp,
		notifier:   notifier,
		opts:       opts,
	}
}

// SettleSeller pays out the seller's unpaid balances. A payout left pending by
// an earlier run is resumed instead of creating a new one, so its idempotency
// keys are reused on the network.
//
// The returned payout is pending when the network was unreachable; the error
// then wraps ErrNetworkUnavailable.
func (s *PayoutService) SettleSeller(ctx context.Context, sellerID uuid.UUID, payoutType domain.PayoutType) (*models.Payout, error) {
	if payoutType == "" {
		payoutType = domain.PayoutTypeStandard
	}
	if payoutType != domain.PayoutTypeStandard && payoutType != domain.PayoutTypeInstant {
		return nil, fmt.Errorf("unsupported payout type: %s", payoutType)
	}

	release, err := s.locker.Acquire(ctx, lock.SellerKey(sellerID), s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.store.Queries().FindPendingPayout(ctx, sellerID)
	switch {
	case err == nil:
		zap.L().Info("resuming pending payout", payoutFields(p)...)
	case errors.Is(err, models.ErrNotFound):
		p, err = s.createPayout(ctx, sellerID, payoutType)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("find pending payout: %w", err)
	}

	releasePayout, err := s.locker.Acquire(ctx, lock.PayoutKey(p.ID), s.opts.LockTTL)
	if err != nil {
		return p, err
	}
	defer releasePayout()

	return s.settle(ctx, p)
}

// createPayout claims the seller's unpaid balances for a new pending payout.
func (s *PayoutService) createPayout(ctx context.Context, sellerID uuid.UUID, payoutType domain.PayoutType) (*models.Payout, error) {
	var created *models.Payout
	err := s.store.RunInTx(ctx, func(qtx Repo) error {
		balances, err := qtx.FindUnpaidBalances(ctx, sellerID)
		if err != nil {
			return fmt.Errorf("find unpaid balances: %w", err)
		}
		if len(balances) == 0 {
			return fmt.Errorf("%w: %s", ErrNothingToPay, sellerID)
		}

		var extra []uuid.UUID
		for _, b := range balances {
			if b.MerchantAccountID != nil {
				extra = append(extra, *b.MerchantAccountID)
			}
		}
		accounts, err := qtx.ListMerchantAccounts(ctx, sellerID, extra)
		if err != nil {
			return fmt.Errorf("list merchant accounts: %w", err)
		}
		res, err := s.resolver.Resolve(sellerID, balances, accounts)
		if err != nil {
			return err
		}

		id := uuid.New()
		p := &models.Payout{
			ID:                   id,
			ExternalID:           "po_" + strings.ReplaceAll(id.String(), "-", ""),
			SellerID:             sellerID,
			Currency:             strings.ToUpper(res.Destination.Currency),
			PayoutType:           payoutType,
			State:                domain.PayoutStatePending,
			DestinationAccountID: res.Destination.ID,
		}
		if err := qtx.InsertPayout(ctx, p); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}

		ids := make([]uuid.UUID, 0, len(balances))
		for _, b := range res.Balances() {
			ids = append(ids, b.ID)
		}
		rows, err := qtx.AttachBalances(ctx, p.ID, ids)
		if err != nil {
			return fmt.Errorf("attach balances: %w", err)
		}
		if rows != int64(len(ids)) {
			return fmt.Errorf("%w: attached %d of %d balances", models.ErrStateConflict, rows, len(ids))
		}

		created = p
		return s.states.audit.Write(ctx, qtx, "payout", p.ID, nil, "created", "", string(p.State),
			map[string]any{"balances": len(ids), "destination_account_id": p.DestinationAccountID, "payout_type": p.PayoutType})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("payout created", payoutFields(created)...)
	return created, nil
}

// settle sizes a pending payout and hands it to the executor.
func (s *PayoutService) settle(ctx context.Context, p *models.Payout) (*models.Payout, error) {
	q := s.store.Queries()
	dest, err := q.GetMerchantAccount(ctx, p.DestinationAccountID)
	if err != nil {
		return p, fmt.Errorf("load destination account: %w", err)
	}
	balances, err := q.ListPayoutBalances(ctx, p.ID)
	if err != nil {
		return p, fmt.Errorf("list payout balances: %w", err)
	}
	res := &Resolution{Destination: *dest}
	for _, b := range balances {
		if b.HolderOfFunds == domain.HolderNetwork {
			res.NetworkHeld = append(res.NetworkHeld, b)
		} else {
			res.PlatformHeld = append(res.PlatformHeld, b)
		}
	}

	amount, err := s.calculator.Calculate(ctx, p, res)
	if err != nil {
		if amount != nil && amount.Transfer != nil && p.InternalTransferID == nil {
			id := amount.Transfer.ID
			p.InternalTransferID = &id
		}
		return s.handleSizingError(ctx, p, err)
	}

	err = s.states.transition(ctx, p, p.State, "sized",
		map[string]any{"amount": amount.Amount, "ledger_amount": amount.LedgerAmount, "retained_amount": amount.RetainedAmount},
		func(u *models.Payout) {
			u.Amount = amount.Amount
			u.LedgerAmount = amount.LedgerAmount
			u.RetainedAmount = amount.RetainedAmount
			if amount.NetworkFee > 0 {
				fee := amount.NetworkFee
				u.NetworkFee = &fee
			}
			if amount.Transfer != nil {
				id := amount.Transfer.ID
				u.InternalTransferID = &id
			}
		}, nil)
	if err != nil {
		return p, err
	}

	if p.Amount <= 0 {
		if err := s.comp.reverseTransfer(ctx, p); err != nil {
			return p, err
		}
		if err := s.states.transition(ctx, p, domain.PayoutStateCancelled, "amount_too_small",
			map[string]any{"retained_amount": p.RetainedAmount}, nil, s.comp.releaseEffects(ctx)); err != nil {
			return p, err
		}
		return p, fmt.Errorf("%w: payout %s", ErrAmountTooSmall, p.ID)
	}

	result, err := s.executor.Submit(ctx, p, dest, balances)
	if err != nil {
		return p, err
	}
	return result.Payout, nil
}

// handleSizingError leaves the payout pending on infrastructure errors and
// fails it when the network or the ledger rejects it outright.
func (s *PayoutService) handleSizingError(ctx context.Context, p *models.Payout, err error) (*models.Payout, error) {
	if errors.Is(err, ErrNetworkUnavailable) {
		zap.L().Warn("payout sizing deferred", append(payoutFields(p), zap.Error(err))...)
		return p, err
	}

	reason := domain.FailureOther
	verr, isValidation := network.AsValidation(err)
	switch {
	case isValidation:
		reason = verr.Reason
	case errors.Is(err, ErrCurrencyMismatch):
	default:
		return p, err
	}

	zap.L().Warn("payout could not be funded", append(payoutFields(p), zap.String("reason", string(reason)), zap.Error(err))...)
	if rerr := s.comp.reverseTransfer(ctx, p); rerr != nil {
		return p, rerr
	}
	if terr := s.states.transition(ctx, p, domain.PayoutStateFailed, "funding_failed",
		map[string]any{"failure_reason": reason, "error": err.Error()},
		func(u *models.Payout) { u.FailureReason = &reason },
		s.comp.releaseEffects(ctx)); terr != nil {
		return p, terr
	}
	notify(ctx, s.notifier, p)
	return p, nil
}

// GetPayout retrieves a payout by ID.
func (s *PayoutService) GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	p, err := s.store.Queries().GetPayout(ctx, payoutID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return p, nil
}

// ListSellerPayouts returns a seller's payouts, newest first.
func (s *PayoutService) ListSellerPayouts(ctx context.Context, sellerID uuid.UUID, limit, offset int32) ([]models.Payout, error) {
	return s.store.Queries().ListSellerPayouts(ctx, sellerID, limit, offset)
}

// ListReviews returns payouts waiting for an operator.
func (s *PayoutService) ListReviews(ctx context.Context, includeResolved bool, limit, offset int32) ([]models.PayoutReview, error) {
	reviews, err := s.store.Queries().ListPayoutReviews(ctx, includeResolved, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list payout reviews: %w", err)
	}
	return reviews, nil
}

// ReviewQueueSize counts unresolved reviews.
func (s *PayoutService) ReviewQueueSize(ctx context.Context) (int64, error) {
	size, err := s.store.Queries().CountOpenPayoutReviews(ctx)
	if err != nil {
		return 0, err
	}
	observability.SetReviewQueueSize(size)
	return size, nil
}

// ResolveReview closes an open review. It does not touch the payout; any ledger
// correction is made by the operator.
func (s *PayoutService) ResolveReview(ctx context.Context, reviewID uuid.UUID, actorID *uuid.UUID, resolution string) error {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return errors.New("resolution is required")
	}
	err := s.store.RunInTx(ctx, func(qtx Repo) error {
		rows, err := qtx.ResolvePayoutReview(ctx, reviewID, actorID, resolution)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrReviewNotFound
		}
		return s.states.audit.Write(ctx, qtx, "payout_review", reviewID, actorID, "resolved", "open", "resolved",
			map[string]any{"resolution": resolution})
	})
	if err != nil {
		return err
	}
	zap.L().Info("payout review resolved", zap.String("review_id", reviewID.String()))
	return nil
}
