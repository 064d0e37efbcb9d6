package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/network"
)

// Network metadata limits.
const (
	metadataMaxKeys     = 50
	metadataMaxKeyLen   = 40
	metadataMaxValueLen = 500
	balanceKeyPrefix    = "balances"
)

// SubmitResult reports what the executor did with a payout.
type SubmitResult struct {
	Payout    *models.Payout
	Submitted bool
}

// PayoutExecutor submits sized payouts to the network and applies the
// immediate outcome.
type PayoutExecutor struct {
	network  network.Network
	states   *payoutStateMachine
	comp     *compensator
	notifier Notifier
}

// Submit sends p to the network. p must be pending with its amounts set and
// its balances attached.
func (e *PayoutExecutor) Submit(ctx context.Context, p *models.Payout, dest *models.MerchantAccount, balances []models.Balance) (*SubmitResult, error) {
	if p.State != domain.PayoutStatePending {
		return nil, fmt.Errorf("%w: submit requires pending, payout is %s", ErrInvalidTransition, p.State)
	}

	// Funds already sit in the seller's own account; there is nothing left to pay out.
	if dest.Kind == domain.AccountKindStandard && p.InternalTransferID != nil {
		transfer, err := e.comp.transfers.Get(ctx, *p.InternalTransferID)
		if err != nil {
			return nil, err
		}
		err = e.states.transition(ctx, p, domain.PayoutStateCompleted, "completed_by_transfer",
			map[string]any{"destination_payment_id": transfer.DestinationPaymentID},
			func(u *models.Payout) { u.NetworkTransferID = stringPtr(transfer.DestinationPaymentID) },
			e.comp.completeEffects(ctx))
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Payout: p}, nil
	}

	if err := e.states.transition(ctx, p, domain.PayoutStatePending, "", nil,
		func(u *models.Payout) { u.SubmissionAttempts++ }, nil); err != nil {
		return nil, err
	}

	snapshot, err := e.network.SubmitPayout(ctx, network.PayoutRequest{
		Amount:             p.Amount,
		Currency:           p.Currency,
		DestinationAccount: dest.NetworkAccountID,
		Description:        "Payout " + p.ExternalID,
		Instant:            p.PayoutType == domain.PayoutTypeInstant,
		Metadata:           payoutMetadata(p.ExternalID, balances),
		IdempotencyKey:     p.ExternalID,
	})
	if err != nil {
		return e.handleSubmitError(ctx, p, err)
	}

	err = e.states.transition(ctx, p, domain.PayoutStateProcessing, "submitted",
		map[string]any{"network_payout_id": snapshot.ID},
		func(u *models.Payout) {
			u.NetworkTransferID = stringPtr(snapshot.ID)
			u.ArrivalDate = snapshot.ArrivalDate
		}, nil)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Payout: p, Submitted: true}, nil
}

func (e *PayoutExecutor) handleSubmitError(ctx context.Context, p *models.Payout, err error) (*SubmitResult, error) {
	wrapped := networkFailure("submit_payout", err)
	if errors.Is(wrapped, ErrNetworkUnavailable) {
		zap.L().Warn("payout submission deferred", append(payoutFields(p), zap.Error(err))...)
		return nil, wrapped
	}

	reason := domain.FailureOther
	if verr, ok := network.AsValidation(err); ok {
		reason = verr.Reason
	}
	zap.L().Warn("payout rejected by network", append(payoutFields(p), zap.String("reason", string(reason)), zap.Error(err))...)

	if err := e.comp.reverseTransfer(ctx, p); err != nil {
		return nil, err
	}
	err = e.states.transition(ctx, p, domain.PayoutStateFailed, "submission_rejected",
		map[string]any{"failure_reason": reason, "error": err.Error()},
		func(u *models.Payout) { u.FailureReason = &reason },
		e.comp.releaseEffects(ctx))
	if err != nil {
		return nil, err
	}
	notify(ctx, e.notifier, p)
	return &SubmitResult{Payout: p}, nil
}

// payoutMetadata carries the payout external id plus the balance ids, packed
// into as few keys as the network's limits allow.
func payoutMetadata(externalID string, balances []models.Balance) map[string]string {
	md := map[string]string{domain.MetadataPaymentKey: externalID}

	ids := make([]string, 0, len(balances))
	for _, b := range balances {
		ids = append(ids, b.ID.String())
	}
	sort.Strings(ids)

	var chunk []string
	size := 0
	flush := func() bool {
		if len(chunk) == 0 {
			return true
		}
		if len(md) >= metadataMaxKeys {
			return false
		}
		key := fmt.Sprintf("%s_%d", balanceKeyPrefix, len(md))
		if len(key) > metadataMaxKeyLen {
			return false
		}
		md[key] = strings.Join(chunk, ",")
		chunk, size = nil, 0
		return true
	}
	for _, id := range ids {
		added := len(id)
		if len(chunk) > 0 {
			added++
		}
		if size+added > metadataMaxValueLen && !flush() {
			return md
		}
		if len(chunk) > 0 {
			size++
		}
		chunk = append(chunk, id)
		size += len(id)
	}
	flush()
	return md
}
