package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/lock"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/network"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

const reviewReasonReversalInconsistency = "reversal_inconsistency"

// PayoutEventReconciler applies network payout events to the ledger. Every
// change runs under a per-payout lock and a compare-and-swap on state, so
// duplicate and out-of-order deliveries settle to the same result.
type PayoutEventReconciler struct {
	store    QueryStore
	network  network.Network
	locker   lock.Locker
	states   *payoutStateMachine
	comp     *compensator
	negative *NegativeBalanceHandler
	notifier Notifier
	opts     Options
}

// NewPayoutEventReconciler wires the reconciler with its own state machine,
// compensator and negative balance handler.
func NewPayoutEventReconciler(store QueryStore, nw network.Network, locker lock.Locker, notifier Notifier, opts Options) *PayoutEventReconciler {
	opts = opts.withDefaults()
	audit := NewAuditService()
	return &PayoutEventReconciler{
		store:    store,
		network:  nw,
		locker:   locker,
		states:   &payoutStateMachine{store: store, audit: audit},
		comp:     &compensator{transfers: NewInternalTransferService(store, nw), now: opts.Now},
		negative: NewNegativeBalanceHandler(store),
		notifier: notifier,
		opts:     opts,
	}
}

// Handle applies one event. Non-payout objects and unrelated event types are ignored.
func (r *PayoutEventReconciler) Handle(ctx context.Context, evt *Event) error {
	obj := evt.Data.Object
	if obj.Object != domain.EventObjectPayout || !isPayoutEventType(evt.Type) {
		return nil
	}
	debit := obj.Automatic && obj.Amount < 0 && evt.Type == domain.EventPayoutPaid
	if obj.Automatic && !debit {
		zap.L().Debug("ignoring automatic payout event", zap.String("event_id", evt.ID), zap.String("network_payout_id", obj.ID))
		return nil
	}
	if obj.ID == "" {
		return fmt.Errorf("%w: event %s has no payout id", ErrMalformedEvent, evt.ID)
	}
	if evt.Account == "" {
		return fmt.Errorf("%w: event %s has no account", ErrMalformedEvent, evt.ID)
	}

	q := r.store.Queries()
	account, err := q.GetMerchantAccountByNetworkID(ctx, evt.Account)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: unknown account %s", ErrPayoutNotFound, evt.Account)
		}
		return err
	}
	if debit {
		return r.negative.Handle(ctx, account, obj)
	}

	if obj.OriginalPayout != "" {
		return r.handleReversal(ctx, evt, account)
	}

	p, err := q.GetPayoutByNetworkID(ctx, account.ID, obj.ID)
	if errors.Is(err, models.ErrNotFound) {
		// Later events about a reversing payout may omit original_payout.
		original, rerr := q.GetPayoutByReversingID(ctx, account.ID, obj.ID)
		if rerr == nil {
			return r.applyReversal(ctx, evt, original)
		}
		if errors.Is(rerr, models.ErrNotFound) {
			return fmt.Errorf("%w: network payout %s on %s", ErrPayoutNotFound, obj.ID, evt.Account)
		}
		return rerr
	}
	if err != nil {
		return err
	}
	if obj.Metadata[domain.MetadataPaymentKey] != p.ExternalID {
		return fmt.Errorf("%w: event carries %q, payout %s is %q",
			ErrPaymentMismatch, obj.Metadata[domain.MetadataPaymentKey], p.ID, p.ExternalID)
	}

	return r.withPayoutLock(ctx, p.ID, func(p *models.Payout) error {
		return r.applyPayoutEvent(ctx, p, evt)
	})
}

func (r *PayoutEventReconciler) applyPayoutEvent(ctx context.Context, p *models.Payout, evt *Event) error {
	obj := evt.Data.Object
	switch evt.Type {
	case domain.EventPayoutPaid:
		if p.State != domain.PayoutStateProcessing {
			r.logIgnored(p, evt)
			return nil
		}
		return r.states.transition(ctx, p, domain.PayoutStateCompleted, "paid",
			map[string]any{"event_id": evt.ID},
			func(u *models.Payout) {
				if at := obj.arrival(); at != nil {
					u.ArrivalDate = at
				}
			},
			r.comp.completeEffects(ctx))

	case domain.EventPayoutCanceled:
		if p.State != domain.PayoutStateProcessing {
			r.logIgnored(p, evt)
			return nil
		}
		return r.fail(ctx, p, domain.PayoutStateCancelled, "canceled", evt, nil, r.comp.releaseEffects(ctx))

	case domain.EventPayoutFailed:
		reason := network.FailureReasonForCode(obj.FailureCode)
		switch p.State {
		case domain.PayoutStateProcessing:
			return r.fail(ctx, p, domain.PayoutStateFailed, "failed", evt, &reason, r.comp.releaseEffects(ctx))
		case domain.PayoutStateCompleted:
			return r.fail(ctx, p, domain.PayoutStateReturned, "returned", evt, &reason, r.comp.returnEffects(ctx))
		}
	}
	r.logIgnored(p, evt)
	return nil
}

// fail reverses the internal transfer first so a redelivered event can finish
// the job if the transition below does not commit.
func (r *PayoutEventReconciler) fail(ctx context.Context, p *models.Payout, next domain.PayoutState, action string, evt *Event, reason *domain.FailureReason, effects effectsFunc) error {
	if err := r.comp.reverseTransfer(ctx, p); err != nil {
		return err
	}
	meta := map[string]any{"event_id": evt.ID}
	if reason != nil {
		meta["failure_reason"] = *reason
	}
	err := r.states.transition(ctx, p, next, action, meta,
		func(u *models.Payout) {
			if reason != nil {
				u.FailureReason = reason
			}
		}, effects)
	if err != nil {
		return err
	}
	notify(ctx, r.notifier, p)
	return nil
}

// withPayoutLock runs fn with the payout locked and freshly loaded.
func (r *PayoutEventReconciler) withPayoutLock(ctx context.Context, payoutID uuid.UUID, fn func(p *models.Payout) error) error {
	release, err := r.locker.Acquire(ctx, lock.PayoutKey(payoutID), r.opts.LockTTL)
	if err != nil {
		return err
	}
	defer release()

	p, err := r.store.Queries().GetPayout(ctx, payoutID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPayoutNotFound, payoutID)
		}
		return err
	}
	return fn(p)
}

// raiseInconsistency opens a review once per payout and returns ErrReversalInconsistency.
func (r *PayoutEventReconciler) raiseInconsistency(ctx context.Context, p *models.Payout, details string) error {
	opened := false
	err := r.store.RunInTx(ctx, func(qtx Repo) error {
		exists, err := qtx.HasOpenReview(ctx, p.ID, reviewReasonReversalInconsistency)
		if err != nil || exists {
			return err
		}
		review := &models.PayoutReview{
			ID:       uuid.New(),
			PayoutID: p.ID,
			Reason:   reviewReasonReversalInconsistency,
			Details:  details,
		}
		if err := qtx.InsertPayoutReview(ctx, review); err != nil {
			return err
		}
		opened = true
		return r.states.audit.Write(ctx, qtx, "payout", p.ID, nil, "review_opened", string(p.State), string(p.State),
			map[string]any{"review_id": review.ID, "reason": review.Reason})
	})
	if err != nil {
		return fmt.Errorf("open payout review: %w", err)
	}
	if opened {
		observability.IncrementReviewOpened(reviewReasonReversalInconsistency)
	}
	zap.L().Error("payout reversal inconsistency", append(payoutFields(p), zap.String("details", details))...)
	return fmt.Errorf("%w: payout %s: %s", ErrReversalInconsistency, p.ID, details)
}

func (r *PayoutEventReconciler) logIgnored(p *models.Payout, evt *Event) {
	zap.L().Info("payout event did not change state",
		append(payoutFields(p), zap.String("event_id", evt.ID), zap.String("event_type", evt.Type))...)
}

func (r *PayoutEventReconciler) now() time.Time {
	return r.opts.Now().UTC()
}

func sameID(a *string, b string) bool {
	return a != nil && strings.EqualFold(*a, b)
}
