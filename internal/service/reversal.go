package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

// handleReversal applies an event about a payout that reverses an earlier one.
func (r *PayoutEventReconciler) handleReversal(ctx context.Context, evt *Event, account *models.MerchantAccount) error {
	obj := evt.Data.Object
	original, err := r.store.Queries().GetPayoutByNetworkID(ctx, account.ID, obj.OriginalPayout)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: reversed payout %s on %s", ErrPayoutNotFound, obj.OriginalPayout, evt.Account)
		}
		return err
	}
	return r.applyReversal(ctx, evt, original)
}

// applyReversal routes an event about a reversing payout to the payout it reverses.
func (r *PayoutEventReconciler) applyReversal(ctx context.Context, evt *Event, original *models.Payout) error {
	obj := evt.Data.Object
	if ref, ok := obj.Metadata[domain.MetadataPaymentKey]; ok && ref != original.ExternalID {
		return fmt.Errorf("%w: reversing payout %s carries %q, payout %s is %q",
			ErrPaymentMismatch, obj.ID, ref, original.ID, original.ExternalID)
	}

	return r.withPayoutLock(ctx, original.ID, func(p *models.Payout) error {
		if evt.Type == domain.EventPayoutPaid {
			return r.reversalPaid(ctx, p, obj.ID, evt)
		}
		return r.reversalFailed(ctx, p, obj.ID, evt)
	})
}

func (r *PayoutEventReconciler) reversalPaid(ctx context.Context, p *models.Payout, reversingID string, evt *Event) error {
	switch p.State {
	case domain.PayoutStateProcessing:
		// Never reported paid, so the money never left: apply at once.
		if err := r.comp.reverseTransfer(ctx, p); err != nil {
			return err
		}
		err := r.states.transition(ctx, p, domain.PayoutStateReturned, "reversed",
			map[string]any{"event_id": evt.ID, "reversing_payout_id": reversingID},
			func(u *models.Payout) {
				u.NetworkReversingPayoutID = stringPtr(reversingID)
				u.ReversalApplied = true
			},
			r.comp.releaseEffects(ctx))
		if err != nil {
			return err
		}
		notify(ctx, r.notifier, p)
		return nil

	case domain.PayoutStateCompleted:
		return r.scheduleReversalCheck(ctx, p, reversingID, evt)
	}
	r.logIgnored(p, evt)
	return nil
}

// scheduleReversalCheck records the reversing payout and defers applying it,
// since a reversal of a paid payout can itself still fail.
func (r *PayoutEventReconciler) scheduleReversalCheck(ctx context.Context, p *models.Payout, reversingID string, evt *Event) error {
	check := &models.ReversalCheck{
		ID:                uuid.New(),
		PayoutID:          p.ID,
		ReversingPayoutID: reversingID,
		RunAt:             r.now().Add(r.opts.ReversalConfirmationDelay),
		Status:            domain.ReversalCheckScheduled,
	}
	scheduled := false
	err := r.states.transition(ctx, p, p.State, "reversal_reported",
		map[string]any{"event_id": evt.ID, "reversing_payout_id": reversingID, "run_at": check.RunAt},
		func(u *models.Payout) { u.NetworkReversingPayoutID = stringPtr(reversingID) },
		func(qtx Repo, _ *models.Payout) error {
			inserted, err := qtx.InsertReversalCheck(ctx, check)
			scheduled = inserted
			return err
		})
	if err != nil {
		return err
	}
	if scheduled {
		observability.IncrementReversalCheck("scheduled")
		zap.L().Info("payout reversal check scheduled",
			append(payoutFields(p), zap.String("reversing_payout_id", reversingID), zap.Time("run_at", check.RunAt))...)
	}
	return nil
}

func (r *PayoutEventReconciler) reversalFailed(ctx context.Context, p *models.Payout, reversingID string, evt *Event) error {
	if !sameID(p.NetworkReversingPayoutID, reversingID) {
		r.logIgnored(p, evt)
		return nil
	}
	if p.ReversalApplied {
		return r.raiseInconsistency(ctx, p,
			fmt.Sprintf("reversing payout %s reported %s after the reversal was applied", reversingID, evt.Type))
	}
	if p.State != domain.PayoutStateCompleted {
		r.logIgnored(p, evt)
		return nil
	}

	// The reversal never happened; the original payout stands.
	cancelled := false
	err := r.states.transition(ctx, p, p.State, "reversal_withdrawn",
		map[string]any{"event_id": evt.ID, "reversing_payout_id": reversingID}, nil,
		func(qtx Repo, _ *models.Payout) error {
			check, err := qtx.GetReversalCheck(ctx, p.ID, reversingID)
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			rows, err := qtx.UpdateReversalCheck(ctx, check.ID, domain.ReversalCheckCancelled, check.RunAt)
			cancelled = rows > 0
			return err
		})
	if err != nil {
		return err
	}
	if cancelled {
		observability.IncrementReversalCheck("cancelled")
	}
	return nil
}

// RunReversalCheck re-reads a reversing payout and settles the reversal.
func (r *PayoutEventReconciler) RunReversalCheck(ctx context.Context, check models.ReversalCheck) error {
	q := r.store.Queries()
	p, err := q.GetPayout(ctx, check.PayoutID)
	if err != nil {
		return fmt.Errorf("load payout for reversal check: %w", err)
	}
	account, err := q.GetMerchantAccount(ctx, p.DestinationAccountID)
	if err != nil {
		return fmt.Errorf("load payout account: %w", err)
	}
	snapshot, err := r.network.RetrievePayout(ctx, check.ReversingPayoutID, account.NetworkAccountID)
	if err != nil {
		return networkFailure("retrieve_payout", err)
	}

	return r.withPayoutLock(ctx, p.ID, func(p *models.Payout) error {
		finish := func(status domain.ReversalCheckStatus, runAt time.Time) effectsFunc {
			return func(qtx Repo, _ *models.Payout) error {
				_, err := qtx.UpdateReversalCheck(ctx, check.ID, status, runAt)
				return err
			}
		}
		finishOnly := func(status domain.ReversalCheckStatus, runAt time.Time) error {
			return r.store.RunInTx(ctx, func(qtx Repo) error {
				return finish(status, runAt)(qtx, p)
			})
		}

		switch snapshot.Status {
		case domain.NetworkPayoutPaid:
			if p.State != domain.PayoutStateCompleted {
				observability.IncrementReversalCheck("noop")
				return finishOnly(domain.ReversalCheckDone, r.now())
			}
			if err := r.comp.reverseTransfer(ctx, p); err != nil {
				return err
			}
			err := r.states.transition(ctx, p, domain.PayoutStateReturned, "reversal_applied",
				map[string]any{"reversing_payout_id": check.ReversingPayoutID, "check_id": check.ID},
				func(u *models.Payout) {
					u.NetworkReversingPayoutID = stringPtr(check.ReversingPayoutID)
					u.ReversalApplied = true
				},
				chainEffects(r.comp.returnEffects(ctx), finish(domain.ReversalCheckDone, r.now())))
			if err != nil {
				return err
			}
			observability.IncrementReversalCheck("applied")
			notify(ctx, r.notifier, p)
			return nil

		case domain.NetworkPayoutFailed, domain.NetworkPayoutCanceled:
			if err := finishOnly(domain.ReversalCheckDone, r.now()); err != nil {
				return err
			}
			if p.ReversalApplied {
				return r.raiseInconsistency(ctx, p,
					fmt.Sprintf("reversing payout %s is %s after the reversal was applied", check.ReversingPayoutID, snapshot.Status))
			}
			observability.IncrementReversalCheck("withdrawn")
			return nil

		default:
			observability.IncrementReversalCheck("rescheduled")
			return finishOnly(domain.ReversalCheckScheduled, r.now().Add(r.opts.ReversalRecheckDelay))
		}
	})
}

// ProcessDueReversalChecks claims and runs up to batchSize due checks. A failed
// check is retried once its lease expires.
func (r *PayoutEventReconciler) ProcessDueReversalChecks(ctx context.Context, batchSize int32) (int, error) {
	checks, err := r.store.Queries().ClaimDueReversalChecks(ctx, r.now(), r.opts.ReversalCheckLease, batchSize)
	if err != nil {
		return 0, err
	}
	var firstErr error
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := r.RunReversalCheck(ctx, check); err != nil {
			zap.L().Error("reversal check failed",
				zap.String("check_id", check.ID.String()),
				zap.String("payout_id", check.PayoutID.String()),
				zap.Error(err))
			if firstErr == nil && !errors.Is(err, ErrReversalInconsistency) {
				firstErr = err
			}
		}
	}
	return len(checks), firstErr
}
