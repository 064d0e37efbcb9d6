package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

const (
	reviewReasonStuckPayout = "stuck_payout"
	staleSweepLimit         = 200
)

// ReconciliationService flags payouts that stopped moving and refreshes the
// review and reversal-check gauges.
type ReconciliationService struct {
	store QueryStore
	audit *AuditService
	opts  Options
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore, opts Options) *ReconciliationService {
	return &ReconciliationService{store: store, audit: NewAuditService(), opts: opts.withDefaults()}
}

// Run opens a review for every payout left pending, or processing without a
// network id, for longer than the stale window. It returns how many reviews it opened.
func (s *ReconciliationService) Run(ctx context.Context) (int, error) {
	queries := s.store.Queries()
	cutoff := s.opts.Now().UTC().Add(-s.opts.StaleAfter)
	stale, err := queries.ListStalePayouts(ctx, cutoff, staleSweepLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale payouts: %w", err)
	}

	opened := 0
	for i := range stale {
		p := &stale[i]
		ok, err := s.flag(ctx, p)
		if err != nil {
			zap.L().Error("failed to flag stuck payout", append(payoutFields(p), zap.Error(err))...)
			continue
		}
		if ok {
			opened++
			observability.IncrementReviewOpened(reviewReasonStuckPayout)
			zap.L().Warn("payout flagged as stuck", append(payoutFields(p), zap.Int32("submission_attempts", p.SubmissionAttempts))...)
		}
	}

	if size, err := queries.CountOpenPayoutReviews(ctx); err == nil {
		observability.SetReviewQueueSize(size)
	} else {
		zap.L().Error("failed to count open payout reviews", zap.Error(err))
	}
	if scheduled, err := queries.CountScheduledReversalChecks(ctx); err == nil {
		observability.SetScheduledReversalChecks(scheduled)
	} else {
		zap.L().Error("failed to count scheduled reversal checks", zap.Error(err))
	}

	zap.L().Info("payout reconciliation finished", zap.Int("stale", len(stale)), zap.Int("flagged", opened))
	return opened, nil
}

func (s *ReconciliationService) flag(ctx context.Context, p *models.Payout) (bool, error) {
	opened := false
	err := s.store.RunInTx(ctx, func(qtx Repo) error {
		exists, err := qtx.HasOpenReview(ctx, p.ID, reviewReasonStuckPayout)
		if err != nil || exists {
			return err
		}
		details := fmt.Sprintf("payout %s has been %s since %s after %d submission attempts",
			p.ExternalID, p.State, p.UpdatedAt.Format(time.RFC3339), p.SubmissionAttempts)
		review := &models.PayoutReview{
			ID:       uuid.New(),
			PayoutID: p.ID,
			Reason:   reviewReasonStuckPayout,
			Details:  details,
		}
		if err := qtx.InsertPayoutReview(ctx, review); err != nil {
			return err
		}
		opened = true
		return s.audit.Write(ctx, qtx, "payout", p.ID, nil, "review_opened", string(p.State), string(p.State),
			map[string]any{"review_id": review.ID, "reason": review.Reason})
	})
	return opened, err
}
