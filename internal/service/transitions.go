package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

var ErrInvalidTransition = errors.New("invalid payout state transition")

var payoutTransitions = map[domain.PayoutState]map[domain.PayoutState]struct{}{
	domain.PayoutStatePending: {
		domain.PayoutStateProcessing: {},
		domain.PayoutStateCompleted:  {},
		domain.PayoutStateFailed:     {},
		domain.PayoutStateCancelled:  {},
	},
	domain.PayoutStateProcessing: {
		domain.PayoutStateCompleted: {},
		domain.PayoutStateCancelled: {},
		domain.PayoutStateFailed:    {},
		domain.PayoutStateReturned:  {},
	},
	// The only non-monotonic edge: a paid payout the network later returns.
	domain.PayoutStateCompleted: {
		domain.PayoutStateReturned: {},
	},
	domain.PayoutStateFailed:    {},
	domain.PayoutStateCancelled: {},
	domain.PayoutStateReturned:  {},
}

func canTransition(current, next domain.PayoutState) bool {
	nextStates, ok := payoutTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

func isTerminal(state domain.PayoutState) bool {
	return len(payoutTransitions[state]) == 0
}

// payoutStateMachine persists payout changes with a compare-and-swap on state.
type payoutStateMachine struct {
	store QueryStore
	audit *AuditService
}

// transition moves p to next inside one transaction: the guarded update, any
// ledger effects, and the audit entry. p is only updated when the commit succeeds.
// next may equal the current state to persist field changes under the same guard.
func (m *payoutStateMachine) transition(ctx context.Context, p *models.Payout, next domain.PayoutState, action string, metadata map[string]any, mutate func(*models.Payout), effects func(qtx Repo, p *models.Payout) error) error {
	prev := p.State
	if prev != next && !canTransition(prev, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}

	updated := *p
	updated.State = next
	if mutate != nil {
		mutate(&updated)
	}

	err := m.store.RunInTx(ctx, func(qtx Repo) error {
		rows, err := qtx.UpdatePayout(ctx, &updated, prev)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: payout %s is no longer %s", models.ErrStateConflict, p.ID, prev)
		}
		if effects != nil {
			if err := effects(qtx, &updated); err != nil {
				return err
			}
		}
		if action == "" {
			return nil
		}
		return m.audit.Write(ctx, qtx, "payout", p.ID, nil, action, string(prev), string(next), metadata)
	})
	if err != nil {
		return err
	}

	updated.UpdatedAt = time.Now().UTC()
	*p = updated
	if prev != next {
		observability.IncrementPayoutTransition(string(prev), string(next))
		zap.L().Info("payout transitioned", append(payoutFields(p), zap.String("from", string(prev)), zap.String("action", action))...)
	}
	return nil
}
