package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

type effectsFunc func(qtx Repo, p *models.Payout) error

func chainEffects(fns ...effectsFunc) effectsFunc {
	return func(qtx Repo, p *models.Payout) error {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(qtx, p); err != nil {
				return err
			}
		}
		return nil
	}
}

// compensator holds the ledger side effects shared by the executor and the
// reconciler.
type compensator struct {
	transfers *InternalTransferService
	now       func() time.Time
}

// reverseTransfer undoes the payout's internal transfer, if it has one. It is
// safe to repeat.
func (c *compensator) reverseTransfer(ctx context.Context, p *models.Payout) error {
	if p.InternalTransferID == nil {
		return nil
	}
	_, err := c.transfers.Reverse(ctx, *p.InternalTransferID, &p.ID)
	return err
}

// completeEffects marks the payout's balances paid and carries any rounding
// remainder forward as a new unpaid balance on the destination account.
func (c *compensator) completeEffects(ctx context.Context) effectsFunc {
	return func(qtx Repo, p *models.Payout) error {
		if _, err := qtx.MarkBalancesPaid(ctx, p.ID); err != nil {
			return err
		}
		if p.RetainedAmount <= 0 {
			return nil
		}
		payoutID, accountID := p.ID, p.DestinationAccountID
		return qtx.InsertBalance(ctx, &models.Balance{
			ID:                  uuid.New(),
			SellerID:            p.SellerID,
			Date:                c.now().UTC().Truncate(24 * time.Hour),
			Currency:            p.Currency,
			HoldingAmount:       p.RetainedAmount,
			HolderOfFunds:       domain.HolderNetwork,
			MerchantAccountID:   &accountID,
			State:               domain.BalanceStateUnpaid,
			CarriedFromPayoutID: &payoutID,
		})
	}
}

// releaseEffects returns the payout's balances to the unpaid pool.
func (c *compensator) releaseEffects(ctx context.Context) effectsFunc {
	return func(qtx Repo, p *models.Payout) error {
		_, err := qtx.ReleaseBalances(ctx, p.ID)
		return err
	}
}

// returnEffects releases balances of a payout that had completed and undoes its
// carry-forward. A carry-forward already paid out elsewhere is offset with a
// negative credit instead.
func (c *compensator) returnEffects(ctx context.Context) effectsFunc {
	return chainEffects(c.releaseEffects(ctx), func(qtx Repo, p *models.Payout) error {
		if p.RetainedAmount <= 0 {
			return nil
		}
		rows, err := qtx.DeleteCarriedBalance(ctx, p.ID)
		if err != nil {
			return err
		}
		if rows > 0 {
			return nil
		}
		payoutID := p.ID
		ref := "carry-forward:" + p.ID.String()
		inserted, err := qtx.InsertCredit(ctx, &models.Credit{
			ID:                uuid.New(),
			SellerID:          p.SellerID,
			Currency:          p.Currency,
			Amount:            -p.RetainedAmount,
			Reason:            domain.CreditReversedPayoutDifference,
			PayoutID:          &payoutID,
			MerchantAccountID: &p.DestinationAccountID,
			NetworkReference:  &ref,
		})
		if err != nil {
			return err
		}
		if inserted {
			observability.IncrementCredit(string(domain.CreditReversedPayoutDifference))
			zap.L().Info("carry-forward already paid; offset with credit",
				zap.String("payout_id", p.ID.String()), zap.Int64("amount", -p.RetainedAmount))
		}
		return nil
	})
}
