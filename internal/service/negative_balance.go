package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

// NegativeBalanceHandler offsets automatic debits the network takes from a
// seller's account when its balance goes negative.
type NegativeBalanceHandler struct {
	store QueryStore
}

func NewNegativeBalanceHandler(store QueryStore) *NegativeBalanceHandler {
	return &NegativeBalanceHandler{store: store}
}

// Handle credits the seller with the debited amount. The network payout id is
// the credit's reference, so redelivered events insert nothing.
func (h *NegativeBalanceHandler) Handle(ctx context.Context, account *models.MerchantAccount, obj EventObject) error {
	if obj.Amount >= 0 {
		return nil
	}
	if account.SellerID == nil {
		return fmt.Errorf("%w: account %s has no seller", ErrPayoutNotFound, account.NetworkAccountID)
	}

	currency := strings.ToUpper(obj.Currency)
	if currency == "" {
		currency = account.Currency
	}
	ref := obj.ID
	credit := &models.Credit{
		ID:                uuid.New(),
		SellerID:          *account.SellerID,
		Currency:          currency,
		Amount:            domain.ToLedgerUnits(currency, -obj.Amount),
		Reason:            domain.CreditAutomaticDebitOffset,
		MerchantAccountID: &account.ID,
		NetworkReference:  &ref,
	}
	inserted, err := h.store.Queries().InsertCredit(ctx, credit)
	if err != nil {
		return fmt.Errorf("insert automatic debit credit: %w", err)
	}
	if !inserted {
		zap.L().Debug("automatic debit already credited", zap.String("network_payout_id", obj.ID))
		return nil
	}

	observability.IncrementCredit(string(domain.CreditAutomaticDebitOffset))
	zap.L().Info("automatic debit offset with credit",
		zap.String("network_payout_id", obj.ID),
		zap.String("seller_id", account.SellerID.String()),
		zap.Int64("amount", credit.Amount))
	return nil
}
