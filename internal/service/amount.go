package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

// DefaultInstantFeePercent is the instant payout fee netted out of the amount.
var DefaultInstantFeePercent = decimal.NewFromInt(3)

// Amount is the outcome of sizing one payout.
type Amount struct {
	// Amount is what gets submitted, in network units, after rounding and fees.
	Amount int64
	// LedgerAmount is the ledger value this payout settles.
	LedgerAmount int64
	// RetainedAmount is owed ledger value left behind by rounding.
	RetainedAmount int64
	// NetworkFee is the instant payout fee in network units.
	NetworkFee int64
	Transfer   *models.InternalTransfer
}

// PayoutAmountCalculator sizes a payout from a resolution, funding the
// destination from platform float first when needed.
type PayoutAmountCalculator struct {
	transfers         *InternalTransferService
	instantFeePercent decimal.Decimal
}

// NewPayoutAmountCalculator returns a calculator that funds destinations
// through transfers. A negative fee percent selects DefaultInstantFeePercent.
func NewPayoutAmountCalculator(transfers *InternalTransferService, instantFeePercent decimal.Decimal) *PayoutAmountCalculator {
	if instantFeePercent.IsNegative() {
		instantFeePercent = DefaultInstantFeePercent
	}
	return &PayoutAmountCalculator{transfers: transfers, instantFeePercent: instantFeePercent}
}

// Calculate returns the amounts for p. A payout that already carries an
// internal transfer reuses it instead of moving funds again.
func (c *PayoutAmountCalculator) Calculate(ctx context.Context, p *models.Payout, res *Resolution) (*Amount, error) {
	currency := strings.ToUpper(res.Destination.Currency)

	var total int64
	for _, b := range res.NetworkHeld {
		if !strings.EqualFold(b.Currency, currency) {
			return nil, fmt.Errorf("%w: balance %s is %s, destination is %s", ErrCurrencyMismatch, b.ID, b.Currency, currency)
		}
		total += b.HoldingAmount
	}

	out := &Amount{}
	if len(res.PlatformHeld) > 0 {
		transfer, err := c.fundFromPlatform(ctx, p, res)
		if err != nil {
			return nil, err
		}
		if transfer != nil {
			if !strings.EqualFold(transfer.SettledCurrency, currency) {
				return &Amount{Transfer: transfer}, fmt.Errorf("%w: transfer settled in %s, destination is %s", ErrCurrencyMismatch, transfer.SettledCurrency, currency)
			}
			total += transfer.SettledAmount
			out.Transfer = transfer
		}
	}
	if total <= 0 {
		return out, nil
	}

	// A transfer into the seller's own account is the payout itself: it moved
	// the full settled amount and no instant fee applies.
	if out.Transfer != nil && res.Destination.Kind == domain.AccountKindStandard && len(res.NetworkHeld) == 0 {
		out.Amount, _ = domain.ToNetworkUnits(currency, total)
		out.LedgerAmount = total
		return out, nil
	}

	networkAmount, ledgerRemainder := domain.ToNetworkUnits(currency, total)
	rounded, networkRemainder := domain.RoundForPayout(currency, networkAmount)
	out.RetainedAmount = ledgerRemainder + domain.ToLedgerUnits(currency, networkRemainder)
	out.LedgerAmount = total - out.RetainedAmount
	out.Amount = rounded

	if p.PayoutType == domain.PayoutTypeInstant {
		out.Amount, out.NetworkFee = domain.InstantPayoutAmount(rounded, c.instantFeePercent)
	}
	return out, nil
}

func (c *PayoutAmountCalculator) fundFromPlatform(ctx context.Context, p *models.Payout, res *Resolution) (*models.InternalTransfer, error) {
	if p.InternalTransferID != nil {
		return c.transfers.Get(ctx, *p.InternalTransferID)
	}

	platformCurrency := strings.ToUpper(res.PlatformHeld[0].Currency)
	var platformTotal int64
	for _, b := range res.PlatformHeld {
		if !strings.EqualFold(b.Currency, platformCurrency) {
			return nil, fmt.Errorf("%w: platform balances mix %s and %s", ErrCurrencyMismatch, platformCurrency, b.Currency)
		}
		platformTotal += b.HoldingAmount
	}
	if platformTotal <= 0 {
		return nil, nil
	}
	return c.transfers.Transfer(ctx, TransferRequest{
		Payout:      p,
		Destination: &res.Destination,
		Amount:      platformTotal,
		Currency:    platformCurrency,
	})
}
