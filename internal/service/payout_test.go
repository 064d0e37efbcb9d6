package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/network"
)

func TestSettleSellerSubmitsNetworkHeldBalances(t *testing.T) {
	f := newFixture(t)
	account := f.addSubaccount("USD")
	f.addBalance(domain.HolderNetwork, 6_000, "USD", &account)
	f.addBalance(domain.HolderNetwork, 4_000, "USD", &account)

	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStateProcessing, p.State)
	require.Equal(t, int64(10_000), p.Amount)
	require.Equal(t, int64(10_000), p.LedgerAmount)
	require.Zero(t, p.RetainedAmount)
	require.Equal(t, account.ID, p.DestinationAccountID)
	require.Equal(t, int32(1), p.SubmissionAttempts)
	require.NotNil(t, p.NetworkTransferID)
	require.Equal(t, []string{"created", "sized", "submitted"}, f.store.auditActions(p.ID))

	for _, b := range f.sellerBalances() {
		require.Equal(t, domain.BalanceStateProcessing, b.State)
		require.NotNil(t, b.PayoutID)
		require.Equal(t, p.ID, *b.PayoutID)
	}

	snapshot, err := f.net.RetrievePayout(f.ctx, *p.NetworkTransferID, account.NetworkAccountID)
	require.NoError(t, err)
	require.Equal(t, p.ExternalID, snapshot.Metadata[domain.MetadataPaymentKey])
	require.Equal(t, int64(10_000), snapshot.Amount)
}

func TestSettleSellerWithoutBalances(t *testing.T) {
	f := newFixture(t)
	f.addSubaccount("USD")

	_, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.ErrorIs(t, err, ErrNothingToPay)
}

func TestSettleSellerWithoutDestinationRollsBack(t *testing.T) {
	f := newFixture(t)
	f.addBalance(domain.HolderPlatform, 5_000, "USD", nil)

	_, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.ErrorIs(t, err, ErrNoDestination)
	require.Empty(t, f.store.payouts)
	require.Equal(t, int64(5_000), f.unpaidTotal())
}

func TestSettleSellerRejectsUnknownPayoutType(t *testing.T) {
	f := newFixture(t)
	_, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutType("weekly"))
	require.Error(t, err)
}

func TestSettleSellerSizing(t *testing.T) {
	tests := []struct {
		name         string
		currency     string
		payoutType   domain.PayoutType
		balance      int64
		wantAmount   int64
		wantLedger   int64
		wantRetained int64
		wantFee      int64
	}{
		{name: "hundred-only currency floors and retains", currency: "HUF", payoutType: domain.PayoutTypeStandard, balance: 12_345, wantAmount: 12_300, wantLedger: 12_300, wantRetained: 45},
		{name: "instant fee is netted out", currency: "USD", payoutType: domain.PayoutTypeInstant, balance: 10_000, wantAmount: 9_708, wantLedger: 10_000, wantFee: 292},
		{name: "finer ledger remaps to network units", currency: "KRW", payoutType: domain.PayoutTypeStandard, balance: 1_234_567, wantAmount: 12_345, wantLedger: 1_234_500, wantRetained: 67},
		{name: "plain two-decimal currency", currency: "EUR", payoutType: domain.PayoutTypeStandard, balance: 2_501, wantAmount: 2_501, wantLedger: 2_501},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			account := f.addSubaccount(tc.currency)
			f.addBalance(domain.HolderNetwork, tc.balance, tc.currency, &account)

			p, err := f.payouts.SettleSeller(f.ctx, f.seller, tc.payoutType)
			require.NoError(t, err)
			require.Equal(t, tc.wantAmount, p.Amount)
			require.Equal(t, tc.wantLedger, p.LedgerAmount)
			require.Equal(t, tc.wantRetained, p.RetainedAmount)
			if tc.wantFee == 0 {
				require.Nil(t, p.NetworkFee)
			} else {
				require.NotNil(t, p.NetworkFee)
				require.Equal(t, tc.wantFee, *p.NetworkFee)
			}
		})
	}
}

func TestSettleSellerCarriesRetainedAmountForward(t *testing.T) {
	f := newFixture(t)
	p := f.settledPayout(12_345, "HUF")

	require.NoError(t, f.reconciler.Handle(f.ctx, f.event(p, domain.EventPayoutPaid)))
	require.Equal(t, domain.PayoutStateCompleted, f.payout(p.ID).State)

	var carried *models.Balance
	for _, b := range f.sellerBalances() {
		if b.CarriedFromPayoutID != nil {
			carried = &b
			continue
		}
		require.Equal(t, domain.BalanceStatePaid, b.State)
	}
	require.NotNil(t, carried)
	require.Equal(t, p.ID, *carried.CarriedFromPayoutID)
	require.Equal(t, int64(45), carried.HoldingAmount)
	require.Equal(t, domain.BalanceStateUnpaid, carried.State)
	require.Equal(t, domain.HolderNetwork, carried.HolderOfFunds)
	require.Equal(t, p.DestinationAccountID, *carried.MerchantAccountID)
}

func TestSettleSellerStandardAccountCompletesByTransfer(t *testing.T) {
	f := newFixture(t)
	f.addAccount(domain.AccountKindStandard, domain.HolderNetwork, "USD", "acct_std")
	f.addBalance(domain.HolderPlatform, 5_000, "USD", nil)

	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStateCompleted, p.State)
	require.NotNil(t, p.InternalTransferID)

	transfer, err := f.store.GetInternalTransfer(f.ctx, *p.InternalTransferID)
	require.NoError(t, err)
	require.Equal(t, transfer.DestinationPaymentID, *p.NetworkTransferID)

	submits, transfers, _ := f.net.counts()
	require.Zero(t, submits)
	require.Equal(t, 1, transfers)
	for _, b := range f.sellerBalances() {
		require.Equal(t, domain.BalanceStatePaid, b.State)
	}
}

func TestSettleSellerStandardAccountPaysWholeTransfer(t *testing.T) {
	tests := []struct {
		name       string
		currency   string
		payoutType domain.PayoutType
		balance    int64
	}{
		{name: "hundred-only currency is not rounded", currency: "HUF", payoutType: domain.PayoutTypeStandard, balance: 12_345},
		{name: "instant payout carries no fee", currency: "USD", payoutType: domain.PayoutTypeInstant, balance: 10_000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addAccount(domain.AccountKindStandard, domain.HolderNetwork, tc.currency, "acct_std")
			f.addBalance(domain.HolderPlatform, tc.balance, tc.currency, nil)

			p, err := f.payouts.SettleSeller(f.ctx, f.seller, tc.payoutType)
			require.NoError(t, err)
			require.Equal(t, domain.PayoutStateCompleted, p.State)
			require.Equal(t, tc.balance, p.Amount)
			require.Equal(t, tc.balance, p.LedgerAmount)
			require.Zero(t, p.RetainedAmount)
			require.Nil(t, p.NetworkFee)

			transfer, err := f.store.GetInternalTransfer(f.ctx, *p.InternalTransferID)
			require.NoError(t, err)
			require.Equal(t, tc.balance, transfer.SettledAmount)

			require.Zero(t, f.unpaidTotal())
			for _, b := range f.sellerBalances() {
				require.Nil(t, b.CarriedFromPayoutID)
				require.Equal(t, domain.BalanceStatePaid, b.State)
			}
		})
	}
}

func TestSettleSellerFundsSubaccountFromPlatform(t *testing.T) {
	f := newFixture(t)
	f.net.TransferFee = 25
	account := f.addSubaccount("USD")
	f.addBalance(domain.HolderPlatform, 5_000, "USD", nil)
	f.addBalance(domain.HolderNetwork, 3_000, "USD", &account)

	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStateProcessing, p.State)
	require.Equal(t, int64(7_975), p.Amount)
	require.NotNil(t, p.InternalTransferID)

	transfer, err := f.store.GetInternalTransfer(f.ctx, *p.InternalTransferID)
	require.NoError(t, err)
	require.Equal(t, int64(5_000), transfer.Amount)
	require.Equal(t, int64(4_975), transfer.SettledAmount)
}

func TestSettleSellerValidationFailure(t *testing.T) {
	f := newFixture(t)
	account := f.addSubaccount("USD")
	f.addBalance(domain.HolderNetwork, 10_000, "USD", &account)
	f.net.setSubmitErr(network.NewValidationError("balance_insufficient", "Insufficient funds in Stripe account."))

	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStateFailed, p.State)
	require.NotNil(t, p.FailureReason)
	require.Equal(t, domain.FailureInsufficientFunds, *p.FailureReason)
	require.Equal(t, 1, f.notifier.count())
	require.Equal(t, int64(10_000), f.unpaidTotal())
	for _, b := range f.sellerBalances() {
		require.Nil(t, b.PayoutID)
	}
}

func TestSettleSellerValidationFailureReversesTransfer(t *testing.T) {
	f := newFixture(t)
	f.addSubaccount("USD")
	f.addBalance(domain.HolderPlatform, 5_000, "USD", nil)
	f.net.setSubmitErr(network.NewValidationError("", "Sorry, you don't have any external accounts in that currency (usd)."))

	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStateFailed, p.State)
	require.Equal(t, domain.FailureCannotPay, *p.FailureReason)

	transfer, err := f.store.GetInternalTransfer(f.ctx, *p.InternalTransferID)
	require.NoError(t, err)
	require.NotNil(t, transfer.ReversalID)
	_, _, reversals := f.net.counts()
	require.Equal(t, 1, reversals)
}

func TestSettleSellerResumesAfterNetworkOutage(t *testing.T) {
	f := newFixture(t)
	account := f.addSubaccount("USD")
	f.addBalance(domain.HolderNetwork, 10_000, "USD", &account)
	f.net.setSubmitErr(fmt.Errorf("dial tcp: %w", network.ErrConnection))

	first, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.ErrorIs(t, err, ErrNetworkUnavailable)
	require.Equal(t, domain.PayoutStatePending, first.State)
	require.Equal(t, int32(1), first.SubmissionAttempts)
	require.Zero(t, f.notifier.count())

	f.net.setSubmitErr(nil)
	second, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, domain.PayoutStateProcessing, second.State)
	require.Equal(t, int32(2), second.SubmissionAttempts)
	require.Len(t, f.store.payouts, 1)
}

func TestSettleSellerCancelsPayoutThatRoundsToZero(t *testing.T) {
	f := newFixture(t)
	account := f.addSubaccount("HUF")
	f.addBalance(domain.HolderNetwork, 45, "HUF", &account)

	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.ErrorIs(t, err, ErrAmountTooSmall)
	require.Equal(t, domain.PayoutStateCancelled, p.State)
	require.Equal(t, int64(45), f.unpaidTotal())

	submits, _, _ := f.net.counts()
	require.Zero(t, submits)
}

func TestSettleSellerFailsWhenTransferRejected(t *testing.T) {
	f := newFixture(t)
	f.addSubaccount("USD")
	f.addBalance(domain.HolderPlatform, 5_000, "USD", nil)
	f.net.transferErr = network.NewValidationError("", "Insufficient funds in the platform balance")

	p, err := f.payouts.SettleSeller(f.ctx, f.seller, domain.PayoutTypeStandard)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStateFailed, p.State)
	require.Equal(t, domain.FailureInsufficientFunds, *p.FailureReason)
	require.Equal(t, int64(5_000), f.unpaidTotal())
}

func TestResolveReview(t *testing.T) {
	f := newFixture(t)
	p := f.settledPayout(1_000, "USD")
	require.NoError(t, f.reconciler.Handle(f.ctx, f.reversalEvent(p, "po_rev", domain.EventPayoutPaid)))
	require.ErrorIs(t, f.reconciler.Handle(f.ctx, f.reversalEvent(p, "po_rev", domain.EventPayoutFailed)), ErrReversalInconsistency)

	reviews, err := f.payouts.ListReviews(f.ctx, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, reviews, 1)

	size, err := f.payouts.ReviewQueueSize(f.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	actor := f.seller
	require.Error(t, f.payouts.ResolveReview(f.ctx, reviews[0].ID, &actor, " "))
	require.NoError(t, f.payouts.ResolveReview(f.ctx, reviews[0].ID, &actor, "refunded seller manually"))
	require.ErrorIs(t, f.payouts.ResolveReview(f.ctx, reviews[0].ID, &actor, "again"), ErrReviewNotFound)

	open, err := f.payouts.ListReviews(f.ctx, false, 10, 0)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestGetPayoutNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.payouts.GetPayout(f.ctx, f.seller)
	require.ErrorIs(t, err, ErrPayoutNotFound)
}
