package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
	"github.com/ayo6706/payout-settlement/internal/network"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

// ErrUnknownTransfer is returned when a reversal names a transfer the ledger never recorded.
var ErrUnknownTransfer = errors.New("internal transfer not found")

// InternalTransferService moves platform-held float into a seller's network
// account ahead of a payout, and undoes that move when the payout does not land.
type InternalTransferService struct {
	store   QueryStore
	network network.Network
}

func NewInternalTransferService(store QueryStore, nw network.Network) *InternalTransferService {
	return &InternalTransferService{store: store, network: nw}
}

// TransferRequest describes platform funds to push into a destination account.
type TransferRequest struct {
	Payout      *models.Payout
	Destination *models.MerchantAccount
	Amount      int64
	Currency    string
}

// Transfer creates the network transfer and records what actually settled on
// the destination side. Network errors abort the payout attempt.
func (s *InternalTransferService) Transfer(ctx context.Context, req TransferRequest) (*models.InternalTransfer, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("internal transfer amount must be positive: %d", req.Amount)
	}

	networkAmount, _ := domain.ToNetworkUnits(req.Currency, req.Amount)
	tr, err := s.network.CreateTransfer(ctx, network.TransferRequest{
		Amount:             networkAmount,
		Currency:           req.Currency,
		DestinationAccount: req.Destination.NetworkAccountID,
		Description:        "Payout funding " + req.Payout.ExternalID,
		Metadata:           map[string]string{domain.MetadataPaymentKey: req.Payout.ExternalID},
		IdempotencyKey:     req.Payout.ExternalID + "-transfer",
	})
	if err != nil {
		return nil, networkFailure("create_transfer", err)
	}

	charge, err := s.network.RetrieveCharge(ctx, tr.DestinationPaymentID, req.Destination.NetworkAccountID, network.ExpandBalanceTransaction)
	if err != nil {
		return nil, networkFailure("retrieve_charge", err)
	}
	if charge.BalanceTransaction == nil {
		return nil, fmt.Errorf("destination charge %s has no balance transaction", charge.ID)
	}

	settledCurrency := strings.ToUpper(charge.BalanceTransaction.Currency)
	if settledCurrency == "" {
		settledCurrency = req.Destination.Currency
	}
	transfer := &models.InternalTransfer{
		ID:                   uuid.New(),
		SellerID:             req.Payout.SellerID,
		DestinationAccountID: req.Destination.ID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		NetworkTransferID:    tr.ID,
		DestinationPaymentID: tr.DestinationPaymentID,
		SettledAmount:        domain.ToLedgerUnits(settledCurrency, charge.BalanceTransaction.Net),
		SettledCurrency:      settledCurrency,
		Reversible:           true,
	}

	q := s.store.Queries()
	if err := q.InsertInternalTransfer(ctx, transfer); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			// Same idempotency key replayed after a crash; the first row wins.
			return q.GetInternalTransferByNetworkID(ctx, tr.ID)
		}
		return nil, err
	}

	zap.L().Info("internal transfer created",
		zap.String("payout_id", req.Payout.ID.String()),
		zap.String("network_transfer_id", tr.ID),
		zap.Int64("amount", req.Amount),
		zap.Int64("settled_amount", transfer.SettledAmount))
	return transfer, nil
}

// Get loads a recorded internal transfer.
func (s *InternalTransferService) Get(ctx context.Context, id uuid.UUID) (*models.InternalTransfer, error) {
	t, err := s.store.Queries().GetInternalTransfer(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransfer, id)
		}
		return nil, err
	}
	return t, nil
}

// Reverse undoes a transfer and returns the difference credit issued, in ledger
// units. The difference is the destination-side net at settlement plus the nets
// of any refunds the network issued against that charge. A transfer that was
// already reversed is a no-op returning 0.
func (s *InternalTransferService) Reverse(ctx context.Context, transferID uuid.UUID, payoutID *uuid.UUID) (int64, error) {
	transfer, err := s.Get(ctx, transferID)
	if err != nil {
		return 0, err
	}
	if transfer.ReversalID != nil {
		return 0, nil
	}
	if !transfer.Reversible {
		zap.L().Warn("internal transfer is not reversible", zap.String("transfer_id", transferID.String()))
		return 0, nil
	}

	q := s.store.Queries()
	dest, err := q.GetMerchantAccount(ctx, transfer.DestinationAccountID)
	if err != nil {
		return 0, fmt.Errorf("load transfer destination: %w", err)
	}

	reversalID := ""
	rev, err := s.network.ReverseTransfer(ctx, transfer.NetworkTransferID, transfer.NetworkTransferID+"-reversal")
	switch {
	case err == nil:
		reversalID = rev.ID
	case isAlreadyReversed(err):
		reversalID = transfer.NetworkTransferID + "-reversal"
	default:
		return 0, networkFailure("reverse_transfer", err)
	}

	charge, err := s.network.RetrieveCharge(ctx, transfer.DestinationPaymentID, dest.NetworkAccountID,
		network.ExpandBalanceTransaction, network.ExpandRefundsBalanceTransaction)
	if err != nil {
		return 0, networkFailure("retrieve_charge", err)
	}
	difference := reversalDifference(charge)
	currency := transfer.SettledCurrency
	if currency == "" {
		currency = dest.Currency
	}
	ledgerDifference := domain.ToLedgerUnits(currency, difference)

	var credited int64
	err = s.store.RunInTx(ctx, func(qtx Repo) error {
		rows, err := qtx.MarkInternalTransferReversed(ctx, transfer.ID, reversalID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		if ledgerDifference == 0 {
			return nil
		}
		ref := "transfer-reversal:" + transfer.NetworkTransferID
		inserted, err := qtx.InsertCredit(ctx, &models.Credit{
			ID:                 uuid.New(),
			SellerID:           transfer.SellerID,
			Currency:           currency,
			Amount:             ledgerDifference,
			Reason:             domain.CreditReversedPayoutDifference,
			PayoutID:           payoutID,
			InternalTransferID: &transfer.ID,
			MerchantAccountID:  &dest.ID,
			NetworkReference:   &ref,
		})
		if err != nil {
			return err
		}
		if inserted {
			credited = ledgerDifference
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if credited != 0 {
		observability.IncrementCredit(string(domain.CreditReversedPayoutDifference))
	}
	zap.L().Info("internal transfer reversed",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("network_transfer_id", transfer.NetworkTransferID),
		zap.Int64("difference_credit", credited))
	return credited, nil
}

// reversalDifference is zero when the charge carries no refund.
func reversalDifference(charge *network.Charge) int64 {
	if charge == nil || charge.BalanceTransaction == nil || len(charge.Refunds) == 0 {
		return 0
	}
	diff := charge.BalanceTransaction.Net
	for _, r := range charge.Refunds {
		if r.BalanceTransaction != nil {
			diff += r.BalanceTransaction.Net
		}
	}
	return diff
}

func isAlreadyReversed(err error) bool {
	verr, ok := network.AsValidation(err)
	if !ok {
		return false
	}
	return verr.Code == "transfer_already_reversed" || strings.Contains(strings.ToLower(verr.Message), "already been fully reversed")
}
