// Package network abstracts the external payment network that holds seller
// sub-accounts and executes payouts.
package network

import (
	"context"
	"time"
)

// Network is implemented once per payment network. Adapters translate native
// errors into ValidationError, ErrConnection or ErrAuthentication.
type Network interface {
	Name() string
	// SubmitPayout asks the network to pay out of a destination account.
	SubmitPayout(ctx context.Context, req PayoutRequest) (*Payout, error)
	// RetrievePayout fetches the current snapshot of a payout held by account.
	RetrievePayout(ctx context.Context, payoutID, account string) (*Payout, error)
	// CreateTransfer moves platform funds into a destination account.
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	// ReverseTransfer undoes a previous transfer in full.
	ReverseTransfer(ctx context.Context, transferID, idempotencyKey string) (*Reversal, error)
	// RetrieveCharge fetches the destination-side charge created by a transfer.
	RetrieveCharge(ctx context.Context, chargeID, account string, expand ...string) (*Charge, error)
}

// Expansions understood by RetrieveCharge.
const (
	ExpandBalanceTransaction        = "balance_transaction"
	ExpandRefundsBalanceTransaction = "refunds.data.balance_transaction"
)

// PayoutRequest is what the executor submits for one payout.
type PayoutRequest struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	Description        string
	Instant            bool
	Metadata           map[string]string
	IdempotencyKey     string
}

// Payout is the network's view of a payout.
type Payout struct {
	ID               string
	Amount           int64
	Currency         string
	Status           string
	Automatic        bool
	ArrivalDate      *time.Time
	FailureCode      string
	FailureMessage   string
	OriginalPayoutID string
	ReversedByID     string
	Metadata         map[string]string
}

// TransferRequest moves platform float into a seller's account.
type TransferRequest struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	Description        string
	Metadata           map[string]string
	IdempotencyKey     string
}

// Transfer is the platform-side record of a transfer.
type Transfer struct {
	ID                   string
	Amount               int64
	Currency             string
	DestinationPaymentID string
	Reversed             bool
}

// Reversal is the result of reversing a transfer.
type Reversal struct {
	ID         string
	TransferID string
	Amount     int64
}

// Charge is the destination-side payment produced by a transfer.
type Charge struct {
	ID                 string
	Amount             int64
	Currency           string
	BalanceTransaction *BalanceTransaction
	Refunds            []Refund
}

// BalanceTransaction records what actually settled in an account.
type BalanceTransaction struct {
	ID       string
	Amount   int64
	Fee      int64
	Net      int64
	Currency string
}

// Refund is a refund issued against a destination charge.
type Refund struct {
	ID                 string
	Amount             int64
	BalanceTransaction *BalanceTransaction
}
