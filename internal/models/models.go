package models

import (
	"time"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/google/uuid"
)

// Payout is one attempt to pay a seller.
type Payout struct {
	ID                       uuid.UUID             `json:"id"`
	ExternalID               string                `json:"external_id"`
	SellerID                 uuid.UUID             `json:"seller_id"`
	Currency                 string                `json:"currency"`
	Amount                   int64                 `json:"amount"`        // network minor units
	LedgerAmount             int64                 `json:"ledger_amount"` // ledger minor units settled
	RetainedAmount           int64                 `json:"retained_amount"`
	PayoutType               domain.PayoutType     `json:"payout_type"`
	State                    domain.PayoutState    `json:"state"`
	DestinationAccountID     uuid.UUID             `json:"destination_account_id"`
	NetworkTransferID        *string               `json:"network_transfer_id,omitempty"`
	NetworkReversingPayoutID *string               `json:"network_reversing_payout_id,omitempty"`
	InternalTransferID       *uuid.UUID            `json:"internal_transfer_id,omitempty"`
	FailureReason            *domain.FailureReason `json:"failure_reason,omitempty"`
	ArrivalDate              *time.Time            `json:"arrival_date,omitempty"`
	NetworkFee               *int64                `json:"network_fee,omitempty"`
	ReversalApplied          bool                  `json:"reversal_applied"`
	SubmissionAttempts       int32                 `json:"submission_attempts"`
	CreatedAt                time.Time             `json:"created_at"`
	UpdatedAt                time.Time             `json:"updated_at"`
}

// Balance is money owed to a seller for a date, holder and currency.
type Balance struct {
	ID                  uuid.UUID            `json:"id"`
	SellerID            uuid.UUID            `json:"seller_id"`
	Date                time.Time            `json:"date"`
	Currency            string               `json:"currency"`
	HoldingAmount       int64                `json:"holding_amount"`
	HolderOfFunds       domain.HolderOfFunds `json:"holder_of_funds"`
	MerchantAccountID   *uuid.UUID           `json:"merchant_account_id,omitempty"`
	State               domain.BalanceState  `json:"state"`
	PayoutID            *uuid.UUID           `json:"payout_id,omitempty"`
	CarriedFromPayoutID *uuid.UUID           `json:"carried_from_payout_id,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
}

// MerchantAccount is an account at the payment network that can receive funds.
type MerchantAccount struct {
	ID               uuid.UUID                  `json:"id"`
	SellerID         *uuid.UUID                 `json:"seller_id,omitempty"`
	NetworkAccountID string                     `json:"network_account_id"`
	HolderOfFunds    domain.HolderOfFunds       `json:"holder_of_funds"`
	Currency         string                     `json:"currency"`
	Kind             domain.MerchantAccountKind `json:"kind"`
	Active           bool                       `json:"active"`
	CreatedAt        time.Time                  `json:"created_at"`
}

// InternalTransfer moves platform float into a seller's network account before payout.
type InternalTransfer struct {
	ID                   uuid.UUID `json:"id"`
	SellerID             uuid.UUID `json:"seller_id"`
	DestinationAccountID uuid.UUID `json:"destination_account_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	NetworkTransferID    string    `json:"network_transfer_id"`
	DestinationPaymentID string    `json:"destination_payment_id"`
	SettledAmount        int64     `json:"settled_amount"`
	SettledCurrency      string    `json:"settled_currency"`
	Reversible           bool      `json:"reversible"`
	ReversalID           *string   `json:"reversal_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Credit is a ledger adjustment to a seller's future balance.
type Credit struct {
	ID                 uuid.UUID           `json:"id"`
	SellerID           uuid.UUID           `json:"seller_id"`
	Currency           string              `json:"currency"`
	Amount             int64               `json:"amount"`
	Reason             domain.CreditReason `json:"reason"`
	PayoutID           *uuid.UUID          `json:"payout_id,omitempty"`
	InternalTransferID *uuid.UUID          `json:"internal_transfer_id,omitempty"`
	MerchantAccountID  *uuid.UUID          `json:"merchant_account_id,omitempty"`
	NetworkReference   *string             `json:"network_reference,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
}

// ReversalCheck is a durable delayed re-check of a reported payout reversal.
type ReversalCheck struct {
	ID                uuid.UUID                  `json:"id"`
	PayoutID          uuid.UUID                  `json:"payout_id"`
	ReversingPayoutID string                     `json:"reversing_payout_id"`
	RunAt             time.Time                  `json:"run_at"`
	Status            domain.ReversalCheckStatus `json:"status"`
	Attempts          int32                      `json:"attempts"`
	CreatedAt         time.Time                  `json:"created_at"`
}

// PayoutReview is an inconsistency waiting for a human operator.
type PayoutReview struct {
	ID         uuid.UUID  `json:"id"`
	PayoutID   uuid.UUID  `json:"payout_id"`
	Reason     string     `json:"reason"`
	Details    string     `json:"details"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
