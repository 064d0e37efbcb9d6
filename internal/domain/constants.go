package domain

// PayoutState is the lifecycle state of a payout attempt.
type PayoutState string

const (
	PayoutStatePending    PayoutState = "pending"
	PayoutStateProcessing PayoutState = "processing"
	PayoutStateCompleted  PayoutState = "completed"
	PayoutStateFailed     PayoutState = "failed"
	PayoutStateCancelled  PayoutState = "cancelled"
	PayoutStateReturned   PayoutState = "returned"
)

// PayoutType selects the network payout speed.
type PayoutType string

const (
	PayoutTypeStandard PayoutType = "standard"
	PayoutTypeInstant  PayoutType = "instant"
)

// HolderOfFunds records who holds money before it is paid out.
type HolderOfFunds string

const (
	HolderPlatform HolderOfFunds = "platform"
	HolderNetwork  HolderOfFunds = "network"
)

// MerchantAccountKind distinguishes platform-managed sub-accounts from accounts the seller owns.
type MerchantAccountKind string

const (
	AccountKindPlatformSubaccount MerchantAccountKind = "platform_subaccount"
	AccountKindStandard           MerchantAccountKind = "standard_account"
)

// BalanceState tracks a balance through payout assignment.
type BalanceState string

const (
	BalanceStateUnpaid     BalanceState = "unpaid"
	BalanceStateProcessing BalanceState = "processing"
	BalanceStatePaid       BalanceState = "paid"
)

// FailureReason is the small fixed taxonomy recorded on failed payouts.
type FailureReason string

const (
	FailureCannotPay         FailureReason = "cannot_pay"
	FailureDebitCardLimit    FailureReason = "debit_card_limit"
	FailureInsufficientFunds FailureReason = "insufficient_funds"
	FailureOther             FailureReason = "other"
)

// CreditReason explains why a ledger credit was issued.
type CreditReason string

const (
	CreditReversedPayoutDifference CreditReason = "reversed_payout_difference"
	CreditAutomaticDebitOffset     CreditReason = "automatic_debit_offset"
)

// ReversalCheckStatus is the state of a durable delayed reversal check.
type ReversalCheckStatus string

const (
	ReversalCheckScheduled ReversalCheckStatus = "scheduled"
	ReversalCheckDone      ReversalCheckStatus = "done"
	ReversalCheckCancelled ReversalCheckStatus = "cancelled"
)

// Network payout statuses as reported by the payment network.
const (
	NetworkPayoutPaid      = "paid"
	NetworkPayoutPending   = "pending"
	NetworkPayoutInTransit = "in_transit"
	NetworkPayoutCanceled  = "canceled"
	NetworkPayoutFailed    = "failed"
)

// Webhook event types consumed by the reconciler.
const (
	EventPayoutPaid     = "payout.paid"
	EventPayoutCanceled = "payout.canceled"
	EventPayoutFailed   = "payout.failed"

	EventObjectPayout = "payout"
)

// Metadata key carrying the payout external id on network payouts.
const MetadataPaymentKey = "payment"
