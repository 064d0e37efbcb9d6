package service

import (
	"errors"
	"fmt"

	"github.com/ayo6706/payout-settlement/internal/network"
	"github.com/ayo6706/payout-settlement/internal/observability"
)

var (
	// ErrNetworkUnavailable wraps connectivity and authentication failures. The
	// payout stays pending and is resumed by the next settlement run.
	ErrNetworkUnavailable = errors.New("payment network unavailable")

	ErrNoDestination    = errors.New("no payout destination for seller")
	ErrCurrencyMismatch = errors.New("balance currency does not match destination")
	ErrNothingToPay     = errors.New("seller has no unpaid balance")
	ErrAmountTooSmall   = errors.New("payout amount rounds to zero")

	ErrPayoutNotFound        = errors.New("payout not found")
	ErrPaymentMismatch       = errors.New("event payment id does not match payout")
	ErrMalformedEvent        = errors.New("malformed network event")
	ErrReversalInconsistency = errors.New("payout reversal inconsistent with ledger")
	ErrInvalidSignature      = errors.New("invalid signature")

	ErrReviewNotFound = errors.New("payout review not found or already resolved")
)

// networkFailure tags a network error for callers and metrics. Validation errors
// keep their type so callers can classify them.
func networkFailure(operation string, err error) error {
	if network.IsInfrastructure(err) {
		observability.IncrementNetworkError(operation, "infrastructure")
		return fmt.Errorf("%s: %w: %w", operation, ErrNetworkUnavailable, err)
	}
	if _, ok := network.AsValidation(err); ok {
		observability.IncrementNetworkError(operation, "validation")
	} else {
		observability.IncrementNetworkError(operation, "unknown")
	}
	return fmt.Errorf("%s: %w", operation, err)
}
