package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// Options configures the payout services. Zero values fall back to defaults.
type Options struct {
	InstantFeePercent decimal.Decimal
	LockTTL           time.Duration
	// ReversalConfirmationDelay is how long a reported reversal of a completed
	// payout waits before it is re-checked and applied.
	ReversalConfirmationDelay time.Duration
	// ReversalRecheckDelay is used when a re-check finds the reversal still in flight.
	ReversalRecheckDelay time.Duration
	// ReversalCheckLease hides a claimed check from other workers.
	ReversalCheckLease time.Duration
	// StaleAfter is how long a payout may sit unsubmitted before it is flagged.
	StaleAfter time.Duration
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.InstantFeePercent.IsZero() {
		o.InstantFeePercent = DefaultInstantFeePercent
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	if o.ReversalConfirmationDelay <= 0 {
		o.ReversalConfirmationDelay = 7 * 24 * time.Hour
	}
	if o.ReversalRecheckDelay <= 0 {
		o.ReversalRecheckDelay = 24 * time.Hour
	}
	if o.ReversalCheckLease <= 0 {
		o.ReversalCheckLease = 5 * time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 6 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
