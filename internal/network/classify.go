package network

import (
	"strings"

	"github.com/ayo6706/payout-settlement/internal/domain"
)

type failurePattern struct {
	all    []string
	reason domain.FailureReason
}

// Order matters: the first pattern whose substrings all match wins.
var failurePatterns = []failurePattern{
	{all: []string{"insufficient funds"}, reason: domain.FailureInsufficientFunds},
	{all: []string{"balance_insufficient"}, reason: domain.FailureInsufficientFunds},
	{all: []string{"debit card", "limit"}, reason: domain.FailureDebitCardLimit},
	{all: []string{"instant payout", "limit"}, reason: domain.FailureDebitCardLimit},
	{all: []string{"cannot currently make live payouts"}, reason: domain.FailureCannotPay},
	{all: []string{"payouts have been disabled"}, reason: domain.FailureCannotPay},
	{all: []string{"no external account"}, reason: domain.FailureCannotPay},
	{all: []string{"don't have any external accounts"}, reason: domain.FailureCannotPay},
	{all: []string{"cannot pay"}, reason: domain.FailureCannotPay},
}

// ClassifyFailure maps a network error message onto the failure taxonomy.
func ClassifyFailure(message string) domain.FailureReason {
	msg := strings.ToLower(message)
	for _, p := range failurePatterns {
		if containsAll(msg, p.all) {
			return p.reason
		}
	}
	return domain.FailureOther
}

var failureCodes = map[string]domain.FailureReason{
	"insufficient_funds":      domain.FailureInsufficientFunds,
	"account_closed":          domain.FailureCannotPay,
	"account_frozen":          domain.FailureCannotPay,
	"bank_account_restricted": domain.FailureCannotPay,
	"no_account":              domain.FailureCannotPay,
	"invalid_account_number":  domain.FailureCannotPay,
	"debit_not_authorized":    domain.FailureCannotPay,
	"invalid_currency":        domain.FailureCannotPay,
	"unsupported_card":        domain.FailureDebitCardLimit,
	"declined":                domain.FailureDebitCardLimit,
}

// FailureReasonForCode maps a failure_code reported on a payout event.
func FailureReasonForCode(code string) domain.FailureReason {
	if reason, ok := failureCodes[strings.ToLower(strings.TrimSpace(code))]; ok {
		return reason
	}
	return domain.FailureOther
}

func containsAll(s string, parts []string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}
