package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyRule describes how a currency's ledger amounts map onto what the network accepts.
type CurrencyRule struct {
	Code string
	// LedgerExponent is the number of decimal places the ledger stores.
	LedgerExponent int32
	// LedgerUnitsPerNetworkUnit is 1 unless the ledger is finer grained than the network.
	LedgerUnitsPerNetworkUnit int64
	// PayoutMultiple is the granularity, in network units, payouts must be made in.
	PayoutMultiple int64
}

var currencyRules = map[string]CurrencyRule{
	// Forint payouts are only accepted in whole hundreds of fillér.
	"HUF": {Code: "HUF", LedgerExponent: 2, LedgerUnitsPerNetworkUnit: 1, PayoutMultiple: 100},
	// The ledger keeps won in hundredths; the network is zero-decimal.
	"KRW": {Code: "KRW", LedgerExponent: 2, LedgerUnitsPerNetworkUnit: 100, PayoutMultiple: 1},
	"JPY": {Code: "JPY", LedgerExponent: 0, LedgerUnitsPerNetworkUnit: 1, PayoutMultiple: 1},
}

// RuleFor returns the payout rule for currency, defaulting to a two-decimal currency.
func RuleFor(currency string) CurrencyRule {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if rule, ok := currencyRules[code]; ok {
		return rule
	}
	return CurrencyRule{Code: code, LedgerExponent: 2, LedgerUnitsPerNetworkUnit: 1, PayoutMultiple: 1}
}

// ToNetworkUnits converts a ledger amount into network units. Any ledger units that do not
// fill a whole network unit are returned as remainder.
func ToNetworkUnits(currency string, ledgerAmount int64) (networkAmount, ledgerRemainder int64) {
	per := RuleFor(currency).LedgerUnitsPerNetworkUnit
	if per <= 1 {
		return ledgerAmount, 0
	}
	return ledgerAmount / per, ledgerAmount % per
}

// ToLedgerUnits converts a network amount into ledger units.
func ToLedgerUnits(currency string, networkAmount int64) int64 {
	per := RuleFor(currency).LedgerUnitsPerNetworkUnit
	if per <= 1 {
		return networkAmount
	}
	return networkAmount * per
}

// RoundForPayout floors a network amount to the currency's payout multiple.
func RoundForPayout(currency string, networkAmount int64) (rounded, remainder int64) {
	multiple := RuleFor(currency).PayoutMultiple
	if multiple <= 1 || networkAmount <= 0 {
		return networkAmount, 0
	}
	remainder = networkAmount % multiple
	return networkAmount - remainder, remainder
}

// InstantPayoutAmount nets the instant payout fee out of amount so that
// afterFee * (1 + feePercent/100) does not exceed amount. The result is floored.
func InstantPayoutAmount(amount int64, feePercent decimal.Decimal) (afterFee, fee int64) {
	if amount <= 0 || !feePercent.IsPositive() {
		return amount, 0
	}
	hundred := decimal.NewFromInt(100)
	afterFee = decimal.NewFromInt(amount).
		Mul(hundred).
		Div(hundred.Add(feePercent)).
		Floor().
		IntPart()
	return afterFee, amount - afterFee
}
