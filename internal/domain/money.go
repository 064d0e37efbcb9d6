package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in the ledger's minor units of a currency.
type Money struct {
	Amount   int64  // ledger minor units
	Currency string // ISO 4217
}

// NewMoney creates a new Money instance from ledger minor units.
func NewMoney(amount int64, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: strings.ToUpper(currency),
	}
}

// ToDecimal converts the minor units to a decimal in major units.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.New(m.Amount, -RuleFor(m.Currency).LedgerExponent)
}

// String formats the amount in major units, e.g. "123.45 HUF".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToDecimal().StringFixed(int32(RuleFor(m.Currency).LedgerExponent)), m.Currency)
}
