// README: Common money value object used across modules.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func NewMoney(amount string, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustMoney is for literals in tests and defaults.
func MustMoney(amount string) Money {
	m, err := NewMoney(amount, DefaultCurrency)
	if err != nil {
		panic(err)
	}
	return m
}

// Cents reports whether the amount fits in two decimal places, the precision money is stored at.
func (m Money) Cents() bool {
	return m.Amount.Equal(m.Amount.Truncate(2))
}

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// Float returns the amount as float64 for scoring; money math stays in decimal.
func (m Money) Float() float64 {
	return m.Amount.InexactFloat64()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
