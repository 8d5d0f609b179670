package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCurrency is the currency purchase amounts and discounts are
// denominated in unless the engine is configured otherwise.
const DefaultCurrency = "usd"

// Money is a monetary value in the smallest currency unit.
// All arithmetic is integer-only.
//
// Examples:
//   - USD(4900) = $49.00
//   - USD(30)   = $0.30
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents, pence, etc)
	Currency string `json:"currency"` // ISO 4217 lowercase
}

// USD creates a Money value in US dollar cents.
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money { return Money{Currency: strings.ToLower(currency)} }

// FromMinor converts a token-ledger amount into Money. Amounts are bounded
// by MaxAmount, so the conversion never changes sign.
func FromMinor(amount uint64, currency string) Money {
	if amount > MaxAmount {
		amount = MaxAmount
	}
	return Money{Amount: int64(amount), Currency: strings.ToLower(currency)} //nolint:gosec // bounded above
}

// MinorPerMajor returns how many minor units make one major unit of
// currency: 100 for "usd", 1 for zero-decimal currencies such as "jpy".
func MinorPerMajor(currency string) uint64 {
	n := uint64(1)
	for range currencyDecimals(currency) {
		n *= 10
	}
	return n
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// FormatMajor returns the amount in major units without a symbol:
// "49.00" for USD(4900), "100" for a zero-decimal currency.
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := int64(1)
	for range decimals {
		divisor *= 10
	}

	abs := m.Amount
	sign := ""
	if abs < 0 {
		abs = -abs
		sign = "-"
	}

	return fmt.Sprintf("%s%d.%0*d", sign, abs/divisor, decimals, abs%divisor)
}

// String returns a human-readable value with currency symbol, e.g. "$0.30".
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.Currency = strings.ToLower(raw.Currency)
	return nil
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp", "pyg", "idr":
		return 0
	default:
		return 2
	}
}
