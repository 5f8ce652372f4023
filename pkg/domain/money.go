package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in cents. The ledger stores DECIMAL(18,2)
// quantities, so two fractional digits are exact.
type Amount int64

// maxAmountDigits is the integer-part precision of DECIMAL(18,2).
const maxAmountDigits = 16

// ParseAmount parses a decimal string such as "1234.5" or "-0.25".
// More than two fractional digits or more than sixteen integer digits are rejected.
func ParseAmount(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, ErrInvalid{Field: "amount", Reason: "empty"}
	}
	negative := false
	switch raw[0] {
	case '-':
		negative = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, ErrInvalid{Field: "amount", Reason: fmt.Sprintf("%q is not a decimal", s)}
	}
	if len(frac) > 2 {
		return 0, ErrInvalid{Field: "amount", Reason: "more than two decimal places"}
	}
	if len(whole) > maxAmountDigits {
		return 0, ErrInvalid{Field: "amount", Reason: "too many digits"}
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, ErrInvalid{Field: "amount", Reason: fmt.Sprintf("%q is not a decimal", s)}
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	cents, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, ErrInvalid{Field: "amount", Reason: err.Error()}
	}
	if negative {
		cents = -cents
	}
	return Amount(cents), nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Cents returns the raw integer value.
func (a Amount) Cents() int64 { return int64(a) }

// String renders the amount with exactly two decimals.
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a decimal string to avoid float rounding.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		s = string(b)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
