package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PendingSentinel is the persisted and wire representation of an amount that is not yet known.
const PendingSentinel = "TBD"

// Amount is either a resolved monetary value or the pending ("TBD") marker.
// The zero value is a resolved zero.
type Amount struct {
	value   decimal.Decimal
	pending bool
}

// Resolved wraps a known monetary value.
func Resolved(value decimal.Decimal) Amount {
	return Amount{value: value}
}

// Pending returns the "TBD" amount.
func Pending() Amount {
	return Amount{pending: true}
}

// IsPending reports whether the amount is still unknown.
func (a Amount) IsPending() bool {
	return a.pending
}

// Value returns the resolved value. ok is false for pending amounts.
func (a Amount) Value() (value decimal.Decimal, ok bool) {
	if a.pending {
		return decimal.Zero, false
	}
	return a.value, true
}

// Equal compares two amounts including their pending state.
func (a Amount) Equal(other Amount) bool {
	if a.pending || other.pending {
		return a.pending == other.pending
	}
	return a.value.Equal(other.value)
}

// String renders the amount with two decimals or the sentinel.
func (a Amount) String() string {
	if a.pending {
		return PendingSentinel
	}
	return a.value.StringFixed(2)
}

// MarshalJSON encodes resolved amounts as JSON numbers and pending ones as "TBD".
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.pending {
		return json.Marshal(PendingSentinel)
	}
	return []byte(a.value.String()), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string or "TBD". null is rejected.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("amount: null is not a valid amount")
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseAmount(raw)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	value, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Resolved(value)
	return nil
}

// ParseAmount parses a decimal string or the pending sentinel.
func ParseAmount(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, PendingSentinel) {
		return Pending(), nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: %w", err)
	}
	return Resolved(value), nil
}

// StoredValue returns the document representation: float64 for resolved amounts, "TBD" otherwise.
func (a Amount) StoredValue() any {
	if a.pending {
		return PendingSentinel
	}
	return a.value.InexactFloat64()
}

// AmountFromStored decodes a stored value produced by StoredValue.
func AmountFromStored(raw any) (Amount, error) {
	switch v := raw.(type) {
	case string:
		return ParseAmount(v)
	case float64:
		return Resolved(decimal.NewFromFloat(v)), nil
	case int64:
		return Resolved(decimal.NewFromInt(v)), nil
	case int:
		return Resolved(decimal.NewFromInt(int64(v))), nil
	case nil:
		return Amount{}, fmt.Errorf("amount: missing value")
	default:
		return Amount{}, fmt.Errorf("amount: unsupported stored type %T", raw)
	}
}

// Money parses a decimal literal and panics on malformed input. Intended for constants and tests.
func Money(literal string) decimal.Decimal {
	return decimal.RequireFromString(literal)
}
