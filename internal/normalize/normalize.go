// SPDX-License-Identifier: Apache-2.0

// Package normalize turns raw sales events into canonical records.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/adiadia/salesflow/internal/domain"
	"github.com/shopspring/decimal"
)

// Decimals outside these bounds are rejected before anything renders their
// digits; a coefficient of maxCoefficientBits covers roughly 77 digits.
const (
	maxDecimalExponent = 64
	maxCoefficientBits = 256
)

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// Fractional seconds are accepted after any seconds field when parsing.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
}

// Normalize validates raw and returns its canonical form. A non-nil error is
// always a *domain.Rejection.
func Normalize(raw domain.RawEvent) (domain.CanonicalRecord, error) {
	var rec domain.CanonicalRecord

	// Numeric coercion runs first so a garbled number wins over a missing field.
	price, priceOK, err := decimalField(raw, domain.FieldUnitPrice)
	if err != nil {
		return rec, err
	}
	qty, qtyOK, err := integerField(raw, domain.FieldQuantity)
	if err != nil {
		return rec, err
	}
	amount, amountOK, err := decimalField(raw, domain.FieldAmount)
	if err != nil {
		return rec, err
	}
	customerID, customerOK, err := integerField(raw, domain.FieldCustomerID)
	if err != nil {
		return rec, err
	}
	productID, productOK, err := integerField(raw, domain.FieldProductID)
	if err != nil {
		return rec, err
	}

	registeredRaw, registeredOK := textField(raw, domain.FieldRegisteredAt)

	for _, required := range []struct {
		field   string
		present bool
	}{
		{domain.FieldCustomerID, customerOK},
		{domain.FieldProductID, productOK},
		{domain.FieldUnitPrice, priceOK},
		{domain.FieldQuantity, qtyOK},
		{domain.FieldAmount, amountOK},
		{domain.FieldRegisteredAt, registeredOK},
	} {
		if !required.present {
			return rec, reject(domain.ErrMissingRequiredField, required.field)
		}
	}

	customerName, _ := textField(raw, domain.FieldCustomerName)
	productName, _ := textField(raw, domain.FieldProductName)
	payment, _ := textField(raw, domain.FieldPaymentMethod)

	registeredAt, err := ParseTimestamp(registeredRaw)
	if err != nil {
		return rec, reject(domain.ErrInvalidTimestamp, domain.FieldRegisteredAt)
	}

	rec = domain.CanonicalRecord{
		CustomerID:    customerID,
		CustomerName:  TitleCase(customerName),
		ProductID:     productID,
		ProductName:   TitleCase(productName),
		UnitPrice:     price,
		Quantity:      qty,
		Amount:        amount,
		PaymentMethod: Capitalize(payment),
		RegisteredAt:  registeredAt,
	}
	return rec, nil
}

// ParseTimestamp accepts the layouts the upstream source has been seen to
// emit. Values without a zone are read as UTC; the result is always UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", raw)
}

// TitleCase trims s, then upper-cases the first letter of every run of
// letters and lower-cases the rest ("  o'neil  " -> "O'Neil").
func TitleCase(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// Capitalize trims s, upper-cases its first character and lower-cases the rest.
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func reject(reason error, field string) error {
	return &domain.Rejection{Reason: reason, Field: field}
}

// textField reports the trimmed string form of a scalar value and whether it
// is non-empty.
func textField(raw domain.RawEvent, field string) (string, bool) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// decimalField coerces field to a decimal. present is false when the value is
// absent or blank; err is set only for a present value that is not a number.
func decimalField(raw domain.RawEvent, field string) (d decimal.Decimal, present bool, err error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return decimal.Decimal{}, false, nil
	}

	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Decimal{}, true, reject(domain.ErrInvalidNumeric, field)
		}
		return bounded(decimal.NewFromFloat(t), field)
	case float32:
		return decimalField(domain.RawEvent{field: float64(t)}, field)
	case int:
		return decimal.NewFromInt(int64(t)), true, nil
	case int64:
		return decimal.NewFromInt(t), true, nil
	case int32:
		return decimal.NewFromInt(int64(t)), true, nil
	case decimal.Decimal:
		return bounded(t, field)
	case json.Number:
		return parseDecimal(t.String(), field)
	case string:
		return parseDecimal(t, field)
	default:
		return decimal.Decimal{}, true, reject(domain.ErrInvalidNumeric, field)
	}
}

// bounded rejects d when its exponent or coefficient is out of range.
// "1e2000000000" parses in constant time but String() would write every zero.
func bounded(d decimal.Decimal, field string) (decimal.Decimal, bool, error) {
	exp := d.Exponent()
	if exp > maxDecimalExponent || exp < -maxDecimalExponent {
		return decimal.Decimal{}, true, reject(domain.ErrInvalidNumeric, field)
	}
	if d.Coefficient().BitLen() > maxCoefficientBits {
		return decimal.Decimal{}, true, reject(domain.ErrInvalidNumeric, field)
	}
	return d, true, nil
}

func parseDecimal(s, field string) (decimal.Decimal, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, true, reject(domain.ErrInvalidNumeric, field)
	}
	return bounded(d, field)
}

// integerField is decimalField restricted to integral values that fit int64.
func integerField(raw domain.RawEvent, field string) (int64, bool, error) {
	d, present, err := decimalField(raw, field)
	if err != nil || !present {
		return 0, present, err
	}
	if !d.IsInteger() || d.Cmp(minInt64) < 0 || d.Cmp(maxInt64) > 0 {
		return 0, true, reject(domain.ErrInvalidNumeric, field)
	}
	return d.IntPart(), true, nil
}
