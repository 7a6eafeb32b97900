// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRawFieldsOrder(t *testing.T) {
	want := []string{
		"id_cliente", "cliente", "genero", "id_producto", "producto",
		"precio", "cantidad", "monto", "forma_pago", "fecreg",
	}
	if len(RawFields) != len(want) {
		t.Fatalf("expected %d raw fields got %d", len(want), len(RawFields))
	}
	for i := range want {
		if RawFields[i] != want[i] {
			t.Fatalf("raw field %d: expected %s got %s", i, want[i], RawFields[i])
		}
	}
}

func TestCanonicalRecordRow(t *testing.T) {
	rec := CanonicalRecord{
		CustomerID:    1,
		CustomerName:  "Ana",
		ProductID:     10,
		ProductName:   "Delta",
		UnitPrice:     decimal.RequireFromString("5.50"),
		Quantity:      2,
		Amount:        decimal.RequireFromString("11"),
		PaymentMethod: "Efectivo",
		RegisteredAt:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	row := rec.Row()
	if len(row) != len(CanonicalColumns) {
		t.Fatalf("expected %d cells got %d", len(CanonicalColumns), len(row))
	}
	if row[4] != "5.5" {
		t.Fatalf("expected unit price 5.5 got %s", row[4])
	}
	if row[8] != "2024-01-01T10:00:00Z" {
		t.Fatalf("unexpected registered_at cell: %s", row[8])
	}

	same := rec
	same.UnitPrice = decimal.RequireFromString("5.5")
	if rec.Key() != same.Key() {
		t.Fatal("expected equal decimals to produce equal keys")
	}
}

func TestCanonicalRecordKeyKeepsCellBoundaries(t *testing.T) {
	base := CanonicalRecord{
		CustomerID:    1,
		UnitPrice:     decimal.NewFromInt(5),
		Quantity:      1,
		Amount:        decimal.NewFromInt(5),
		PaymentMethod: "Efectivo",
		RegisteredAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	a := base
	a.CustomerName = "a\x1f5"
	a.ProductID = 10
	a.ProductName = "b"

	b := base
	b.CustomerName = "a"
	b.ProductID = 5
	b.ProductName = "10\x1fb"

	if a.Key() == b.Key() {
		t.Fatalf("expected distinct keys, both were %q", a.Key())
	}
}

func TestRejectionUnwrap(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Rejection{Reason: ErrInvalidNumeric, Field: FieldAmount})

	if !errors.Is(err, ErrInvalidNumeric) {
		t.Fatal("expected rejection to unwrap to ErrInvalidNumeric")
	}
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Field != FieldAmount {
		t.Fatalf("expected rejection for field %s", FieldAmount)
	}
	if got := ReasonLabel(err); got != "invalid_numeric" {
		t.Fatalf("expected label invalid_numeric got %s", got)
	}
	if got := ReasonLabel(errors.New("other")); got != "unknown" {
		t.Fatalf("expected label unknown got %s", got)
	}
}
