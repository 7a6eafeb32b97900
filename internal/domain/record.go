// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical column names, in file order.
const (
	ColumnCustomerID    = "customer_id"
	ColumnCustomerName  = "customer_name"
	ColumnProductID     = "product_id"
	ColumnProductName   = "product_name"
	ColumnUnitPrice     = "unit_price"
	ColumnQuantity      = "quantity"
	ColumnAmount        = "amount"
	ColumnPaymentMethod = "payment_method"
	ColumnRegisteredAt  = "registered_at"
)

var CanonicalColumns = []string{
	ColumnCustomerID,
	ColumnCustomerName,
	ColumnProductID,
	ColumnProductName,
	ColumnUnitPrice,
	ColumnQuantity,
	ColumnAmount,
	ColumnPaymentMethod,
	ColumnRegisteredAt,
}

// TimestampLayout is how registered_at is written to the canonical dataset.
const TimestampLayout = time.RFC3339Nano

// CanonicalRecord is a validated sale. Amount is taken as supplied and is not
// reconciled against UnitPrice * Quantity.
type CanonicalRecord struct {
	CustomerID    int64           `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int64           `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	RegisteredAt  time.Time       `json:"registered_at"`
}

// Row renders r in CanonicalColumns order.
func (r CanonicalRecord) Row() []string {
	return []string{
		strconv.FormatInt(r.CustomerID, 10),
		r.CustomerName,
		strconv.FormatInt(r.ProductID, 10),
		r.ProductName,
		r.UnitPrice.String(),
		strconv.FormatInt(r.Quantity, 10),
		r.Amount.String(),
		r.PaymentMethod,
		r.RegisteredAt.UTC().Format(TimestampLayout),
	}
}

// Key identifies r by value; two records with equal keys are exact duplicates.
// Each cell is length-prefixed so no cell content can shift a boundary.
func (r CanonicalRecord) Key() string {
	var b strings.Builder
	for _, cell := range r.Row() {
		b.WriteString(strconv.Itoa(len(cell)))
		b.WriteByte(':')
		b.WriteString(cell)
	}
	return b.String()
}
