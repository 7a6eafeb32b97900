// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"sort"
	"time"

	"github.com/adiadia/salesflow/internal/domain"
	"github.com/shopspring/decimal"
)

// Group aggregates the records sharing one product, customer or payment method.
type Group struct {
	Name          string          `json:"name"`
	Transactions  int             `json:"transactions"`
	Quantity      int64           `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	AverageAmount decimal.Decimal `json:"average_amount"`
}

// Summary holds the figures reporting jobs compute from the dataset.
type Summary struct {
	Transactions    int             `json:"transactions"`
	TotalQuantity   int64           `json:"total_quantity"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AverageAmount   decimal.Decimal `json:"average_amount"`
	FirstSaleAt     *time.Time      `json:"first_sale_at,omitempty"`
	LastSaleAt      *time.Time      `json:"last_sale_at,omitempty"`
	ByProduct       []Group         `json:"by_product"`
	ByCustomer      []Group         `json:"by_customer"`
	ByPaymentMethod []Group         `json:"by_payment_method"`
}

func Summarize(records []domain.CanonicalRecord) Summary {
	s := Summary{
		TotalAmount:     decimal.Zero,
		AverageAmount:   decimal.Zero,
		ByProduct:       []Group{},
		ByCustomer:      []Group{},
		ByPaymentMethod: []Group{},
	}
	if len(records) == 0 {
		return s
	}

	products := newGrouper()
	customers := newGrouper()
	payments := newGrouper()

	first, last := records[0].RegisteredAt, records[0].RegisteredAt
	for _, rec := range records {
		s.Transactions++
		s.TotalQuantity += rec.Quantity
		s.TotalAmount = s.TotalAmount.Add(rec.Amount)

		if rec.RegisteredAt.Before(first) {
			first = rec.RegisteredAt
		}
		if rec.RegisteredAt.After(last) {
			last = rec.RegisteredAt
		}

		products.add(rec.ProductName, rec)
		customers.add(rec.CustomerName, rec)
		payments.add(rec.PaymentMethod, rec)
	}

	s.AverageAmount = average(s.TotalAmount, s.Transactions)
	s.FirstSaleAt = &first
	s.LastSaleAt = &last
	s.ByProduct = products.groups()
	s.ByCustomer = customers.groups()
	s.ByPaymentMethod = payments.groups()
	return s
}

type grouper struct {
	index map[string]int
	out   []Group
}

func newGrouper() *grouper {
	return &grouper{index: make(map[string]int)}
}

func (g *grouper) add(name string, rec domain.CanonicalRecord) {
	i, ok := g.index[name]
	if !ok {
		i = len(g.out)
		g.index[name] = i
		g.out = append(g.out, Group{Name: name, Amount: decimal.Zero})
	}
	grp := &g.out[i]
	grp.Transactions++
	grp.Quantity += rec.Quantity
	grp.Amount = grp.Amount.Add(rec.Amount)
}

// groups returns the groups by amount descending, ties broken by name.
func (g *grouper) groups() []Group {
	for i := range g.out {
		g.out[i].AverageAmount = average(g.out[i].Amount, g.out[i].Transactions)
	}
	sort.SliceStable(g.out, func(i, j int) bool {
		if c := g.out[i].Amount.Cmp(g.out[j].Amount); c != 0 {
			return c > 0
		}
		return g.out[i].Name < g.out[j].Name
	})
	return g.out
}

func average(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), 2)
}
