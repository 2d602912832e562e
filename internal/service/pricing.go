package service

import (
	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

// OrderTotals is the pricing breakdown of an order.
type OrderTotals struct {
	Amount      decimal.Decimal `json:"amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CalculateOrderTotals computes the order totals from its root lines. Nested
// lines are already reflected in their bundle's price.
func CalculateOrderTotals(items []*models.OrderLine) OrderTotals {
	amount := decimal.Zero
	tax := decimal.Zero

	for _, line := range items {
		value := line.Price.Mul(money.FromInt(line.Quantity))
		amount = amount.Add(value)
		for _, t := range line.Taxes {
			tax = tax.Add(t.Rate.Mul(value))
		}
	}

	amount = money.RoundHalfUp(amount, money.Scale)
	tax = money.RoundHalfUp(tax, money.Scale)
	return OrderTotals{
		Amount:      amount,
		TaxAmount:   tax,
		TotalAmount: money.RoundHalfUp(amount.Add(tax), money.Scale),
	}
}

// ApplyTotals computes and stores the totals on order.
func ApplyTotals(order *models.Order) OrderTotals {
	totals := CalculateOrderTotals(order.Items)
	order.Amount = totals.Amount
	order.TaxAmount = totals.TaxAmount
	order.TotalAmount = totals.TotalAmount
	return totals
}

// TotalSales sums the amount of every order. ok is false when there are none.
func TotalSales(orders []*models.Order) (total decimal.Decimal, ok bool) {
	total = decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount)
	}
	return total, len(orders) > 0
}
