package handlers

import (
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/service"
)

// TaxView is a line tax with its rate at four decimal places.
type TaxView struct {
	Code string `json:"code,omitempty"`
	Rate string `json:"rate"`
}

// LineView is an order line with money values at four decimal places. The
// old snapshot echoes the current values for the next edit round trip.
type LineView struct {
	ID          *int64     `json:"id,omitempty"`
	ClientID    string     `json:"cid,omitempty"`
	Quantity    int        `json:"quantity"`
	Price       string     `json:"price"`
	TotalPrice  string     `json:"total_price"`
	OldQuantity int        `json:"old_qty"`
	OldPrice    string     `json:"old_price"`
	Taxes       []TaxView  `json:"taxes,omitempty"`
	Items       []LineView `json:"items,omitempty"`
}

// TotalsView holds an order's totals at four decimal places.
type TotalsView struct {
	Amount      string `json:"amount"`
	TaxAmount   string `json:"tax_amount"`
	TotalAmount string `json:"total_amount"`
}

// OrderView is a stored order with its line tree and totals.
type OrderView struct {
	ID          int64              `json:"id"`
	Items       []LineView         `json:"items"`
	OrderDate   *models.Date       `json:"order_date,omitempty"`
	ConfirmDate *models.Date       `json:"confirm_date,omitempty"`
	Confirmed   bool               `json:"confirmed"`
	Status      models.OrderStatus `json:"status"`
	TotalsView
}

func newLineView(l *models.OrderLine) LineView {
	v := LineView{
		ID:          l.ID,
		ClientID:    l.ClientID,
		Quantity:    l.Quantity,
		Price:       money.Fixed(l.Price),
		TotalPrice:  money.Fixed(l.TotalPrice),
		OldQuantity: l.OldQuantity,
		OldPrice:    money.Fixed(l.OldPrice),
	}
	for _, t := range l.Taxes {
		v.Taxes = append(v.Taxes, TaxView{Code: t.Code, Rate: money.Fixed(t.Rate)})
	}
	if len(l.Items) > 0 {
		v.Items = newLineViews(l.Items)
	}
	return v
}

func newLineViews(lines []*models.OrderLine) []LineView {
	out := make([]LineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, newLineView(l))
	}
	return out
}

func newTotalsView(t service.OrderTotals) TotalsView {
	return TotalsView{
		Amount:      money.Fixed(t.Amount),
		TaxAmount:   money.Fixed(t.TaxAmount),
		TotalAmount: money.Fixed(t.TotalAmount),
	}
}

func newOrderView(o *models.Order) OrderView {
	return OrderView{
		ID:          o.ID,
		Items:       newLineViews(o.Items),
		OrderDate:   o.OrderDate,
		ConfirmDate: o.ConfirmDate,
		Confirmed:   o.Confirmed,
		Status:      o.Status,
		TotalsView: newTotalsView(service.OrderTotals{
			Amount:      o.Amount,
			TaxAmount:   o.TaxAmount,
			TotalAmount: o.TotalAmount,
		}),
	}
}
