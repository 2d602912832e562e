package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a sale order.
type OrderStatus string

const (
	OrderStatusDraft OrderStatus = "draft"
	OrderStatusOpen  OrderStatus = "open"
)

// Order is a sale order with its root-level lines.
type Order struct {
	ID          int64           `json:"id,omitempty"`
	Items       []*OrderLine    `json:"items"`
	Amount      decimal.Decimal `json:"amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderDate   *Date           `json:"order_date,omitempty"`
	ConfirmDate *Date           `json:"confirm_date,omitempty"`
	Confirmed   bool            `json:"confirmed"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// Tax is a rate applied to a root line's value.
type Tax struct {
	Code string          `json:"code,omitempty"`
	Rate decimal.Decimal `json:"rate"`
}

// OrderLine is a node of an order's line tree. A line with children is a
// bundle whose price is the weighted average of its children.
type OrderLine struct {
	ID          *int64          `json:"id,omitempty"`
	ClientID    string          `json:"cid,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	OldQuantity int             `json:"old_qty"`
	OldPrice    decimal.Decimal `json:"old_price"`
	Taxes       []Tax           `json:"taxes,omitempty"`
	Items       []*OrderLine    `json:"items,omitempty"`
}

// HasChildren reports whether the line is a bundle.
func (l *OrderLine) HasChildren() bool {
	return len(l.Items) > 0
}

// IsPersisted reports whether the line has a database identity.
func (l *OrderLine) IsPersisted() bool {
	return l.ID != nil
}

// SnapshotCurrent copies the current quantity and price into the old snapshot,
// recursively. Done whenever lines are handed out for a new edit round trip.
func (l *OrderLine) SnapshotCurrent() {
	l.OldQuantity = l.Quantity
	l.OldPrice = l.Price
	for _, child := range l.Items {
		child.SnapshotCurrent()
	}
}

// Walk visits l and its descendants in pre-order.
func (l *OrderLine) Walk(fn func(*OrderLine)) {
	fn(l)
	for _, child := range l.Items {
		child.Walk(fn)
	}
}

// Int64Ptr is a small helper for building persisted lines.
func Int64Ptr(v int64) *int64 {
	return &v
}
