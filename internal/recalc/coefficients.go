package recalc

import (
	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

var one = decimal.NewFromInt(1)

// Coefficients are the ratios between a dirty line's new and old values.
type Coefficients struct {
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// IsIdentity reports whether applying c would change nothing.
func (c Coefficients) IsIdentity() bool {
	return c.Quantity.Equal(one) && c.Price.Equal(one)
}

// CoefficientsFor derives the quantity and price ratios of line, rounded
// half-even to money.Scale. A zero old value has no meaningful ratio and
// yields 1.
func CoefficientsFor(line *models.OrderLine) Coefficients {
	return Coefficients{
		Quantity: ratio(money.FromInt(line.Quantity), money.FromInt(line.OldQuantity)),
		Price:    ratio(line.Price, line.OldPrice),
	}
}

func ratio(current, old decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return one
	}
	return money.DivHalfEven(current, old, money.Scale)
}
