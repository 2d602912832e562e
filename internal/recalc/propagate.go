package recalc

import (
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

// Propagate scales every descendant of line by c. Lines are visited in
// pre-order and each gets total = quantity * price; totals of bundles below
// the first level are only final once Aggregate has run.
func Propagate(line *models.OrderLine, c Coefficients) {
	if !line.HasChildren() || c.IsIdentity() {
		return
	}
	for _, child := range line.Items {
		scale(child, c)
	}
}

func scale(line *models.OrderLine, c Coefficients) {
	qty := money.RoundHalfEven(c.Quantity.Mul(money.OneIfZero(money.FromInt(line.Quantity))), 0)
	line.Quantity = int(qty.IntPart())
	line.Price = money.RoundHalfEven(c.Price.Mul(money.OneIfZero(line.Price)), money.Scale)
	line.TotalPrice = money.FromInt(line.Quantity).Mul(line.Price)

	for _, child := range line.Items {
		scale(child, c)
	}
}
