package recalc

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

// Aggregate recomputes, bottom-up, every root of forest that is or contains
// dirty. Persisted lines sent without children are completed from storage
// before deciding whether they contain dirty.
func Aggregate(ctx context.Context, forest []*models.OrderLine, dirty *models.OrderLine, fetcher ChildFetcher) error {
	return newTraversal(ctx, fetcher).aggregate(forest, dirty)
}

func (t *traversal) aggregate(forest []*models.OrderLine, dirty *models.OrderLine) error {
	for _, line := range forest {
		contains, err := t.isOrHasDirtyLine(line, dirty)
		if err != nil {
			return err
		}
		if contains {
			Recompute(line)
		}
	}
	return nil
}

func (t *traversal) isOrHasDirtyLine(line, dirty *models.OrderLine) (bool, error) {
	if models.SameLine(line, dirty) {
		return true, nil
	}

	if !line.HasChildren() {
		if !line.IsPersisted() {
			return false, nil
		}
		stored, err := t.storedChildren(line)
		if err != nil {
			return false, err
		}
		// Stored subtrees are complete, so a splice settles containment and
		// leaves the edited values in place for Recompute.
		if !Splice(stored, dirty) {
			return false, nil
		}
		line.Items = stored
		return true, nil
	}

	for _, child := range line.Items {
		contains, err := t.isOrHasDirtyLine(child, dirty)
		if err != nil || contains {
			return contains, err
		}
	}
	return false, nil
}

// Recompute sets the total and unit price of every bundle below and including
// line from its children. Leaves keep their values. A bundle with zero
// quantity carries no value.
func Recompute(line *models.OrderLine) {
	if !line.HasChildren() {
		return
	}

	total := decimal.Zero
	for _, child := range line.Items {
		Recompute(child)
		total = total.Add(child.TotalPrice)
	}

	if line.Quantity == 0 {
		line.TotalPrice = decimal.Zero
		line.Price = decimal.Zero
		return
	}
	line.TotalPrice = total
	line.Price = money.DivHalfEven(total, money.FromInt(line.Quantity), money.Scale)
}
