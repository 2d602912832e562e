package recalc

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
)

// FindDirtyLine returns the first record marked as changed, in pre-order, as a
// new order line carrying its old snapshot and its complete subtree. It returns
// nil when no record is marked.
func FindDirtyLine(ctx context.Context, records []models.LineRecord, fetcher ChildFetcher) (*models.OrderLine, error) {
	return newTraversal(ctx, fetcher).findDirtyLine(records)
}

func (t *traversal) findDirtyLine(records []models.LineRecord) (*models.OrderLine, error) {
	for i := range records {
		rec := &records[i]
		if rec.Changed {
			return t.dirtyLine(rec)
		}
		dirty, err := t.findDirtyLine(rec.Items)
		if err != nil || dirty != nil {
			return dirty, err
		}
	}
	return nil, nil
}

func (t *traversal) dirtyLine(rec *models.LineRecord) (*models.OrderLine, error) {
	line := rec.ToOrderLine()
	if rec.Original != nil {
		line.OldQuantity = rec.Original.Quantity
		line.OldPrice = rec.Original.Price
	}

	// The client may send a bundle collapsed; scaling needs every descendant.
	if line.IsPersisted() && !line.HasChildren() {
		children, err := t.storedChildren(line)
		if err != nil {
			return nil, err
		}
		line.Items = children
	}
	return line, nil
}
