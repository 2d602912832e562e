package recalc

import (
	"context"

	"github.com/shopspring/decimal"

	apperrors "github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func leaf(id int64, qty int, price string) *models.OrderLine {
	p := d(price)
	return &models.OrderLine{
		ID:         models.Int64Ptr(id),
		Quantity:   qty,
		Price:      p,
		TotalPrice: p.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func bundle(id int64, qty int, children ...*models.OrderLine) *models.OrderLine {
	line := &models.OrderLine{ID: models.Int64Ptr(id), Quantity: qty, Items: children}
	Recompute(line)
	return line
}

// memFetcher serves stored subtrees from memory, copying them on every call
// the way a database read would.
type memFetcher struct {
	lines map[int64][]*models.OrderLine
	calls map[int64]int
	err   error
}

func newMemFetcher() *memFetcher {
	return &memFetcher{
		lines: make(map[int64][]*models.OrderLine),
		calls: make(map[int64]int),
	}
}

func (m *memFetcher) store(id int64, children ...*models.OrderLine) {
	m.lines[id] = children
}

func (m *memFetcher) FetchChildren(ctx context.Context, id int64) ([]*models.OrderLine, error) {
	m.calls[id]++
	if m.err != nil {
		return nil, m.err
	}
	children, ok := m.lines[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneLines(children), nil
}

func cloneLines(lines []*models.OrderLine) []*models.OrderLine {
	if lines == nil {
		return nil
	}
	out := make([]*models.OrderLine, 0, len(lines))
	for _, l := range lines {
		c := *l
		if l.ID != nil {
			c.ID = models.Int64Ptr(*l.ID)
		}
		c.Items = cloneLines(l.Items)
		out = append(out, &c)
	}
	return out
}
