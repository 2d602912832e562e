package recalc

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
)

// ChildFetcher loads the stored subtree below a persisted order line.
// It returns errors.ErrNotFound when the line does not exist.
type ChildFetcher interface {
	FetchChildren(ctx context.Context, lineID int64) ([]*models.OrderLine, error)
}

// ChildFetcherFunc adapts a function to ChildFetcher.
type ChildFetcherFunc func(ctx context.Context, lineID int64) ([]*models.OrderLine, error)

func (f ChildFetcherFunc) FetchChildren(ctx context.Context, lineID int64) ([]*models.OrderLine, error) {
	return f(ctx, lineID)
}

var errNoFetcher = stderrors.New("no child fetcher configured")

// traversal is the state of one recalculation. Children fetched from storage
// are memoized so a line is loaded at most once per recalculation.
type traversal struct {
	ctx     context.Context
	fetcher ChildFetcher
	fetched map[int64][]*models.OrderLine
	fetches int
}

func newTraversal(ctx context.Context, fetcher ChildFetcher) *traversal {
	return &traversal{
		ctx:     ctx,
		fetcher: fetcher,
		fetched: make(map[int64][]*models.OrderLine),
	}
}

// seed memoizes the children of every persisted line in forest.
func (t *traversal) seed(forest []*models.OrderLine) {
	for _, line := range forest {
		if line.IsPersisted() {
			t.fetched[*line.ID] = line.Items
		}
		t.seed(line.Items)
	}
}

// storedChildren returns the persisted children of line.
func (t *traversal) storedChildren(line *models.OrderLine) ([]*models.OrderLine, error) {
	id := *line.ID
	if children, ok := t.fetched[id]; ok {
		return children, nil
	}
	if t.fetcher == nil {
		return nil, fmt.Errorf("fetch children of line %d: %w", id, errNoFetcher)
	}
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}

	children, err := t.fetcher.FetchChildren(t.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch children of line %d: %w", id, err)
	}
	t.fetches++
	t.fetched[id] = children
	return children, nil
}
