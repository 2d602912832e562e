// Package recalc keeps an order's line tree consistent after one line is
// edited: it locates the edited line, scales its descendants by the edit's
// ratios, splices it back into the tree and re-aggregates its ancestors.
package recalc

import (
	"context"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

// Result is the outcome of one line-change recalculation.
type Result struct {
	Items        []*models.OrderLine
	Dirty        *models.OrderLine
	Coefficients Coefficients
	Spliced      bool
	Fetches      int
}

// Changed reports whether a dirty line was found and processed.
func (r *Result) Changed() bool {
	return r.Dirty != nil
}

// Engine runs line-change recalculations. It holds no per-request state and
// is safe for concurrent use as long as the fetcher is.
type Engine struct {
	fetcher ChildFetcher
	logger  *zap.Logger
}

// NewEngine creates an engine reading stored subtrees through fetcher.
func NewEngine(fetcher ChildFetcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Recalculate treats the submitted records as the whole order and returns the
// recalculated forest built from them.
func (e *Engine) Recalculate(ctx context.Context, records []models.LineRecord) (*Result, error) {
	return e.Apply(ctx, models.ToForest(records), records)
}

// Apply locates the dirty line in records and recalculates forest around it.
// forest is modified in place. When no record is marked the forest is
// returned unchanged.
func (e *Engine) Apply(ctx context.Context, forest []*models.OrderLine, records []models.LineRecord) (*Result, error) {
	return e.apply(newTraversal(ctx, e.fetcher), forest, records)
}

// ApplyStored is Apply for a forest loaded complete from storage. Children
// of its persisted lines are taken from forest instead of the fetcher.
func (e *Engine) ApplyStored(ctx context.Context, forest []*models.OrderLine, records []models.LineRecord) (*Result, error) {
	t := newTraversal(ctx, e.fetcher)
	t.seed(forest)
	return e.apply(t, forest, records)
}

func (e *Engine) apply(t *traversal, forest []*models.OrderLine, records []models.LineRecord) (*Result, error) {
	dirty, err := t.findDirtyLine(records)
	if err != nil {
		e.logger.Error("Failed to locate dirty line", zap.Error(err))
		return nil, err
	}
	if dirty == nil || len(forest) == 0 {
		e.logger.Debug("Nothing to recalculate", zap.Int("root_lines", len(forest)))
		return &Result{Items: forest}, nil
	}

	coef := CoefficientsFor(dirty)
	Propagate(dirty, coef)
	if !dirty.HasChildren() {
		dirty.TotalPrice = money.RoundHalfUp(money.FromInt(dirty.Quantity).Mul(dirty.Price), money.Scale)
	}
	spliced := Splice(forest, dirty)

	if err := t.aggregate(forest, dirty); err != nil {
		e.logger.Error("Failed to aggregate parent lines", zap.Error(err))
		return nil, err
	}

	e.logger.Debug("Order lines recalculated",
		zap.Any("line", models.IdentityOf(dirty)),
		zap.String("qty_coefficient", coef.Quantity.String()),
		zap.String("price_coefficient", coef.Price.String()),
		zap.Bool("spliced", spliced),
		zap.Int("fetches", t.fetches),
	)

	return &Result{
		Items:        forest,
		Dirty:        dirty,
		Coefficients: coef,
		Spliced:      spliced,
		Fetches:      t.fetches,
	}, nil
}
