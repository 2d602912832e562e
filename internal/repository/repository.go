package repository

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/recalc"
)

// Ensure PostgresOrderRepository can back the recalculation engine.
var (
	_ OrderRepository     = (*PostgresOrderRepository)(nil)
	_ recalc.ChildFetcher = (*PostgresOrderRepository)(nil)
	_ OrderCache          = (*RedisOrderCache)(nil)
)

// OrderRepository defines persistence operations for orders and their line trees.
type OrderRepository interface {
	// GetByID loads the order header and its full line forest. Every line's
	// old snapshot is set to its stored values.
	GetByID(ctx context.Context, id int64) (*models.Order, error)

	// FetchChildren loads the stored subtree below a line.
	FetchChildren(ctx context.Context, lineID int64) ([]*models.OrderLine, error)

	// SaveLines persists the line forest and the order totals in one transaction.
	SaveLines(ctx context.Context, order *models.Order) error

	// UpdateTotals persists the order's amount, tax amount and total amount.
	UpdateTotals(ctx context.Context, order *models.Order) error
}

// OrderCache defines caching operations for orders.
type OrderCache interface {
	Get(ctx context.Context, id int64) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id int64) error
}
