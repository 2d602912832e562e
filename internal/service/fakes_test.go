package service

import (
	"context"
	stderrors "errors"

	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/metrics"
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
		c.Taxes = append([]models.Tax(nil), l.Taxes...)
		c.Items = cloneLines(l.Items)
		out = append(out, &c)
	}
	return out
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = cloneLines(o.Items)
	return &c
}

// MockOrderRepository keeps orders in memory and copies them on every read
// the way a database would.
type MockOrderRepository struct {
	orders  map[int64]*models.Order
	saved   []*models.Order
	reads   int
	saveErr error
}

func NewMockOrderRepository(orders ...*models.Order) *MockOrderRepository {
	m := &MockOrderRepository{
		orders: make(map[int64]*models.Order),
	}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	m.reads++
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	c := cloneOrder(o)
	for _, line := range c.Items {
		line.SnapshotCurrent()
	}
	return c, nil
}

func (m *MockOrderRepository) FetchChildren(ctx context.Context, lineID int64) ([]*models.OrderLine, error) {
	for _, o := range m.orders {
		if line := findStored(o.Items, lineID); line != nil {
			children := cloneLines(line.Items)
			for _, c := range children {
				c.SnapshotCurrent()
			}
			return children, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (m *MockOrderRepository) SaveLines(ctx context.Context, order *models.Order) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.orders[order.ID] = cloneOrder(order)
	m.saved = append(m.saved, cloneOrder(order))
	return nil
}

func (m *MockOrderRepository) UpdateTotals(ctx context.Context, order *models.Order) error {
	stored, ok := m.orders[order.ID]
	if !ok {
		return errors.ErrNotFound
	}
	stored.Amount = order.Amount
	stored.TaxAmount = order.TaxAmount
	stored.TotalAmount = order.TotalAmount
	return nil
}

type mockCache struct {
	orders  map[int64]*models.Order
	deleted []int64
	failGet bool
}

func newMockCache() *mockCache {
	return &mockCache{orders: make(map[int64]*models.Order)}
}

func (c *mockCache) Get(ctx context.Context, id int64) (*models.Order, error) {
	if c.failGet {
		return nil, stderrors.New("cache down")
	}
	return c.orders[id], nil
}

func (c *mockCache) Set(ctx context.Context, order *models.Order) error {
	c.orders[order.ID] = order
	return nil
}

func (c *mockCache) Delete(ctx context.Context, id int64) error {
	c.deleted = append(c.deleted, id)
	delete(c.orders, id)
	return nil
}

type publishedEvent struct {
	kind    string
	orderID int64
	dirty   *models.OrderLine
}

type mockPublisher struct {
	events []publishedEvent
	err    error
}

func (p *mockPublisher) PublishLinesRecalculated(ctx context.Context, order *models.Order, dirty *models.OrderLine) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{kind: "lines_recalculated", orderID: order.ID, dirty: dirty})
	return nil
}

func (p *mockPublisher) PublishTotalsCalculated(ctx context.Context, order *models.Order) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{kind: "totals_calculated", orderID: order.ID})
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Features: config.FeatureFlags{
			EnableOrderCaching: true,
			EnableOrderEvents:  true,
		},
	}
}

type fixture struct {
	repo      *MockOrderRepository
	cache     *mockCache
	publisher *mockPublisher
	metrics   *metrics.Registry
	service   *OrderService
}

func newFixture(orders ...*models.Order) *fixture {
	f := &fixture{
		repo:      NewMockOrderRepository(orders...),
		cache:     newMockCache(),
		publisher: &mockPublisher{},
		metrics:   metrics.NewRegistry(),
	}
	f.service = NewOrderService(f.repo, f.cache, f.publisher, f.metrics, testConfig(), nil)
	return f
}
