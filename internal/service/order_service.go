package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/recalc"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/repository"
)

// EventPublisher publishes order line events.
type EventPublisher interface {
	PublishLinesRecalculated(ctx context.Context, order *models.Order, dirty *models.OrderLine) error
	PublishTotalsCalculated(ctx context.Context, order *models.Order) error
}

// OrderService handles order line business logic.
type OrderService struct {
	orderRepo      repository.OrderRepository
	orderCache     repository.OrderCache
	engine         *recalc.Engine
	eventPublisher EventPublisher
	metrics        *metrics.Registry
	config         *config.Config
	logger         *zap.Logger
	now            func() time.Time
}

// NewOrderService creates a new order service. Stored subtrees needed by the
// recalculation engine are read through orderRepo.
func NewOrderService(
	orderRepo repository.OrderRepository,
	orderCache repository.OrderCache,
	eventPublisher EventPublisher,
	reg *metrics.Registry,
	cfg *config.Config,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	var fetcher recalc.ChildFetcher
	if orderRepo != nil {
		fetcher = reg.WrapFetcher(orderRepo)
	}
	return &OrderService{
		orderRepo:      orderRepo,
		orderCache:     orderCache,
		engine:         recalc.NewEngine(fetcher, logger.Named("recalc")),
		eventPublisher: eventPublisher,
		metrics:        reg,
		config:         cfg,
		logger:         logger,
		now:            time.Now,
	}
}

// RecalculateLines runs a line-change recalculation over the submitted lines
// and returns them ready for the next edit round trip.
func (s *OrderService) RecalculateLines(ctx context.Context, req *models.LineChangeRequest) ([]*models.OrderLine, error) {
	s.logger.Debug("Recalculating order lines", zap.Int("root_lines", len(req.Items)))

	start := time.Now()
	result, err := s.engine.Recalculate(ctx, req.Items)
	if err != nil {
		s.metrics.ObserveRecalculation(start, metrics.OutcomeFailed)
		if errors.IsNotFound(err) {
			return nil, errors.NewValidationError("items", err.Error())
		}
		return nil, err
	}
	s.metrics.ObserveRecalculation(start, outcomeOf(result))

	for _, line := range result.Items {
		line.SnapshotCurrent()
	}
	return result.Items, nil
}

func outcomeOf(result *recalc.Result) string {
	if result.Changed() {
		return metrics.OutcomeApplied
	}
	return metrics.OutcomeNoop
}

// CalculateTotals computes and sets the order's amount, tax amount and total.
func (s *OrderService) CalculateTotals(ctx context.Context, order *models.Order) OrderTotals {
	totals := ApplyTotals(order)
	s.metrics.TotalsCalculated.Inc()

	s.logger.Debug("Order totals calculated",
		zap.Int64("order_id", order.ID),
		zap.String("amount", totals.Amount.StringFixed(4)),
		zap.String("tax_amount", totals.TaxAmount.StringFixed(4)),
		zap.String("total_amount", totals.TotalAmount.StringFixed(4)),
	)
	return totals
}

// Validate checks the order's dates before it is saved.
func (s *OrderService) Validate(order *models.Order) error {
	if err := ValidateOrder(order); err != nil {
		s.logger.Debug("Order rejected", zap.Int64("order_id", order.ID), zap.Error(err))
		return err
	}
	return nil
}

// Confirm applies the confirmed flag to the order as of today.
func (s *OrderService) Confirm(order *models.Order) bool {
	return ConfirmOrder(order, s.now())
}

// TotalSales sums the amounts of orders. ok is false when there are none.
func (s *OrderService) TotalSales(orders []*models.Order) (decimal.Decimal, bool) {
	return TotalSales(orders)
}

// GetOrder retrieves a stored order, from cache when possible.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	s.logger.Debug("Getting order", zap.Int64("order_id", id))

	if s.cachingEnabled() {
		if order, err := s.orderCache.Get(ctx, id); err == nil && order != nil {
			s.logger.Debug("Order found in cache", zap.Int64("order_id", id))
			return order, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cachingEnabled() {
		if err := s.orderCache.Set(ctx, order); err != nil {
			s.logger.Warn("Failed to cache order", zap.Int64("order_id", id), zap.Error(err))
		}
	}
	return order, nil
}

// ApplyLineChange recalculates a stored order after one of its lines was
// edited, then persists the lines and totals.
func (s *OrderService) ApplyLineChange(ctx context.Context, orderID int64, req *models.LineChangeRequest) (*models.Order, error) {
	s.logger.Info("Applying line change", zap.Int64("order_id", orderID))

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	mergeStoredChildren(req.Items, order.Items)
	fillOriginal(req.Items, order.Items)

	start := time.Now()
	result, err := s.engine.ApplyStored(ctx, order.Items, req.Items)
	if err != nil {
		s.metrics.ObserveRecalculation(start, metrics.OutcomeFailed)
		return nil, fmt.Errorf("recalculate order %d: %w", orderID, err)
	}
	s.metrics.ObserveRecalculation(start, outcomeOf(result))

	if !result.Changed() {
		return order, nil
	}
	if !result.Spliced {
		return nil, errors.NewValidationError("items", "changed line does not belong to the order")
	}

	s.CalculateTotals(ctx, order)
	if err := s.orderRepo.SaveLines(ctx, order); err != nil {
		s.logger.Error("Failed to save order lines", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, err
	}
	s.invalidate(ctx, orderID)

	if s.eventsEnabled() {
		if err := s.eventPublisher.PublishLinesRecalculated(ctx, order, result.Dirty); err != nil {
			s.logger.Error("Failed to publish lines recalculated event", zap.Int64("order_id", orderID), zap.Error(err))
		} else {
			s.metrics.EventsPublished.WithLabelValues("lines_recalculated").Inc()
		}
	}

	s.logger.Info("Line change applied",
		zap.Int64("order_id", orderID),
		zap.String("total_amount", order.TotalAmount.StringFixed(4)),
	)

	for _, line := range order.Items {
		line.SnapshotCurrent()
	}
	return order, nil
}

// RefreshStoredOrder re-derives every bundle and the totals of a stored order
// from its leaves and persists the result.
func (s *OrderService) RefreshStoredOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	s.logger.Info("Refreshing stored order", zap.Int64("order_id", orderID))

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	for _, line := range order.Items {
		recalc.Recompute(line)
	}
	s.CalculateTotals(ctx, order)

	if err := s.orderRepo.SaveLines(ctx, order); err != nil {
		s.logger.Error("Failed to save refreshed order", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, err
	}
	s.invalidate(ctx, orderID)

	if s.eventsEnabled() {
		if err := s.eventPublisher.PublishTotalsCalculated(ctx, order); err != nil {
			s.logger.Error("Failed to publish totals calculated event", zap.Int64("order_id", orderID), zap.Error(err))
		} else {
			s.metrics.EventsPublished.WithLabelValues("totals_calculated").Inc()
		}
	}

	for _, line := range order.Items {
		line.SnapshotCurrent()
	}
	return order, nil
}

func (s *OrderService) cachingEnabled() bool {
	return s.orderCache != nil && s.config.Features.EnableOrderCaching
}

func (s *OrderService) eventsEnabled() bool {
	return s.eventPublisher != nil && s.config.Features.EnableOrderEvents
}

func (s *OrderService) invalidate(ctx context.Context, orderID int64) {
	if !s.cachingEnabled() {
		return
	}
	if err := s.orderCache.Delete(ctx, orderID); err != nil {
		s.logger.Warn("Failed to invalidate cached order", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// fillOriginal gives a changed record without an explicit pre-edit snapshot
// the values of its stored counterpart.
func fillOriginal(records []models.LineRecord, stored []*models.OrderLine) {
	for i := range records {
		rec := &records[i]
		if rec.Changed && rec.Original == nil && rec.ID != nil {
			if line := findStored(stored, *rec.ID); line != nil {
				rec.Original = &models.LineSnapshot{Quantity: line.Quantity, Price: line.Price}
			}
		}
		fillOriginal(rec.Items, stored)
	}
}

// mergeStoredChildren completes submitted lines with the stored children they
// left out, so an edit scales and saves the whole stored subtree.
func mergeStoredChildren(records []models.LineRecord, stored []*models.OrderLine) {
	for i := range records {
		rec := &records[i]
		if rec.ID != nil && len(rec.Items) > 0 {
			if line := findStored(stored, *rec.ID); line != nil && line.HasChildren() {
				rec.Items = mergeItems(rec.Items, line.Items)
			}
		}
		mergeStoredChildren(rec.Items, stored)
	}
}

// mergeItems keeps the stored order of children. Submitted lines unknown to
// storage follow.
func mergeItems(submitted []models.LineRecord, stored []*models.OrderLine) []models.LineRecord {
	used := make([]bool, len(submitted))
	merged := make([]models.LineRecord, 0, len(stored)+len(submitted))
	for _, child := range stored {
		idx := -1
		for j := range submitted {
			if !used[j] && submitted[j].ID != nil && child.ID != nil && *submitted[j].ID == *child.ID {
				idx = j
				break
			}
		}
		if idx < 0 {
			merged = append(merged, models.RecordOf(child))
			continue
		}
		used[idx] = true
		merged = append(merged, submitted[idx])
	}
	for j := range submitted {
		if !used[j] {
			merged = append(merged, submitted[j])
		}
	}
	return merged
}

func findStored(forest []*models.OrderLine, id int64) *models.OrderLine {
	for _, line := range forest {
		if line.ID != nil && *line.ID == id {
			return line
		}
		if found := findStored(line.Items, id); found != nil {
			return found
		}
	}
	return nil
}
