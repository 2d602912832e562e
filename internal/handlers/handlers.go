package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/service"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers for the order lines service.
type Handlers struct {
	orderService *service.OrderService
	metrics      *metrics.Registry
	dependencies map[string]Pinger
	config       *config.Config
	logger       *zap.Logger
}

// NewHandlers creates a new handlers instance. dependencies are pinged by
// the readiness probe, keyed by name.
func NewHandlers(
	orderService *service.OrderService,
	reg *metrics.Registry,
	dependencies map[string]Pinger,
	cfg *config.Config,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		orderService: orderService,
		metrics:      reg,
		dependencies: dependencies,
		config:       cfg,
		logger:       logger,
	}
}
