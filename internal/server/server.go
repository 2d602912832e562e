package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/middleware"
)

type Server struct {
	config   *config.Config
	router   *gin.Engine
	handlers *handlers.Handlers
	http     *http.Server
	logger   *zap.Logger
}

func New(h *handlers.Handlers, cfg *config.Config, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		logger:   logger,
	}

	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/metrics", s.handlers.Metrics)

	v2 := s.router.Group("/api/v2")
	{
		v2.POST("/orders/lines/recalculate", s.handlers.RecalculateLines)
		v2.POST("/orders/calculate", s.handlers.CalculateTotals)
		v2.POST("/orders/validate", s.handlers.ValidateOrder)
		v2.POST("/orders/confirm", s.handlers.ConfirmOrder)
		v2.POST("/orders/sales/total", s.handlers.TotalSales)

		v2.GET("/orders/:id", s.handlers.GetOrder)
		v2.POST("/orders/:id/lines", s.handlers.ApplyLineChange)
		v2.POST("/orders/:id/refresh", s.handlers.RefreshOrder)
	}
}

// Router exposes the configured gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
