package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/server"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/service"
)

func main() {
	if os.Getenv("ENV") != "production" {
		// A missing .env file is fine; the environment may already be set.
		_ = godotenv.Load()
	}

	cfg := config.Load()

	logger := logging.NewLogger("orderlines-service")
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting orderlines-service", zap.Int("port", cfg.Server.Port))

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	orderRepo := repository.NewPostgresOrderRepository(db, logging.NewLogger("order-repository"))
	if err := orderRepo.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	dependencies := map[string]handlers.Pinger{"postgres": orderRepo}

	var orderCache repository.OrderCache
	if cfg.Features.EnableOrderCaching {
		redisCache := repository.NewRedisOrderCache(cfg.Redis, logging.NewLogger("order-cache"))
		defer redisCache.Close()
		orderCache = redisCache
		dependencies["redis"] = redisCache
	}

	reg := metrics.NewRegistry()

	var eventPublisher service.EventPublisher
	if cfg.Features.EnableOrderEvents {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, logging.NewLogger("event-publisher"))
		defer kafkaPublisher.Close()
		eventPublisher = kafkaPublisher
	}

	orderService := service.NewOrderService(
		orderRepo,
		orderCache,
		eventPublisher,
		reg,
		cfg,
		logging.NewLogger("order-service"),
	)

	h := handlers.NewHandlers(orderService, reg, dependencies, cfg, logging.NewLogger("handlers"))

	srv := server.New(h, cfg, logging.NewLogger("http"))

	go func() {
		logger.Info("Server starting",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("enable_order_caching", cfg.Features.EnableOrderCaching),
			zap.Bool("enable_order_events", cfg.Features.EnableOrderEvents),
			zap.Bool("enable_line_commands_consumer", cfg.Features.EnableConsumer),
		)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var eventConsumer *events.KafkaConsumer
	if cfg.Features.EnableConsumer {
		eventConsumer = events.NewKafkaConsumer(cfg.Kafka, orderService, reg, logging.NewLogger("event-consumer"))
		go func() {
			if err := eventConsumer.Start(consumerCtx); err != nil && err != context.Canceled {
				logger.Error("Event consumer failed", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if eventConsumer != nil {
		stopConsumer()
		eventConsumer.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("name", cfg.Database.Name),
	)

	return db, nil
}
