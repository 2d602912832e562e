package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
)

// LineCommand asks the service to re-derive a stored order's aggregates after
// its lines were changed by another writer.
type LineCommand struct {
	ID      string    `json:"id,omitempty"`
	Type    EventType `json:"type"`
	OrderID int64     `json:"order_id"`
}

// OrderRefresher recomputes and persists a stored order.
type OrderRefresher interface {
	RefreshStoredOrder(ctx context.Context, orderID int64) (*models.Order, error)
}

// KafkaConsumer consumes line commands from Kafka.
type KafkaConsumer struct {
	reader    *kafka.Reader
	refresher OrderRefresher
	metrics   *metrics.Registry
	logger    *zap.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewKafkaConsumer creates a new Kafka-based command consumer.
func NewKafkaConsumer(cfg config.KafkaConfig, refresher OrderRefresher, reg *metrics.Registry, logger *zap.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.CommandsTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return &KafkaConsumer{
		reader:    reader,
		refresher: refresher,
		metrics:   reg,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins consuming commands. It blocks until ctx is done or Stop is called.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			c.logger.Info("Kafka consumer stopped")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				select {
				case <-c.stopCh:
					c.logger.Info("Kafka consumer stopped")
					return nil
				default:
				}
				c.logger.Error("Failed to read message", zap.Error(err))
				continue
			}

			outcome := metrics.OutcomeApplied
			if err := c.handleMessage(ctx, msg); err != nil {
				outcome = metrics.OutcomeFailed
				c.logger.Error("Failed to handle line command",
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			if c.metrics != nil {
				c.metrics.CommandsProcessed.WithLabelValues(outcome).Inc()
			}
		}
	}
}

// Stop stops the consumer. Calls after the first are no-ops.
func (c *KafkaConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.reader == nil {
			return
		}
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("Failed to close Kafka reader", zap.Error(err))
		}
	})
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	c.logger.Debug("Received message",
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var cmd LineCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return fmt.Errorf("decode line command: %w", err)
	}

	switch cmd.Type {
	case EventTypeLinesChanged:
		return c.handleLinesChanged(ctx, &cmd)
	default:
		c.logger.Debug("Ignoring unknown command type", zap.String("type", string(cmd.Type)))
		return nil
	}
}

func (c *KafkaConsumer) handleLinesChanged(ctx context.Context, cmd *LineCommand) error {
	c.logger.Info("Handling lines changed command", zap.Int64("order_id", cmd.OrderID))

	order, err := c.refresher.RefreshStoredOrder(ctx, cmd.OrderID)
	if errors.IsNotFound(err) {
		c.logger.Warn("Order for line command not found", zap.Int64("order_id", cmd.OrderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh order %d: %w", cmd.OrderID, err)
	}

	c.logger.Info("Stored order refreshed",
		zap.Int64("order_id", order.ID),
		zap.String("total_amount", order.TotalAmount.StringFixed(4)),
	)
	return nil
}
