package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

// EventType represents the type of order event.
type EventType string

const (
	EventTypeLinesRecalculated EventType = "order.lines_recalculated"
	EventTypeTotalsCalculated  EventType = "order.totals_calculated"
	EventTypeLinesChanged      EventType = "order.lines_changed"
)

// OrderEvent represents an order-related event.
type OrderEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OrderID       int64             `json:"order_id"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// TotalsPayload carries an order's totals at fixed scale.
type TotalsPayload struct {
	Amount      string `json:"amount"`
	TaxAmount   string `json:"tax_amount"`
	TotalAmount string `json:"total_amount"`
}

// LinesRecalculatedPayload describes the edited line after recalculation.
type LinesRecalculatedPayload struct {
	LineID     *int64        `json:"line_id,omitempty"`
	ClientID   string        `json:"cid,omitempty"`
	Quantity   int           `json:"quantity"`
	Price      string        `json:"price"`
	TotalPrice string        `json:"total_price"`
	Totals     TotalsPayload `json:"totals"`
}

func totalsOf(order *models.Order) TotalsPayload {
	return TotalsPayload{
		Amount:      money.Fixed(order.Amount),
		TaxAmount:   money.Fixed(order.TaxAmount),
		TotalAmount: money.Fixed(order.TotalAmount),
	}
}

// KafkaPublisher publishes order events to Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		topic:  cfg.OrdersTopic,
		logger: logger,
	}
}

// PublishLinesRecalculated publishes the outcome of a line edit on a stored order.
func (p *KafkaPublisher) PublishLinesRecalculated(ctx context.Context, order *models.Order, dirty *models.OrderLine) error {
	p.logger.Debug("Publishing lines recalculated event", zap.Int64("order_id", order.ID))

	data, err := json.Marshal(linesRecalculatedPayload(order, dirty))
	if err != nil {
		return err
	}
	return p.publish(ctx, newEvent(ctx, EventTypeLinesRecalculated, order.ID, data))
}

// PublishTotalsCalculated publishes freshly computed order totals.
func (p *KafkaPublisher) PublishTotalsCalculated(ctx context.Context, order *models.Order) error {
	p.logger.Debug("Publishing totals calculated event", zap.Int64("order_id", order.ID))

	data, err := json.Marshal(totalsOf(order))
	if err != nil {
		return err
	}
	return p.publish(ctx, newEvent(ctx, EventTypeTotalsCalculated, order.ID, data))
}

func linesRecalculatedPayload(order *models.Order, dirty *models.OrderLine) LinesRecalculatedPayload {
	payload := LinesRecalculatedPayload{Totals: totalsOf(order)}
	if dirty != nil {
		payload.LineID = dirty.ID
		payload.ClientID = dirty.ClientID
		payload.Quantity = dirty.Quantity
		payload.Price = money.Fixed(dirty.Price)
		payload.TotalPrice = money.Fixed(dirty.TotalPrice)
	}
	return payload
}

func newEvent(ctx context.Context, eventType EventType, orderID int64, data []byte) *OrderEvent {
	return &OrderEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		OrderID:       orderID,
		Data:          data,
		Metadata:      map[string]string{"source": "orderlines-service"},
		Timestamp:     time.Now().UTC(),
		CorrelationID: middleware.RequestIDFrom(ctx),
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, event *OrderEvent) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info("Event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Int64("order_id", event.OrderID),
	)
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}

// MockEventPublisher records events in memory. Used by tests and when
// events are disabled.
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []*OrderEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{
		Events: make([]*OrderEvent, 0),
	}
}

func (m *MockEventPublisher) PublishLinesRecalculated(ctx context.Context, order *models.Order, dirty *models.OrderLine) error {
	data, err := json.Marshal(linesRecalculatedPayload(order, dirty))
	if err != nil {
		return err
	}
	m.record(newEvent(ctx, EventTypeLinesRecalculated, order.ID, data))
	return nil
}

func (m *MockEventPublisher) PublishTotalsCalculated(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(totalsOf(order))
	if err != nil {
		return err
	}
	m.record(newEvent(ctx, EventTypeTotalsCalculated, order.ID, data))
	return nil
}

func (m *MockEventPublisher) record(event *OrderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

// Published returns a copy of the recorded events.
func (m *MockEventPublisher) Published() []*OrderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*OrderEvent(nil), m.Events...)
}
