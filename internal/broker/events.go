package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pcstore-service/internal/models"
	"pcstore-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. Events of one order or
// ticket share a partition key so consumers see them in commit order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(id int64) string  { return fmt.Sprintf("order-%d", id) }
func ticketKey(id int64) string { return fmt.Sprintf("ticket-%d", id) }

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishTicketCreated publishes TicketCreated event
func (ep *EventPublisher) PublishTicketCreated(ctx context.Context, event *models.TicketCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, ticketKey(event.TicketID), event)
}

// PublishTicketStatusChanged publishes TicketStatusChanged event
func (ep *EventPublisher) PublishTicketStatusChanged(ctx context.Context, event *models.TicketStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, ticketKey(event.TicketID), event)
}

// EventHandler routes incoming events by type
type EventHandler struct {
	onPaymentConfirmed func(context.Context, *models.PaymentConfirmedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentConfirmed registers a handler for PaymentConfirmed events
func (eh *EventHandler) OnPaymentConfirmed(handler func(context.Context, *models.PaymentConfirmedEvent) error) {
	eh.onPaymentConfirmed = handler
}

// HandleMessage routes messages to appropriate handlers. Malformed messages
// are logged and dropped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Dropping undecodable message", zap.Int64("offset", msg.Offset), zap.Error(err))
		util.PaymentEventsTotal.WithLabelValues("malformed").Inc()
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePaymentConfirmed:
		if eh.onPaymentConfirmed != nil {
			var event models.PaymentConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Error("Dropping malformed PaymentConfirmed event",
					zap.String("event_id", baseEvent.EventID), zap.Error(err))
				util.PaymentEventsTotal.WithLabelValues("malformed").Inc()
				return nil
			}
			return eh.onPaymentConfirmed(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
