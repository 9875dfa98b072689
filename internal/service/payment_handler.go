package service

import (
	"context"
	"errors"
	"fmt"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/lifecycle"
	"pcstore-service/internal/models"
	"pcstore-service/internal/util"

	"go.uber.org/zap"
)

// PaymentHandler turns payment confirmations from the gateway into
// CONFIRM_PAYMENT transitions. Every event is applied at most once.
type PaymentHandler struct {
	events EventStore
	orders *OrderService
	logger *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(events EventStore, orders *OrderService) *PaymentHandler {
	return &PaymentHandler{
		events: events,
		orders: orders,
		logger: util.GetLogger(),
	}
}

// HandlePaymentConfirmed confirms payment of the referenced order. Events
// that can never apply (unknown or closed order, wrong amount, order already
// past PENDING) are recorded as processed and dropped; other failures are
// returned so the message is redelivered.
func (h *PaymentHandler) HandlePaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentHandler.HandlePaymentConfirmed")
	defer span.End()

	processed, err := h.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return util.SpanError(span, fmt.Errorf("failed to check event processed: %w", err))
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.PaymentEventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	logger := h.logger.With(
		zap.String("event_id", event.EventID),
		zap.Int64("order_id", event.OrderID),
		zap.String("tx_id", event.TxID))

	order, err := h.orders.GetOrder(ctx, event.OrderID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		logger.Warn("Payment for unknown order")
		return h.drop(ctx, event, "unknown_order")
	case err != nil:
		util.PaymentEventsTotal.WithLabelValues("error").Inc()
		return util.SpanError(span, err)
	}

	if lifecycle.OrderTerminal(order.Status) {
		logger.Warn("Payment for closed order", zap.String("status", string(order.Status)))
		return h.drop(ctx, event, "order_closed")
	}

	if !event.Amount.Equal(order.Total) {
		logger.Warn("Payment amount does not match order total",
			zap.String("amount", event.Amount.StringFixed(2)),
			zap.String("total", order.Total.StringFixed(2)))
		return h.drop(ctx, event, "amount_mismatch")
	}

	_, err = h.orders.TransitionOrder(ctx, event.OrderID, &TransitionOrderRequest{
		Event: models.OrderEventConfirmPayment,
	})
	if errors.Is(err, apperr.ErrInvalidTransition) {
		logger.Info("Payment ignored, order not pending", zap.String("status", string(order.Status)))
		return h.drop(ctx, event, "ignored")
	}
	if err != nil {
		util.PaymentEventsTotal.WithLabelValues("error").Inc()
		return util.SpanError(span, err)
	}

	util.PaymentEventsTotal.WithLabelValues("confirmed").Inc()
	if err := h.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		logger.Error("Failed to mark event processed", zap.Error(err))
	}

	logger.Info("Payment confirmed")
	return nil
}

func (h *PaymentHandler) drop(ctx context.Context, event *models.PaymentConfirmedEvent, reason string) error {
	util.PaymentEventsTotal.WithLabelValues(reason).Inc()
	if err := h.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
