package worker

import (
	"context"

	"pcstore-service/internal/broker"
	"pcstore-service/internal/service"
	"pcstore-service/internal/util"

	"go.uber.org/zap"
)

// PaymentWorker consumes the payment gateway's topic and confirms payment of
// the referenced orders.
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, payments *service.PaymentHandler) *PaymentWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentConfirmed(payments.HandlePaymentConfirmed)

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming messages until ctx is cancelled
func (w *PaymentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting payment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *PaymentWorker) Stop() error {
	w.logger.Info("Stopping payment worker")
	return w.consumer.Close()
}
