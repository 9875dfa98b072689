package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pcstore-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *queueReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *queueReader) Close() error { return nil }

func TestPublishOrderStatusChanged(t *testing.T) {
	w := &recordingWriter{}
	pub := NewEventPublisher(NewProducerWithWriter(w))

	err := pub.PublishOrderStatusChanged(context.Background(), &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderStatusChanged, Timestamp: time.Now()},
		OrderID:   42,
		From:      models.OrderStatusPending,
		To:        models.OrderStatusPaid,
		Event:     models.OrderEventConfirmPayment,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-42", string(w.msgs[0].Key))

	var decoded models.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.OrderStatusPaid, decoded.To)
}

func TestPublishPropagatesWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	pub := NewEventPublisher(NewProducerWithWriter(w))

	err := pub.PublishTicketCreated(context.Background(), &models.TicketCreatedEvent{TicketID: 7})
	assert.Error(t, err)
}

func TestEventHandlerRoutesPaymentConfirmed(t *testing.T) {
	h := NewEventHandler()
	var got *models.PaymentConfirmedEvent
	h.OnPaymentConfirmed(func(ctx context.Context, e *models.PaymentConfirmedEvent) error {
		got = e
		return nil
	})

	payload, err := json.Marshal(models.PaymentConfirmedEvent{
		BaseEvent: models.BaseEvent{EventID: "p1", EventType: models.EventTypePaymentConfirmed},
		OrderID:   3,
		Amount:    decimal.RequireFromString("1225.00"),
		TxID:      "tx-1",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.OrderID)
	assert.Equal(t, "1225", got.Amount.String())
}

func TestEventHandlerDropsMalformed(t *testing.T) {
	h := NewEventHandler()
	h.OnPaymentConfirmed(func(ctx context.Context, e *models.PaymentConfirmedEvent) error {
		t.Fatal("handler must not run")
		return nil
	})

	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"ORDER_CREATED"}`)}))
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &queueReader{
		queue:  []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, "payments")

	err := c.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		if msg.Offset == 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{1, 3}, r.committed)
}
