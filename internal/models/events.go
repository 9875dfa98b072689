package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypeTicketCreated       = "TICKET_CREATED"
	EventTypeTicketStatusChanged = "TICKET_STATUS_CHANGED"
	EventTypePaymentConfirmed    = "PAYMENT_CONFIRMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	Protocol   string          `json:"protocol"`
	CustomerID int64           `json:"customer_id"`
	CompanyID  int64           `json:"company_id"`
	Total      decimal.Decimal `json:"total"`
	Items      []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after every committed order transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID  int64       `json:"order_id"`
	Protocol string      `json:"protocol"`
	From     OrderStatus `json:"from"`
	To       OrderStatus `json:"to"`
	Event    OrderEvent  `json:"event"`
}

// TicketCreatedEvent published when a service ticket is opened
type TicketCreatedEvent struct {
	BaseEvent
	TicketID   int64          `json:"ticket_id"`
	Protocol   string         `json:"protocol"`
	CustomerID int64          `json:"customer_id"`
	Priority   TicketPriority `json:"priority"`
}

// TicketStatusChangedEvent published after every committed ticket transition
type TicketStatusChangedEvent struct {
	BaseEvent
	TicketID int64        `json:"ticket_id"`
	Protocol string       `json:"protocol"`
	From     TicketStatus `json:"from"`
	To       TicketStatus `json:"to"`
	Event    TicketEvent  `json:"event"`
}

// PaymentConfirmedEvent is consumed from the payment gateway's topic
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	TxID    string          `json:"tx_id"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ComponentID int64           `json:"component_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}
