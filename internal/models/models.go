package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ComponentType is a slot in a PC configuration (CPU, motherboard, PSU...)
type ComponentType struct {
	Code       string `db:"code" json:"code"`
	Name       string `db:"name" json:"name"`
	IsRequired bool   `db:"is_required" json:"is_required"`
	SortOrder  int    `db:"sort_order" json:"sort_order"`
}

// Tags holds the compatibility attributes of a component, e.g. socket=AM5
type Tags map[string]string

// Value implements driver.Valuer
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner
func (t *Tags) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported tags type %T", src)
	}
	return json.Unmarshal(data, t)
}

// Component is a purchasable part of the catalog
type Component struct {
	ID            int64           `db:"id" json:"id"`
	TypeCode      string          `db:"type_code" json:"type_code"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	Tags          Tags            `db:"tags" json:"tags"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Order represents a customer order
type Order struct {
	ID              int64           `db:"id" json:"id"`
	Protocol        string          `db:"protocol" json:"protocol"`
	CustomerID      int64           `db:"customer_id" json:"customer_id"`
	CompanyID       int64           `db:"company_id" json:"company_id"`
	Status          OrderStatus     `db:"status" json:"status"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingCost    decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	TaxAmount       decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	Total           decimal.Decimal `db:"total" json:"total"`
	ShippingZone    string          `db:"shipping_zone" json:"shipping_zone"`
	Locale          string          `db:"locale" json:"locale"`
	ShippingAddress string          `db:"shipping_address" json:"shipping_address"`
	TrackingCode    string          `db:"tracking_code" json:"tracking_code,omitempty"`
	IdempotencyKey  string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	PaidAt          *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	ShippedAt       *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CancelledAt     *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is a line of an order. UnitPrice is a snapshot taken at checkout.
type OrderItem struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	Position     int             `db:"position" json:"position"`
	ComponentID  int64           `db:"component_id" json:"component_id"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineSubtotal decimal.Decimal `db:"line_subtotal" json:"line_subtotal"`
}

// ServiceTicket tracks a repair request
type ServiceTicket struct {
	ID         int64          `db:"id" json:"id"`
	Protocol   string         `db:"protocol" json:"protocol"`
	CustomerID int64          `db:"customer_id" json:"customer_id"`
	CompanyID  int64          `db:"company_id" json:"company_id"`
	ServiceID  *int64         `db:"service_id" json:"service_id,omitempty"`
	Status     TicketStatus   `db:"status" json:"status"`
	Priority   TicketPriority `db:"priority" json:"priority"`
	Symptoms   string         `db:"symptoms" json:"symptoms"`
	Diagnosis  string         `db:"diagnosis" json:"diagnosis,omitempty"`
	Solution   string         `db:"solution" json:"solution,omitempty"`
	ClosedAt   *time.Time     `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderStatus is the fulfillment state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusInPreparation OrderStatus = "IN_PREPARATION"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
)

// OrderEvent triggers an order transition
type OrderEvent string

// Order events
const (
	OrderEventConfirmPayment   OrderEvent = "CONFIRM_PAYMENT"
	OrderEventBeginFulfillment OrderEvent = "BEGIN_FULFILLMENT"
	OrderEventDispatch         OrderEvent = "DISPATCH"
	OrderEventConfirmDelivery  OrderEvent = "CONFIRM_DELIVERY"
	OrderEventCancel           OrderEvent = "CANCEL"
)

// TicketStatus is the repair state of a service ticket
type TicketStatus string

// Ticket statuses
const (
	TicketStatusOpened          TicketStatus = "OPENED"
	TicketStatusDiagnosing      TicketStatus = "DIAGNOSING"
	TicketStatusWaitingCustomer TicketStatus = "WAITING_CUSTOMER"
	TicketStatusInRepair        TicketStatus = "IN_REPAIR"
	TicketStatusReady           TicketStatus = "READY"
	TicketStatusClosed          TicketStatus = "CLOSED"
	TicketStatusCancelled       TicketStatus = "CANCELLED"
)

// TicketEvent triggers a ticket transition
type TicketEvent string

// Ticket events
const (
	TicketEventStartDiagnosis  TicketEvent = "START_DIAGNOSIS"
	TicketEventAwaitCustomer   TicketEvent = "AWAIT_CUSTOMER"
	TicketEventResumeDiagnosis TicketEvent = "RESUME_DIAGNOSIS"
	TicketEventStartRepair     TicketEvent = "START_REPAIR"
	TicketEventFinishRepair    TicketEvent = "FINISH_REPAIR"
	TicketEventClose           TicketEvent = "CLOSE"
	TicketEventCancel          TicketEvent = "CANCEL"
)

// TicketPriority orders tickets in the dispatch queue; it never affects
// which transitions are valid.
type TicketPriority string

// Ticket priorities
const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is one of the known priorities
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
