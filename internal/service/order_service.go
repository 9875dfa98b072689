package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/catalog"
	"pcstore-service/internal/compat"
	"pcstore-service/internal/lifecycle"
	"pcstore-service/internal/models"
	"pcstore-service/internal/money"
	"pcstore-service/internal/pricing"
	"pcstore-service/internal/protocol"
	"pcstore-service/internal/store"
	"pcstore-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles order business logic
type OrderService struct {
	store          OrderStore
	catalog        CatalogReader
	resolver       *compat.Resolver
	pricing        *pricing.Engine
	protocols      ProtocolGenerator
	eventPublisher EventPublisher
	clock          util.Clock
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	catalog CatalogReader,
	resolver *compat.Resolver,
	pricing *pricing.Engine,
	protocols ProtocolGenerator,
	eventPublisher EventPublisher,
	clock util.Clock,
) *OrderService {
	return &OrderService{
		store:          store,
		catalog:        catalog,
		resolver:       resolver,
		pricing:        pricing,
		protocols:      protocols,
		eventPublisher: eventPublisher,
		clock:          clock,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order. Items and
// Configuration may be combined; at least one must be present.
type CreateOrderRequest struct {
	CustomerID      int64              `json:"customer_id" validate:"required,gt=0"`
	CompanyID       int64              `json:"company_id" validate:"required,gt=0"`
	Items           []OrderItemRequest `json:"items" validate:"max=100,dive"`
	Configuration   compat.Selection   `json:"configuration,omitempty"`
	ShippingAddress string             `json:"shipping_address" validate:"required,max=500"`
	ShippingZone    string             `json:"shipping_zone" validate:"required,max=32"`
	Locale          string             `json:"locale" validate:"required,max=16"`
	DiscountAmount  decimal.Decimal    `json:"discount_amount"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty" validate:"max=64"`
}

// maxComponentQuantity bounds the units of one component in an order
const maxComponentQuantity = 1000

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ComponentID int64 `json:"component_id" validate:"required,gt=0"`
	Quantity    int   `json:"quantity" validate:"required,gt=0,max=1000"`
}

// TransitionOrderRequest applies one lifecycle event to an order
type TransitionOrderRequest struct {
	Event        models.OrderEvent `json:"event" validate:"required"`
	TrackingCode string            `json:"tracking_code,omitempty" validate:"max=64"`
}

// OrderDetails is an order with its items
type OrderDetails struct {
	*models.Order
	Items []models.OrderItem `json:"items"`
}

// CreateOrder prices the requested items against a fresh catalog snapshot
// and stores a PENDING order. Stock is only checked here; it is reserved when
// fulfillment begins.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := validateRequest(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	if len(req.Items) == 0 && len(req.Configuration) == 0 {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, apperr.Validation("items", "items or configuration required")
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to check idempotency: %w", err))
	}
	if existing != nil {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		return s.details(ctx, existing)
	}

	snap, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	items, err := s.buildItems(req, snap)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	priceItems := make([]pricing.Item, len(items))
	for i, it := range items {
		priceItems[i] = pricing.Item{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	breakdown, err := s.pricing.Price(priceItems, req.ShippingZone, req.Locale, req.DiscountAmount)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}
	if !breakdown.ShippingMatched {
		util.ShippingTierMissesTotal.WithLabelValues(req.ShippingZone).Inc()
		s.logger.Warn("No shipping tier matched, shipping priced at zero",
			zap.String("zone", req.ShippingZone))
	}

	order := &models.Order{
		CustomerID:      req.CustomerID,
		CompanyID:       req.CompanyID,
		Status:          models.OrderStatusPending,
		Subtotal:        breakdown.Subtotal,
		ShippingCost:    breakdown.ShippingCost,
		TaxAmount:       breakdown.TaxAmount,
		DiscountAmount:  breakdown.DiscountAmount,
		Total:           breakdown.Total,
		ShippingZone:    req.ShippingZone,
		Locale:          req.Locale,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  req.IdempotencyKey,
	}

	if err := s.insertOrder(ctx, order, items); err != nil {
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			existing, ferr := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if ferr == nil && existing != nil {
				return s.details(ctx, existing)
			}
		}
		util.OrdersFailedTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, util.SpanError(span, err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("protocol", order.Protocol),
		zap.String("total", order.Total.StringFixed(2)))

	s.publishOrderCreated(ctx, order, items)
	return &OrderDetails{Order: order, Items: items}, nil
}

// buildItems resolves the requested lines against snap, snapshotting unit
// prices. Configuration components come first, in display order.
func (s *OrderService) buildItems(req *CreateOrderRequest, snap *catalog.Snapshot) ([]models.OrderItem, error) {
	var items []models.OrderItem

	if len(req.Configuration) > 0 {
		priced, err := s.resolver.Validate(req.Configuration, snap)
		if err != nil {
			return nil, err
		}
		for _, w := range priced.Warnings {
			if w.Kind == compat.KindOutOfStock {
				c, _ := snap.Component(w.ComponentID)
				return nil, &apperr.OutOfStockError{ComponentID: c.ID, Requested: 1, Available: c.StockQuantity}
			}
		}
		for _, c := range priced.Components {
			items = append(items, models.OrderItem{ComponentID: c.ID, Quantity: 1})
		}
	}

	for i, it := range req.Items {
		c, ok := snap.Component(it.ComponentID)
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("items[%d].component_id", i), "component %d not found", it.ComponentID)
		}
		if !c.IsActive {
			return nil, apperr.Validation(fmt.Sprintf("items[%d].component_id", i), "component %d is not available", it.ComponentID)
		}
		items = append(items, models.OrderItem{ComponentID: c.ID, Quantity: it.Quantity})
	}

	for _, line := range store.AggregateStock(items) {
		c, _ := snap.Component(line.ComponentID)
		if line.Quantity > maxComponentQuantity {
			return nil, apperr.Validation("items",
				"component %d: %d units exceed the limit of %d", c.ID, line.Quantity, maxComponentQuantity)
		}
		if c.StockQuantity < line.Quantity {
			return nil, &apperr.OutOfStockError{
				ComponentID: c.ID,
				Requested:   line.Quantity,
				Available:   c.StockQuantity,
			}
		}
	}

	for i := range items {
		c, _ := snap.Component(items[i].ComponentID)
		items[i].Position = i + 1
		items[i].UnitPrice = c.Price
		items[i].LineSubtotal = money.Round(c.Price.Mul(decimal.NewFromInt(int64(items[i].Quantity))))
	}
	return items, nil
}

// insertOrder draws a protocol and inserts the order, drawing again when a
// concurrent insert took the same protocol.
func (s *OrderService) insertOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		code, err := s.protocols.Generate(ctx, protocol.KindOrder)
		if err != nil {
			return err
		}
		order.Protocol = code

		err = s.store.CreateOrder(ctx, order, items)
		if errors.Is(err, store.ErrDuplicateProtocol) {
			util.ProtocolCollisionsTotal.WithLabelValues(string(protocol.KindOrder)).Inc()
			s.logger.Warn("Protocol taken at insert, retrying", zap.String("protocol", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	}
	return apperr.ErrProtocolGenerationFailed
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, order)
}

func (s *OrderService) details(ctx context.Context, order *models.Order) (*OrderDetails, error) {
	items, err := s.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &OrderDetails{Order: order, Items: items}, nil
}

// TransitionOrder applies req.Event under the order's row lock. Guards and
// side effects run inside the same transaction, so a failed stock
// reservation leaves both the order and the stock untouched.
func (s *OrderService) TransitionOrder(ctx context.Context, orderID int64, req *TransitionOrderRequest) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TransitionOrder")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req.TrackingCode = strings.TrimSpace(req.TrackingCode)

	start := time.Now()
	var (
		from     models.OrderStatus
		effect   lifecycle.OrderEffect
		captured []models.OrderItem
	)
	order, err := s.store.MutateOrder(ctx, orderID, func(ctx context.Context, o *models.Order, items []models.OrderItem, stock store.StockReserver) error {
		tr, err := lifecycle.NextOrder(o.Status, req.Event)
		if err != nil {
			return err
		}
		from, effect, captured = o.Status, tr.Effect, items

		if tr.Guard == lifecycle.GuardTrackingCode {
			code := req.TrackingCode
			if code == "" {
				code = o.TrackingCode
			}
			if code == "" {
				return apperr.Validation("tracking_code", "required to dispatch")
			}
			o.TrackingCode = code
		}

		now := s.clock.Now()
		switch tr.Effect {
		case lifecycle.EffectSetPaidAt:
			o.PaidAt = &now
		case lifecycle.EffectReserveStock:
			if err := stock.ReserveStock(ctx, items); err != nil {
				return err
			}
		case lifecycle.EffectSetShippedAt:
			o.ShippedAt = &now
		case lifecycle.EffectSetDeliveredAt:
			o.DeliveredAt = &now
		case lifecycle.EffectReleaseStock:
			if err := stock.ReleaseStock(ctx, items); err != nil {
				return err
			}
		}
		if tr.To == models.OrderStatusCancelled {
			o.CancelledAt = &now
		}

		o.Status = tr.To
		return nil
	})

	if req.Event == models.OrderEventBeginFulfillment {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
		if errors.Is(err, apperr.ErrOutOfStock) {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		}
	}
	util.OrderTransitionsTotal.WithLabelValues(orderEventLabel(req.Event), resultLabel(err)).Inc()
	if err != nil {
		s.logger.Info("Order transition rejected",
			zap.Int64("order_id", orderID),
			zap.String("event", string(req.Event)),
			zap.Error(err))
		return nil, util.SpanError(span, err)
	}

	if effect == lifecycle.EffectReserveStock || effect == lifecycle.EffectReleaseStock {
		s.catalog.Invalidate(ctx)
	}

	s.logger.Info("Order transitioned",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
		zap.String("event", string(req.Event)))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged, s.clock.Now()),
		OrderID:   order.ID,
		Protocol:  order.Protocol,
		From:      from,
		To:        order.Status,
		Event:     req.Event,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return &OrderDetails{Order: order, Items: captured}, nil
}

// orderEventLabel keeps metric label values to the known events
func orderEventLabel(event models.OrderEvent) string {
	if !lifecycle.ValidOrderEvent(event) {
		return unknownEventLabel
	}
	return string(event)
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) {
	data := make([]models.OrderItemData, len(items))
	for i, it := range items {
		data[i] = models.OrderItemData{
			ComponentID: it.ComponentID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated, s.clock.Now()),
		OrderID:    order.ID,
		Protocol:   order.Protocol,
		CustomerID: order.CustomerID,
		CompanyID:  order.CompanyID,
		Total:      order.Total,
		Items:      data,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}
