// Package lifecycle holds the order and ticket state machines as plain
// transition tables. Side effects (stock, timestamps) are applied by the
// service layer inside the entity's transaction.
package lifecycle

import (
	"pcstore-service/internal/apperr"
	"pcstore-service/internal/models"
)

// OrderEffect names the side effect a transition requires
type OrderEffect int

// Order transition side effects
const (
	EffectNone OrderEffect = iota
	EffectSetPaidAt
	EffectReserveStock
	EffectSetShippedAt
	EffectSetDeliveredAt
	EffectReleaseStock
)

// OrderGuard names the precondition a transition checks before applying
type OrderGuard int

// Order transition guards
const (
	GuardNone OrderGuard = iota
	GuardStockReservable
	GuardTrackingCode
)

// OrderTransition is one row of the order table
type OrderTransition struct {
	From   models.OrderStatus
	Event  models.OrderEvent
	To     models.OrderStatus
	Guard  OrderGuard
	Effect OrderEffect
}

type orderKey struct {
	from  models.OrderStatus
	event models.OrderEvent
}

// OrderTransitions is the complete order state machine
var OrderTransitions = []OrderTransition{
	{models.OrderStatusPending, models.OrderEventConfirmPayment, models.OrderStatusPaid, GuardNone, EffectSetPaidAt},
	{models.OrderStatusPaid, models.OrderEventBeginFulfillment, models.OrderStatusInPreparation, GuardStockReservable, EffectReserveStock},
	{models.OrderStatusInPreparation, models.OrderEventDispatch, models.OrderStatusShipped, GuardTrackingCode, EffectSetShippedAt},
	{models.OrderStatusShipped, models.OrderEventConfirmDelivery, models.OrderStatusDelivered, GuardNone, EffectSetDeliveredAt},
	{models.OrderStatusPending, models.OrderEventCancel, models.OrderStatusCancelled, GuardNone, EffectNone},
	{models.OrderStatusPaid, models.OrderEventCancel, models.OrderStatusCancelled, GuardNone, EffectNone},
	{models.OrderStatusInPreparation, models.OrderEventCancel, models.OrderStatusCancelled, GuardNone, EffectReleaseStock},
}

var orderIndex = indexOrderTransitions(OrderTransitions)

func indexOrderTransitions(rows []OrderTransition) map[orderKey]OrderTransition {
	idx := make(map[orderKey]OrderTransition, len(rows))
	for _, r := range rows {
		idx[orderKey{r.From, r.Event}] = r
	}
	return idx
}

// NextOrder looks up the transition for event from status
func NextOrder(from models.OrderStatus, event models.OrderEvent) (OrderTransition, error) {
	t, ok := orderIndex[orderKey{from, event}]
	if !ok {
		return OrderTransition{}, &apperr.InvalidTransitionError{
			Entity: "order",
			From:   string(from),
			Event:  string(event),
		}
	}
	return t, nil
}

// OrderTerminal reports whether no event is accepted from status
func OrderTerminal(status models.OrderStatus) bool {
	for _, r := range OrderTransitions {
		if r.From == status {
			return false
		}
	}
	return true
}

// ValidOrderEvent reports whether event is known to the order table
func ValidOrderEvent(event models.OrderEvent) bool {
	for _, r := range OrderTransitions {
		if r.Event == event {
			return true
		}
	}
	return false
}
