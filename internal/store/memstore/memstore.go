// Package memstore keeps the store contract in memory. It backs service and
// API tests and local runs without Postgres.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pcstore-service/internal/apperr"
	"pcstore-service/internal/models"
	"pcstore-service/internal/protocol"
	"pcstore-service/internal/store"
)

// Store is a mutex-guarded in-memory store. Mutations run under the write
// lock, so they are serialized the same way row locks serialize them in SQL.
type Store struct {
	mu sync.RWMutex

	types      map[string]models.ComponentType
	components map[int64]models.Component

	orders      map[int64]models.Order
	orderItems  map[int64][]models.OrderItem
	byProtocol  map[string]int64
	byIdemKey   map[string]int64
	tickets     map[int64]models.ServiceTicket
	ticketProto map[string]int64
	processed   map[string]string

	nextOrderID  int64
	nextItemID   int64
	nextTicketID int64
	now          func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		types:       make(map[string]models.ComponentType),
		components:  make(map[int64]models.Component),
		orders:      make(map[int64]models.Order),
		orderItems:  make(map[int64][]models.OrderItem),
		byProtocol:  make(map[string]int64),
		byIdemKey:   make(map[string]int64),
		tickets:     make(map[int64]models.ServiceTicket),
		ticketProto: make(map[string]int64),
		processed:   make(map[string]string),
		now:         time.Now,
	}
}

// AddComponentType seeds a component type
func (s *Store) AddComponentType(t models.ComponentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[t.Code] = t
}

// AddComponent seeds or replaces a component
func (s *Store) AddComponent(c models.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Tags == nil {
		c.Tags = models.Tags{}
	}
	s.components[c.ID] = c
}

// Stock returns the current stock of a component
func (s *Store) Stock(id int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.components[id].StockQuantity
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// ListComponentTypes returns every component type ordered like the SQL store
func (s *Store) ListComponentTypes(ctx context.Context) ([]models.ComponentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ComponentType, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// ListComponents returns every component ordered by id
func (s *Store) ListComponents(ctx context.Context) ([]models.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Component, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetComponentsByIDs returns the known components among ids
func (s *Store) GetComponentsByIDs(ctx context.Context, ids []int64) ([]models.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Component, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if c, ok := s.components[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateOrder stores an order and its items, enforcing the protocol and
// idempotency key unique constraints.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byProtocol[order.Protocol]; taken {
		return store.ErrDuplicateProtocol
	}
	if order.IdempotencyKey != "" {
		if _, taken := s.byIdemKey[order.IdempotencyKey]; taken {
			return store.ErrDuplicateIdempotencyKey
		}
	}

	s.nextOrderID++
	now := s.now()
	order.ID = s.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now

	stored := make([]models.OrderItem, len(items))
	for i := range items {
		s.nextItemID++
		items[i].ID = s.nextItemID
		items[i].OrderID = order.ID
		stored[i] = items[i]
	}

	s.orders[order.ID] = *order
	s.orderItems[order.ID] = stored
	s.byProtocol[order.Protocol] = order.ID
	if order.IdempotencyKey != "" {
		s.byIdemKey[order.IdempotencyKey] = order.ID
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return &o, nil
}

// GetOrderByIdempotencyKey returns nil, nil when no order uses key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdemKey[key]
	if !ok {
		return nil, nil
	}
	o := s.orders[id]
	return &o, nil
}

// GetOrderItemsByOrderID returns the items of an order by position
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OrderItem(nil), s.orderItems[orderID]...), nil
}

// MutateOrder applies fn to a copy of the order. The copy and any staged
// stock changes are committed only when fn succeeds.
func (s *Store) MutateOrder(ctx context.Context, id int64, fn store.OrderMutation) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	items := append([]models.OrderItem(nil), s.orderItems[id]...)

	stock := &stagedStock{s: s, staged: make(map[int64]int)}
	if err := fn(ctx, &o, items, stock); err != nil {
		return nil, err
	}

	for cid, qty := range stock.staged {
		c := s.components[cid]
		c.StockQuantity = qty
		c.UpdatedAt = s.now()
		s.components[cid] = c
	}
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return &o, nil
}

// stagedStock records stock changes until the mutation commits
type stagedStock struct {
	s      *Store
	staged map[int64]int
}

func (st *stagedStock) current(id int64) (int, bool) {
	if q, ok := st.staged[id]; ok {
		return q, true
	}
	c, ok := st.s.components[id]
	return c.StockQuantity, ok
}

func (st *stagedStock) ReserveStock(ctx context.Context, items []models.OrderItem) error {
	for _, line := range store.AggregateStock(items) {
		if line.Quantity <= 0 {
			return fmt.Errorf("failed to reserve stock: invalid quantity %d for component %d", line.Quantity, line.ComponentID)
		}
		available, ok := st.current(line.ComponentID)
		if !ok {
			return fmt.Errorf("failed to reserve stock: component %d not found", line.ComponentID)
		}
		if available < line.Quantity {
			return &apperr.OutOfStockError{
				ComponentID: line.ComponentID,
				Requested:   line.Quantity,
				Available:   available,
			}
		}
		st.staged[line.ComponentID] = available - line.Quantity
	}
	return nil
}

func (st *stagedStock) ReleaseStock(ctx context.Context, items []models.OrderItem) error {
	for _, line := range store.AggregateStock(items) {
		available, ok := st.current(line.ComponentID)
		if !ok {
			return fmt.Errorf("failed to release stock: component %d not found", line.ComponentID)
		}
		st.staged[line.ComponentID] = available + line.Quantity
	}
	return nil
}

// ProtocolExists reports whether code is already used
func (s *Store) ProtocolExists(ctx context.Context, kind protocol.Kind, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch kind {
	case protocol.KindOrder:
		_, ok := s.byProtocol[code]
		return ok, nil
	case protocol.KindTicket:
		_, ok := s.ticketProto[code]
		return ok, nil
	}
	return false, fmt.Errorf("unknown protocol kind %q", kind)
}

// HighestSequence returns the largest sequence issued for kind on day
func (s *Store) HighestSequence(ctx context.Context, kind protocol.Kind, day string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := s.byProtocol
	if kind == protocol.KindTicket {
		codes = s.ticketProto
	}
	var highest int64
	for code := range codes {
		if n, ok := protocol.ParseSequence(kind, day, code); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// CreateTicket stores a new service ticket
func (s *Store) CreateTicket(ctx context.Context, ticket *models.ServiceTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.ticketProto[ticket.Protocol]; taken {
		return store.ErrDuplicateProtocol
	}

	s.nextTicketID++
	now := s.now()
	ticket.ID = s.nextTicketID
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	s.tickets[ticket.ID] = *ticket
	s.ticketProto[ticket.Protocol] = ticket.ID
	return nil
}

// GetTicketByID retrieves a ticket by ID
func (s *Store) GetTicketByID(ctx context.Context, id int64) (*models.ServiceTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, apperr.NotFound("ticket", id)
	}
	return &t, nil
}

// MutateTicket applies fn to a copy of the ticket and stores it on success
func (s *Store) MutateTicket(ctx context.Context, id int64, fn func(t *models.ServiceTicket) error) (*models.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, apperr.NotFound("ticket", id)
	}
	if err := fn(&t); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return &t, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = eventType
	return nil
}
