package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pcstore-service/internal/catalog"
	"pcstore-service/internal/compat"
	"pcstore-service/internal/models"
	"pcstore-service/internal/pricing"
	"pcstore-service/internal/protocol"
	"pcstore-service/internal/store/memstore"
	"pcstore-service/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu             sync.Mutex
	ordersCreated  []*models.OrderCreatedEvent
	orderChanges   []*models.OrderStatusChangedEvent
	ticketsCreated []*models.TicketCreatedEvent
	ticketChanges  []*models.TicketStatusChangedEvent
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ordersCreated = append(p.ordersCreated, e)
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderChanges = append(p.orderChanges, e)
	return nil
}

func (p *recordingPublisher) PublishTicketCreated(_ context.Context, e *models.TicketCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticketsCreated = append(p.ticketsCreated, e)
	return nil
}

func (p *recordingPublisher) PublishTicketStatusChanged(_ context.Context, e *models.TicketStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticketChanges = append(p.ticketChanges, e)
	return nil
}

type harness struct {
	store     *memstore.Store
	catalog   *catalog.Catalog
	publisher *recordingPublisher
	configs   *ConfigurationService
	orders    *OrderService
	tickets   *TicketService
	payments  *PaymentHandler
}

// Component ids of the seeded catalog
const (
	cpuAM5     int64 = 1
	boardAM4   int64 = 2
	boardAM5   int64 = 3
	psu650     int64 = 4
	gpuNoStock int64 = 5
	ssd        int64 = 6
	oldCPU     int64 = 7
)

func newHarness(t *testing.T) *harness {
	t.Helper()

	ms := memstore.New()
	for _, ct := range []models.ComponentType{
		{Code: "cpu", Name: "Processor", IsRequired: true, SortOrder: 1},
		{Code: "motherboard", Name: "Motherboard", IsRequired: true, SortOrder: 2},
		{Code: "psu", Name: "Power supply", IsRequired: true, SortOrder: 3},
		{Code: "gpu", Name: "Graphics card", SortOrder: 4},
		{Code: "storage", Name: "Storage", SortOrder: 5},
	} {
		ms.AddComponentType(ct)
	}
	for _, c := range []models.Component{
		{ID: cpuAM5, TypeCode: "cpu", Name: "Ryzen 7", Price: dec("600.00"), StockQuantity: 10, IsActive: true, Tags: models.Tags{"socket": "AM5", "powerDraw": "120W"}},
		{ID: boardAM4, TypeCode: "motherboard", Name: "B450", Price: dec("150.00"), StockQuantity: 10, IsActive: true, Tags: models.Tags{"socket": "AM4"}},
		{ID: boardAM5, TypeCode: "motherboard", Name: "B650", Price: dec("300.00"), StockQuantity: 10, IsActive: true, Tags: models.Tags{"socket": "AM5"}},
		{ID: psu650, TypeCode: "psu", Name: "650W", Price: dec("100.00"), StockQuantity: 10, IsActive: true, Tags: models.Tags{"wattage": "650W"}},
		{ID: gpuNoStock, TypeCode: "gpu", Name: "RTX", Price: dec("900.00"), StockQuantity: 0, IsActive: true, Tags: models.Tags{"powerDraw": "300W"}},
		{ID: ssd, TypeCode: "storage", Name: "1TB SSD", Price: dec("49.99"), StockQuantity: 3, IsActive: true},
		{ID: oldCPU, TypeCode: "cpu", Name: "Athlon", Price: dec("80.00"), StockQuantity: 10, IsActive: false, Tags: models.Tags{"socket": "AM4"}},
	} {
		ms.AddComponent(c)
	}

	resolver, err := compat.NewResolver([]compat.Rule{
		{Name: "cpu-socket", Relation: compat.RelationEqual, TypeA: "cpu", KeyA: "socket", TypeB: "motherboard", KeyB: "socket"},
		{Name: "power-budget", Relation: compat.RelationSumLTE, KeyA: "powerDraw", TypeB: "psu", KeyB: "wattage"},
	})
	require.NoError(t, err)

	engine := pricing.NewEngine(
		pricing.TaxTable{Default: dec("0.10"), Rates: map[string]decimal.Decimal{"pt-PT": dec("0.20")}},
		pricing.NewShippingTable(map[string][]pricing.ShippingTier{
			"EU": {{MaxItems: 3, Cost: dec("25.00")}, {MaxItems: 0, Cost: dec("40.00")}},
		}),
	)

	clock := util.FixedClock{T: testNow}
	gen := protocol.NewGenerator(protocol.NewLocalSequencer(), ms, clock, protocol.DefaultMaxAttempts)
	cat := catalog.New(ms, nil, 0)
	pub := &recordingPublisher{}

	orders := NewOrderService(ms, cat, resolver, engine, gen, pub, clock)
	return &harness{
		store:     ms,
		catalog:   cat,
		publisher: pub,
		configs:   NewConfigurationService(cat, resolver),
		orders:    orders,
		tickets:   NewTicketService(ms, gen, pub, clock),
		payments:  NewPaymentHandler(ms, orders),
	}
}

func orderRequest(items ...OrderItemRequest) *CreateOrderRequest {
	return &CreateOrderRequest{
		CustomerID:      1,
		CompanyID:       1,
		Items:           items,
		ShippingAddress: "Rua Augusta 1, Lisboa",
		ShippingZone:    "EU",
		Locale:          "pt-PT",
	}
}
