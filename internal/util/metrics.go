package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConfigurationsValidatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "configurations_validated_total",
		Help: "Total number of configuration validations by outcome",
	}, []string{"outcome"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of order transitions by event and result",
	}, []string{"event", "result"})

	TicketsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "Total number of service tickets opened",
	})

	TicketTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_transitions_total",
		Help: "Total number of ticket transitions by event and result",
	}, []string{"event", "result"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of order fulfillment transitions including stock reservation",
		Buckets: prometheus.DefBuckets,
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	ProtocolCollisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protocol_collisions_total",
		Help: "Total number of protocol candidates rejected as already taken",
	}, []string{"kind"})

	ShippingTierMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_tier_misses_total",
		Help: "Orders priced with zero shipping because no tier matched",
	}, []string{"zone"})

	CatalogCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Catalog snapshots served from cache",
	})

	CatalogCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_misses_total",
		Help: "Catalog snapshots loaded from the store",
	})

	PaymentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_total",
		Help: "Total number of consumed payment events by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
