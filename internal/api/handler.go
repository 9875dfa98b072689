package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"pcstore-service/internal/compat"
	"pcstore-service/internal/models"
	"pcstore-service/internal/service"
	"pcstore-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	configs *service.ConfigurationService
	orders  *service.OrderService
	tickets *service.TicketService
	checks  map[string]Pinger
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(
	configs *service.ConfigurationService,
	orders *service.OrderService,
	tickets *service.TicketService,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		configs: configs,
		orders:  orders,
		tickets: tickets,
		checks:  checks,
		logger:  util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/components", h.listComponents)
		v1.POST("/configurations/validate", h.validateConfiguration)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/transitions", h.transitionOrder)

		v1.POST("/tickets", h.createTicket)
		v1.GET("/tickets/:id", h.getTicket)
		v1.POST("/tickets/:id/transitions", h.transitionTicket)
		v1.PATCH("/tickets/:id/priority", h.setTicketPriority)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := gin.H{}
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listComponents returns the catalog of active components
func (h *Handler) listComponents(c *gin.Context) {
	view, err := h.configs.ListCatalog(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type validateConfigurationRequest struct {
	Selection compat.Selection `json:"selection"`
}

// validateConfiguration checks and prices a component selection
func (h *Handler) validateConfiguration(c *gin.Context) {
	var req validateConfigurationRequest
	if !bindJSON(c, &req) {
		return
	}

	priced, err := h.configs.Validate(c.Request.Context(), req.Selection)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, priced)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// transitionOrder applies a lifecycle event to an order
func (h *Handler) transitionOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.TransitionOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.TransitionOrder(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// createTicket opens a service ticket
func (h *Handler) createTicket(c *gin.Context) {
	var req service.CreateTicketRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.tickets.CreateTicket(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

// getTicket handles get ticket by ID
func (h *Handler) getTicket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ticket, err := h.tickets.GetTicket(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// transitionTicket applies a lifecycle event and/or findings to a ticket
func (h *Handler) transitionTicket(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.TransitionTicketRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.tickets.TransitionTicket(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

type setPriorityRequest struct {
	Priority models.TicketPriority `json:"priority"`
}

// setTicketPriority changes a ticket's priority
func (h *Handler) setTicketPriority(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req setPriorityRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.tickets.SetTicketPriority(c.Request.Context(), id, req.Priority)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ID",
		})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
