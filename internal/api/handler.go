package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tanatos09/perfectbody/internal/models"
	"github.com/tanatos09/perfectbody/internal/service"
	"github.com/tanatos09/perfectbody/internal/session"
	"github.com/tanatos09/perfectbody/internal/store"
	"github.com/tanatos09/perfectbody/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	sessionCookie       = "session_id"
	sessionKey          = "sessionID"
	customerKey         = "customerID"
	sessionHeader       = "X-Session-ID"
	customerHeader      = "X-User-ID"
	sessionCookieMaxAge = 86400
)

// Handler contains HTTP handlers
type Handler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	catalog  *store.Store
	sessions session.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(carts *service.CartService, checkout *service.CheckoutService, catalog *store.Store, sessions session.Store) *Handler {
	return &Handler{
		carts:    carts,
		checkout: checkout,
		catalog:  catalog,
		sessions: sessions,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(sessionMiddleware())
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/cart", h.viewCart)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/items", h.addToCart)
		v1.PUT("/cart/items/:product_id", h.updateCart)
		v1.DELETE("/cart/items/:product_id", h.removeFromCart)

		v1.GET("/checkout/start", h.startOrderForm)
		v1.POST("/checkout/start", h.startOrder)
		v1.GET("/checkout/summary", h.orderSummary)
		v1.POST("/checkout/confirm", h.confirmOrder)

		v1.GET("/orders", h.myOrders)
		v1.GET("/orders/:id", h.orderDetail)
		v1.POST("/orders/:id/cancel", h.cancelOrder)

		v1.GET("/messages", h.drainMessages)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts returns the catalog.
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.GetProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct returns one product with its availability.
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"product": product}
	if product.IsService() {
		trainers, err := h.catalog.ApprovedTrainersForService(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		resp["available"] = len(trainers) > 0
		resp["trainers"] = trainers
	} else {
		resp["available"] = product.AvailableStock() > 0
		resp["available_stock"] = product.AvailableStock()
	}
	c.JSON(http.StatusOK, resp)
}

type addToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"omitempty,min=1"`
}

// addToCart handles cart additions
func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.carts.AddToCart(c.Request.Context(), sessionID(c), req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total_price": cart.Total()})
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

// updateCart rewrites a cart entry's quantity
func (h *Handler) updateCart(c *gin.Context) {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	var req updateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.carts.UpdateCart(c.Request.Context(), sessionID(c), productID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total_price": cart.Total()})
}

// removeFromCart deletes a cart entry
func (h *Handler) removeFromCart(c *gin.Context) {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	cart, err := h.carts.RemoveFromCart(c.Request.Context(), sessionID(c), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total_price": cart.Total()})
}

// viewCart returns the session cart
func (h *Handler) viewCart(c *gin.Context) {
	cart, err := h.carts.ViewCart(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart, "total_price": cart.Total()})
}

// clearCart empties the cart and releases its holds
func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.ClearCart(c.Request.Context(), sessionID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// startOrderForm returns prefill data for the checkout form
func (h *Handler) startOrderForm(c *gin.Context) {
	prefill, err := h.checkout.PrefillAddress(c.Request.Context(), customerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prefill": prefill, "guest": customerID(c) == nil})
}

// startOrder validates addresses and stages the order
func (h *Handler) startOrder(c *gin.Context) {
	var req service.StartOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	// Staging touches the cart, so the inactivity window applies here too.
	if expired, err := h.carts.ExpireIfInactive(c.Request.Context(), sessionID(c), time.Now()); err == nil && expired {
		h.respondError(c, models.ErrCartExpired)
		return
	}

	staged, err := h.checkout.StartOrder(c.Request.Context(), sessionID(c), customerID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"staged_order": staged})
}

// orderSummary returns the priced recap of the staged order
func (h *Handler) orderSummary(c *gin.Context) {
	summary, err := h.checkout.Summary(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// confirmOrder materializes the staged order
func (h *Handler) confirmOrder(c *gin.Context) {
	order, err := h.checkout.ConfirmOrder(c.Request.Context(), sessionID(c), customerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// myOrders lists the authenticated customer's orders
func (h *Handler) myOrders(c *gin.Context) {
	customer := customerID(c)
	if customer == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in to list your orders"})
		return
	}

	orders, err := h.checkout.MyOrders(c.Request.Context(), *customer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// orderDetail returns one order with its lines
func (h *Handler) orderDetail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, lines, err := h.checkout.OrderDetail(c.Request.Context(), sessionID(c), customerID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": lines})
}

// cancelOrder cancels a pending order owned by the caller
func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.checkout.CancelOrder(c.Request.Context(), sessionID(c), customerID(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// drainMessages pops queued flash messages for display
func (h *Handler) drainMessages(c *gin.Context) {
	messages, err := h.sessions.PopMessages(c.Request.Context(), sessionID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// respondError maps workflow failures to HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var stockErr *models.InsufficientStockError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": validationErr.Fields})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrOutOfStock),
		errors.Is(err, models.ErrServiceUnavailable),
		errors.Is(err, models.ErrOrderNotCancellable),
		errors.Is(err, models.ErrCartExpired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrEmptyCart),
		errors.Is(err, models.ErrOrderNotStaged),
		errors.Is(err, models.ErrMissingGuestEmail):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		util.GetLogger().Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func customerID(c *gin.Context) *int64 {
	if v, ok := c.Get(customerKey); ok {
		if id, ok := v.(int64); ok {
			return &id
		}
	}
	return nil
}

// sessionMiddleware resolves the visitor's session id from the cookie or
// header, minting one when absent, and picks up the authenticated customer
// id set by the auth layer in front of this service.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetHeader(sessionHeader)
		if sid == "" {
			if cookie, err := c.Cookie(sessionCookie); err == nil {
				sid = cookie
			}
		}
		if sid == "" {
			sid = uuid.New().String()
			c.SetCookie(sessionCookie, sid, sessionCookieMaxAge, "/", "", false, true)
		}
		c.Set(sessionKey, sid)

		if raw := c.GetHeader(customerHeader); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				c.Set(customerKey, id)
			}
		}

		c.Next()
	}
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
