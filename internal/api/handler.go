package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace-checkout/internal/service"
	"marketplace-checkout/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	catalogService  *service.CatalogService
	cartService     *service.CartService
	promoService    *service.PromoService
	checkoutService *service.CheckoutService
	orderService    *service.OrderQueryService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalogService *service.CatalogService,
	cartService *service.CartService,
	promoService *service.PromoService,
	checkoutService *service.CheckoutService,
	orderService *service.OrderQueryService,
) *Handler {
	return &Handler{
		catalogService:  catalogService,
		cartService:     cartService,
		promoService:    promoService,
		checkoutService: checkoutService,
		orderService:    orderService,
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
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)
		v1.POST("/promo/evaluate", h.evaluatePromo)
		v1.POST("/checkout", h.checkout)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
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

// listProducts lists products visible to the caller. Anonymous callers omit
// customer_id and see the unfiltered active catalog.
func (h *Handler) listProducts(c *gin.Context) {
	customerID, _ := strconv.ParseInt(c.Query("customer_id"), 10, 64)
	authenticated := customerID > 0

	products, err := h.catalogService.ListVisibleProducts(c.Request.Context(), customerID, authenticated)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getCart returns the caller's open cart with items
func (h *Handler) getCart(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Query("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	cart, items, err := h.cartService.GetCart(c.Request.Context(), customerID)
	if err != nil {
		writeError(c, err)
		return
	}
	if cart == nil {
		c.JSON(http.StatusOK, gin.H{"cart": nil, "items": []struct{}{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart, "items": items})
}

type addCartItemRequest struct {
	CustomerID int64  `json:"customer_id" binding:"required"`
	ProductID  int64  `json:"product_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	Note       string `json:"note"`
}

// addCartItem handles add-to-cart
func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, clamped, err := h.cartService.AddItem(c.Request.Context(),
		req.CustomerID, req.ProductID, req.Quantity, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item, "clamped": clamped})
}

type updateCartItemRequest struct {
	CustomerID int64 `json:"customer_id" binding:"required"`
	Quantity   int   `json:"quantity" binding:"required,min=1"`
}

// updateCartItem handles quantity updates
func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.cartService.UpdateItem(c.Request.Context(), req.CustomerID, itemID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// removeCartItem handles item removal
func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return
	}

	customerID, err := strconv.ParseInt(c.Query("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	if err := h.cartService.RemoveItem(c.Request.Context(), customerID, itemID); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type evaluatePromoRequest struct {
	CustomerID int64  `json:"customer_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// evaluatePromo quotes a promo code against the caller's open cart. A
// rejection is a 200 with the reason: it is an expected outcome the UI
// renders, not a failure.
func (h *Handler) evaluatePromo(c *gin.Context) {
	var req evaluatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	_, items, err := h.cartService.GetCart(c.Request.Context(), req.CustomerID)
	if err != nil {
		writeError(c, err)
		return
	}

	subtotals := make(map[int64]int64)
	for _, item := range items {
		subtotals[item.StoreID] += item.Subtotal
	}
	lines := make([]service.CandidateLine, 0, len(subtotals))
	for storeID, subtotal := range subtotals {
		lines = append(lines, service.CandidateLine{StoreID: storeID, Subtotal: subtotal})
	}

	eval, rejection, err := h.promoService.Evaluate(c.Request.Context(), req.Code, lines, time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	if rejection != nil {
		c.JSON(http.StatusOK, gin.H{"rejection": rejection})
		return
	}

	c.JSON(http.StatusOK, gin.H{"evaluation": eval})
}

type checkoutRequest struct {
	CustomerID      int64            `json:"customer_id" binding:"required"`
	AddressID       int64            `json:"address_id" binding:"required"`
	PaymentMethodID int64            `json:"payment_method_id" binding:"required"`
	CartItemIDs     []int64          `json:"cart_item_ids" binding:"required,min=1"`
	ItemNotes       map[int64]string `json:"item_notes"`
	PromoCode       string           `json:"promo_code"`
}

// checkout handles the order fan-out
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	orders, err := h.checkoutService.Checkout(c.Request.Context(), &service.CheckoutRequest{
		CustomerID:      req.CustomerID,
		AddressID:       req.AddressID,
		PaymentMethodID: req.PaymentMethodID,
		CartItemIDs:     req.CartItemIDs,
		ItemNotes:       req.ItemNotes,
		PromoCode:       req.PromoCode,
		IdempotencyKey:  c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"orders": orders})
}

// listOrders returns the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Query("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	orders, err := h.orderService.ListOrders(c.Request.Context(), customerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder returns one order with items
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	customerID, err := strconv.ParseInt(c.Query("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), customerID, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// writeError maps service outcomes to HTTP statuses. Business rejections
// carry their reason so the UI can render specific copy; consistency
// conflicts are 409 and retryable.
func writeError(c *gin.Context, err error) {
	var promoErr *service.PromoRejectedError
	if errors.As(err, &promoErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     promoErr.Rejection.Message,
			"reason":    promoErr.Rejection.Reason,
			"retryable": false,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrAddressNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Address not found"})
	case errors.Is(err, service.ErrNothingToCheckout):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Nothing to checkout", "retryable": false})
	case errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrNotVisible),
		errors.Is(err, service.ErrOutOfStock):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "retryable": false})
	case errors.Is(err, service.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Stock changed while checking out, re-check your cart and try again",
			"retryable": true,
		})
	case errors.Is(err, service.ErrDuplicateCheckout):
		c.JSON(http.StatusConflict, gin.H{"error": "Checkout already in progress", "retryable": false})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
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
