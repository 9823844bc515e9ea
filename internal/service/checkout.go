package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"marketplace-checkout/internal/models"
	"marketplace-checkout/internal/storage"
	"marketplace-checkout/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutStore is the persistence surface the fan-out engine needs. All
// writes go through WithinTx so the whole checkout is one atomic unit.
type CheckoutStore interface {
	GetAddressByID(ctx context.Context, id int64) (*models.Address, error)
	FindOpenCart(ctx context.Context, customerID int64) (*models.Cart, error)
	GetCartItemsByIDs(ctx context.Context, cartID int64, ids []int64) ([]models.CartItem, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error)
	WithinTx(ctx context.Context, fn func(tx storage.TxOps) error) error
}

// OrderEventPublisher receives fire-and-forget order notifications after
// the checkout transaction commits.
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// IdempotencyGuard fences duplicate checkout submissions.
type IdempotencyGuard interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// CheckoutRequest is one checkout submission: a selection of the caller's
// open cart, one address, one payment method, an optional promo code and
// optional per-item notes keyed by cart item id.
type CheckoutRequest struct {
	CustomerID      int64
	AddressID       int64
	PaymentMethodID int64
	CartItemIDs     []int64
	ItemNotes       map[int64]string
	PromoCode       string
	IdempotencyKey  string
}

// CheckoutService is the order fan-out engine: it splits one cart selection
// into one order per store, debits stock, and retires the consumed cart
// items as a single all-or-nothing unit.
type CheckoutService struct {
	store       CheckoutStore
	events      OrderEventPublisher
	idempotency IdempotencyGuard

	orderExpiry    time.Duration
	idempotencyTTL time.Duration
	shippingCost   int64

	logger *zap.Logger
	now    func() time.Time
}

// NewCheckoutService creates a new checkout service. events and idempotency
// may be nil.
func NewCheckoutService(
	store CheckoutStore,
	events OrderEventPublisher,
	idempotency IdempotencyGuard,
	orderExpiry time.Duration,
	idempotencyTTL time.Duration,
	shippingCost int64,
) *CheckoutService {
	return &CheckoutService{
		store:          store,
		events:         events,
		idempotency:    idempotency,
		orderExpiry:    orderExpiry,
		idempotencyTTL: idempotencyTTL,
		shippingCost:   shippingCost,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// Checkout runs the fan-out. Either every order is created, every stock row
// debited, every consumed cart item deleted, or nothing happened at all.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if s.idempotency != nil && req.IdempotencyKey != "" {
		claimed, err := s.idempotency.ClaimIdempotencyKey(ctx, req.IdempotencyKey, s.idempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !claimed {
			util.CheckoutsFailedTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrDuplicateCheckout
		}
	}

	orders, err := s.checkout(ctx, req)
	if err != nil {
		if s.idempotency != nil && req.IdempotencyKey != "" {
			if relErr := s.idempotency.ReleaseIdempotencyKey(ctx, req.IdempotencyKey); relErr != nil {
				s.logger.Error("Failed to release idempotency key",
					zap.String("key", req.IdempotencyKey),
					zap.Error(relErr))
			}
		}
		return nil, err
	}
	return orders, nil
}

func (s *CheckoutService) checkout(ctx context.Context, req *CheckoutRequest) ([]models.Order, error) {
	address, err := s.store.GetAddressByID(ctx, req.AddressID)
	if err != nil {
		return nil, err
	}
	if address == nil || address.CustomerID != req.CustomerID {
		util.CheckoutsFailedTotal.WithLabelValues("bad_address").Inc()
		return nil, ErrAddressNotFound
	}

	cart, err := s.store.FindOpenCart(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		util.CheckoutsFailedTotal.WithLabelValues("empty_selection").Inc()
		return nil, ErrNothingToCheckout
	}

	items, err := s.store.GetCartItemsByIDs(ctx, cart.ID, req.CartItemIDs)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_selection").Inc()
		return nil, ErrNothingToCheckout
	}

	products, err := s.loadProducts(ctx, items)
	if err != nil {
		return nil, err
	}

	groups := groupByStore(items)

	var promo *models.PromoCode
	if req.PromoCode != "" {
		promo, err = s.validatePromo(ctx, req.PromoCode, groups)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	orders := make([]models.Order, 0, len(groups))

	err = s.store.WithinTx(ctx, func(tx storage.TxOps) error {
		promoRedeemed := false

		for _, group := range groups {
			order := s.buildOrder(req, group, products, promo, now)

			if err := tx.CreateOrder(ctx, order); err != nil {
				return fmt.Errorf("create order for store %d: %w", group.storeID, err)
			}

			for i := range order.Items {
				order.Items[i].OrderID = order.ID
				if err := tx.CreateOrderItem(ctx, &order.Items[i]); err != nil {
					return fmt.Errorf("create order item: %w", err)
				}
			}

			for _, item := range group.items {
				if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					if errors.Is(err, storage.ErrInsufficientStock) {
						util.StockConflictsTotal.Inc()
						util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
						return fmt.Errorf("product %d: %w", item.ProductID, ErrInsufficientStock)
					}
					return err
				}
			}

			if order.DiscountTotal > 0 {
				promoRedeemed = true
			}

			orders = append(orders, *order)
		}

		if promo != nil && promoRedeemed {
			if err := tx.RedeemPromo(ctx, promo.ID); err != nil {
				if errors.Is(err, storage.ErrPromoExhausted) {
					util.CheckoutsFailedTotal.WithLabelValues("promo_exhausted").Inc()
					return &PromoRejectedError{Rejection: Rejection{
						Reason:  ReasonQuotaExhausted,
						Message: "promo code quota has been used up",
					}}
				}
				return err
			}
		}

		itemIDs := make([]int64, len(items))
		for i, item := range items {
			itemIDs[i] = item.ID
		}
		if err := tx.DeleteCartItems(ctx, itemIDs); err != nil {
			return fmt.Errorf("retire cart items: %w", err)
		}

		remaining, err := tx.CountCartItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.ConvertCart(ctx, cart.ID, now); err != nil {
				return fmt.Errorf("convert cart: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	util.CheckoutsTotal.Inc()
	util.OrdersCreatedTotal.Add(float64(len(orders)))
	s.logger.Info("Checkout completed",
		zap.Int64("customer_id", req.CustomerID),
		zap.Int("orders", len(orders)))

	s.publishOrderPlaced(ctx, orders)
	return orders, nil
}

// loadProducts resolves every selected item's product. A dangling product
// reference is an invariant violation, fatal to this checkout attempt.
func (s *CheckoutService) loadProducts(ctx context.Context, items []models.CartItem) (map[int64]*models.Product, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, item := range items {
		if byID[item.ProductID] == nil {
			util.CheckoutsFailedTotal.WithLabelValues("dangling_product").Inc()
			return nil, fmt.Errorf("cart item %d references missing product %d", item.ID, item.ProductID)
		}
	}
	return byID, nil
}

// storeGroup is one store's slice of the selection.
type storeGroup struct {
	storeID int64
	items   []models.CartItem
}

func (g *storeGroup) subtotal() int64 {
	var sum int64
	for _, item := range g.items {
		sum += item.UnitPrice * int64(item.Quantity)
	}
	return sum
}

// groupByStore partitions items by store in ascending store id order so
// numbering and totals are reproducible.
func groupByStore(items []models.CartItem) []storeGroup {
	byStore := make(map[int64][]models.CartItem)
	for _, item := range items {
		byStore[item.StoreID] = append(byStore[item.StoreID], item)
	}

	storeIDs := make([]int64, 0, len(byStore))
	for id := range byStore {
		storeIDs = append(storeIDs, id)
	}
	sort.Slice(storeIDs, func(i, j int) bool { return storeIDs[i] < storeIDs[j] })

	groups := make([]storeGroup, 0, len(storeIDs))
	for _, id := range storeIDs {
		groups = append(groups, storeGroup{storeID: id, items: byStore[id]})
	}
	return groups
}

// validatePromo quotes the promo against the selection and surfaces a
// rejection as a typed error. The authoritative redemption still happens
// inside the transaction.
func (s *CheckoutService) validatePromo(ctx context.Context, code string, groups []storeGroup) (*models.PromoCode, error) {
	promo, err := s.store.GetPromoByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	lines := make([]CandidateLine, 0, len(groups))
	for i := range groups {
		lines = append(lines, CandidateLine{StoreID: groups[i].storeID, Subtotal: groups[i].subtotal()})
	}

	if _, rejection := EvaluatePromo(promo, lines, s.now()); rejection != nil {
		util.PromoRejectionsTotal.WithLabelValues(rejection.Reason).Inc()
		util.CheckoutsFailedTotal.WithLabelValues("promo_rejected").Inc()
		return nil, &PromoRejectedError{Rejection: *rejection}
	}
	return promo, nil
}

// buildOrder assembles one store's order and items. The discount is computed
// from this group's own subtotal; a discount never spans groups.
func (s *CheckoutService) buildOrder(
	req *CheckoutRequest,
	group storeGroup,
	products map[int64]*models.Product,
	promo *models.PromoCode,
	now time.Time,
) *models.Order {
	subtotal := group.subtotal()

	var weightTotal int64
	orderItems := make([]models.OrderItem, 0, len(group.items))
	for _, item := range group.items {
		product := products[item.ProductID]
		weightTotal += product.Weight * int64(item.Quantity)

		note := item.Note
		if n, ok := req.ItemNotes[item.ID]; ok {
			note = n
		}

		orderItems = append(orderItems, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.UnitPrice * int64(item.Quantity),
			Note:        note,
		})
	}

	var discount int64
	if promo != nil && (promo.StoreID == nil || *promo.StoreID == group.storeID) {
		discount = DiscountAmount(promo, subtotal)
	}

	order := &models.Order{
		CustomerID:      req.CustomerID,
		StoreID:         group.storeID,
		AddressID:       req.AddressID,
		PaymentMethodID: req.PaymentMethodID,
		OrderNumber:     newOrderNumber(now),
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusUnpaid,
		Subtotal:        subtotal,
		DiscountTotal:   discount,
		ShippingCost:    s.shippingCost,
		WeightTotal:     weightTotal,
		GrandTotal:      subtotal - discount + s.shippingCost,
		OrderedAt:       now,
		ExpiresAt:       now.Add(s.orderExpiry),
		Items:           orderItems,
	}
	return order
}

// newOrderNumber builds a globally unique order number: a date for humans,
// a uuid fragment for collision freedom under concurrent checkouts.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("INV/%s/%s", now.Format("20060102"),
		strings.ToUpper(uuid.NewString()[:8]))
}

// publishOrderPlaced emits one event per created order, fire and forget.
func (s *CheckoutService) publishOrderPlaced(ctx context.Context, orders []models.Order) {
	if s.events == nil {
		return
	}

	for _, order := range orders {
		itemData := make([]models.OrderItemData, 0, len(order.Items))
		for _, item := range order.Items {
			itemData = append(itemData, models.OrderItemData{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			})
		}

		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: s.now(),
			},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			StoreID:     order.StoreID,
			GrandTotal:  order.GrandTotal,
			ExpiresAt:   order.ExpiresAt,
			Items:       itemData,
		}

		if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}
}
