package models

import "time"

// Visibility scopes
const (
	VisibilityGlobal = "GLOBAL"
	VisibilityLocal  = "LOCAL"
)

// Product statuses
const (
	ProductStatusActive   = "ACTIVE"
	ProductStatusInactive = "INACTIVE"
)

// Product is a catalog snapshot row. Prices are in minor units. A nil Stock
// means unlimited inventory; a nil city/province/district means the product
// inherits its store's location.
type Product struct {
	ID              int64     `db:"id" json:"id"`
	StoreID         int64     `db:"store_id" json:"store_id"`
	Name            string    `db:"name" json:"name"`
	Status          string    `db:"status" json:"status"`
	Price           int64     `db:"price" json:"price"`
	SalePrice       *int64    `db:"sale_price" json:"sale_price,omitempty"`
	Stock           *int      `db:"stock" json:"stock,omitempty"`
	MinOrderQty     int       `db:"min_order_qty" json:"min_order_qty"`
	Weight          int64     `db:"weight" json:"weight"`
	VisibilityScope string    `db:"visibility_scope" json:"visibility_scope"`
	ProvinceID      *int64    `db:"province_id" json:"province_id,omitempty"`
	CityID          *int64    `db:"city_id" json:"city_id,omitempty"`
	DistrictID      *int64    `db:"district_id" json:"district_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// EffectivePrice is the unit price snapshotted into carts: the sale price
// when one is set, the regular price otherwise.
func (p *Product) EffectivePrice() int64 {
	if p.SalePrice != nil && *p.SalePrice < p.Price {
		return *p.SalePrice
	}
	return p.Price
}

// Store is a merchant. Its city/province double as the location fallback for
// products that omit their own.
type Store struct {
	ID         int64     `db:"id" json:"id"`
	OwnerID    int64     `db:"owner_id" json:"owner_id"`
	Name       string    `db:"name" json:"name"`
	ProvinceID *int64    `db:"province_id" json:"province_id,omitempty"`
	CityID     *int64    `db:"city_id" json:"city_id,omitempty"`
	Verified   bool      `db:"verified" json:"verified"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Cart statuses
const (
	CartStatusOpen      = "OPEN"
	CartStatusConverted = "CONVERTED"
	CartStatusExpired   = "EXPIRED"
)

// Cart holds a customer's open selection. At most one OPEN cart exists per
// customer; checkout flips it to CONVERTED only when it fully empties.
type Cart struct {
	ID           int64      `db:"id" json:"id"`
	CustomerID   int64      `db:"customer_id" json:"customer_id"`
	Status       string     `db:"status" json:"status"`
	CheckedOutAt *time.Time `db:"checked_out_at" json:"checked_out_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// CartItem carries the price snapshot taken when the item was added or last
// updated; checkout never re-reads the live product price. StoreID is
// denormalized from the product at insert time so fan-out can group without
// joins.
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	StoreID   int64     `db:"store_id" json:"store_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UnitPrice int64     `db:"unit_price" json:"unit_price"`
	Subtotal  int64     `db:"subtotal" json:"subtotal"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Discount types
const (
	DiscountTypeFixed   = "FIXED"
	DiscountTypePercent = "PERCENT"
)

// PromoCode is a promotional discount definition. A nil StoreID means the
// code is platform-wide. Used never exceeds Quota when Quota is set; the
// counter is advanced only by checkout's atomic redemption.
type PromoCode struct {
	ID             int64      `db:"id" json:"id"`
	StoreID        *int64     `db:"store_id" json:"store_id,omitempty"`
	Code           string     `db:"code" json:"code"`
	DiscountType   string     `db:"discount_type" json:"discount_type"`
	DiscountValue  int64      `db:"discount_value" json:"discount_value"`
	MinOrderAmount *int64     `db:"min_order_amount" json:"min_order_amount,omitempty"`
	MaxDiscount    *int64     `db:"max_discount" json:"max_discount,omitempty"`
	StartsAt       *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt         *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	Quota          *int       `db:"quota" json:"quota,omitempty"`
	Used           int        `db:"used" json:"used"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

// Payment statuses
const (
	PaymentStatusUnpaid   = "UNPAID"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusExpired  = "EXPIRED"
	PaymentStatusRefunded = "REFUNDED"
)

// Order is one store's slice of a checkout. GrandTotal is always
// Subtotal - DiscountTotal + ShippingCost.
type Order struct {
	ID              int64     `db:"id" json:"id"`
	CustomerID      int64     `db:"customer_id" json:"customer_id"`
	StoreID         int64     `db:"store_id" json:"store_id"`
	AddressID       int64     `db:"address_id" json:"address_id"`
	PaymentMethodID int64     `db:"payment_method_id" json:"payment_method_id"`
	OrderNumber     string    `db:"order_number" json:"order_number"`
	Status          string    `db:"status" json:"status"`
	PaymentStatus   string    `db:"payment_status" json:"payment_status"`
	Subtotal        int64     `db:"subtotal" json:"subtotal"`
	DiscountTotal   int64     `db:"discount_total" json:"discount_total"`
	ShippingCost    int64     `db:"shipping_cost" json:"shipping_cost"`
	WeightTotal     int64     `db:"weight_total" json:"weight_total"`
	GrandTotal      int64     `db:"grand_total" json:"grand_total"`
	OrderedAt       time.Time `db:"ordered_at" json:"ordered_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem captures the product name verbatim at checkout time so later
// renames never rewrite financial history. Immutable once created.
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
	Subtotal    int64  `db:"subtotal" json:"subtotal"`
	Note        string `db:"note" json:"note,omitempty"`
}

// Address is a customer shipping address. Only ownership and the city used
// for visibility resolution matter to this core.
type Address struct {
	ID         int64     `db:"id" json:"id"`
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Recipient  string    `db:"recipient" json:"recipient"`
	Phone      string    `db:"phone" json:"phone"`
	Street     string    `db:"street" json:"street"`
	ProvinceID *int64    `db:"province_id" json:"province_id,omitempty"`
	CityID     *int64    `db:"city_id" json:"city_id,omitempty"`
	DistrictID *int64    `db:"district_id" json:"district_id,omitempty"`
	IsDefault  bool      `db:"is_default" json:"is_default"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
