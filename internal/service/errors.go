package service

import "errors"

// Business outcomes surfaced to callers. These are expected results, not
// faults; the HTTP layer maps each to a specific status and UI copy.
var (
	// ErrProductUnavailable means the product's status marks it inactive.
	ErrProductUnavailable = errors.New("product unavailable")

	// ErrNotVisible means the visibility resolver rejected the product for
	// the customer's resolved city.
	ErrNotVisible = errors.New("product not visible in your area")

	// ErrOutOfStock means finite stock is exhausted.
	ErrOutOfStock = errors.New("product out of stock")

	// ErrNotFound covers cart items that do not exist or belong to another
	// customer; the two cases are indistinguishable on purpose.
	ErrNotFound = errors.New("not found")

	// ErrAddressNotFound means the address is absent or owned by someone
	// else.
	ErrAddressNotFound = errors.New("address not found")

	// ErrNothingToCheckout means the selection resolved to zero cart items.
	ErrNothingToCheckout = errors.New("nothing to checkout")

	// ErrInsufficientStock means the commit-time conditional decrement found
	// less stock than requested. The caller may re-check the cart and retry.
	ErrInsufficientStock = errors.New("insufficient stock at checkout")

	// ErrDuplicateCheckout means the idempotency key was already claimed.
	ErrDuplicateCheckout = errors.New("checkout already in progress")
)

// PromoRejectedError carries a promo rejection through checkout's error
// path so the caller still sees the specific reason.
type PromoRejectedError struct {
	Rejection Rejection
}

func (e *PromoRejectedError) Error() string {
	return "promo rejected: " + e.Rejection.Message
}
