package service

import (
	"context"
	"time"

	"marketplace-checkout/internal/models"
	"marketplace-checkout/internal/util"

	"go.uber.org/zap"
)

// Rejection reasons
const (
	ReasonCodeNotFound    = "CODE_NOT_FOUND"
	ReasonNotStarted      = "NOT_STARTED"
	ReasonExpired         = "EXPIRED"
	ReasonQuotaExhausted  = "QUOTA_EXHAUSTED"
	ReasonNoEligibleItems = "NO_ELIGIBLE_ITEMS"
	ReasonBelowMinimum    = "BELOW_MINIMUM"
)

// CandidateLine is one store's share of the cart value a promo is evaluated
// against.
type CandidateLine struct {
	StoreID  int64 `json:"store_id"`
	Subtotal int64 `json:"subtotal"`
}

// Evaluation is an accepted promo quotation. AppliesToStoreID is nil for
// platform-wide codes.
type Evaluation struct {
	PromoID          int64  `json:"promo_id"`
	Code             string `json:"code"`
	Discount         int64  `json:"discount"`
	AppliesToStoreID *int64 `json:"applies_to_store_id,omitempty"`
}

// Rejection is an expected negative outcome with UI-ready copy.
type Rejection struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// PromoStore is the lookup surface the evaluator needs.
type PromoStore interface {
	GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error)
}

// PromoService validates promo codes against candidate lines. It is a pure
// quotation step: nothing is reserved or redeemed here. Redemption happens
// atomically inside the checkout transaction.
type PromoService struct {
	store  PromoStore
	logger *zap.Logger
}

// NewPromoService creates a new promo service
func NewPromoService(store PromoStore) *PromoService {
	return &PromoService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Evaluate looks up a code and quotes its discount against the candidate
// lines. Exactly one of Evaluation and Rejection is non-nil on success; the
// error return is reserved for infrastructure failures.
func (s *PromoService) Evaluate(ctx context.Context, code string, lines []CandidateLine, now time.Time) (*Evaluation, *Rejection, error) {
	ctx, span := util.StartSpan(ctx, "PromoService.Evaluate")
	defer span.End()

	promo, err := s.store.GetPromoByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	eval, rejection := EvaluatePromo(promo, lines, now)
	if rejection != nil {
		util.PromoRejectionsTotal.WithLabelValues(rejection.Reason).Inc()
		s.logger.Info("Promo rejected",
			zap.String("code", code),
			zap.String("reason", rejection.Reason))
	}
	return eval, rejection, nil
}

// EvaluatePromo is the pure evaluation core. A nil promo means the code was
// not found (or not active, which must look identical to callers).
func EvaluatePromo(promo *models.PromoCode, lines []CandidateLine, now time.Time) (*Evaluation, *Rejection) {
	if promo == nil || !promo.Active {
		return nil, &Rejection{
			Reason:  ReasonCodeNotFound,
			Message: "promo code not found",
		}
	}

	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return nil, &Rejection{
			Reason:  ReasonNotStarted,
			Message: "promo code is not active yet",
		}
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return nil, &Rejection{
			Reason:  ReasonExpired,
			Message: "promo code has expired",
		}
	}

	if promo.Quota != nil && promo.Used >= *promo.Quota {
		return nil, &Rejection{
			Reason:  ReasonQuotaExhausted,
			Message: "promo code quota has been used up",
		}
	}

	relevant := RelevantSubtotal(promo, lines)
	if relevant == 0 {
		msg := "no items in the cart are eligible for this code"
		if promo.StoreID != nil {
			msg = "this code only applies to items from its store, and your selection has none"
		}
		return nil, &Rejection{
			Reason:  ReasonNoEligibleItems,
			Message: msg,
		}
	}

	if promo.MinOrderAmount != nil && relevant < *promo.MinOrderAmount {
		return nil, &Rejection{
			Reason:  ReasonBelowMinimum,
			Message: "eligible subtotal is below the minimum for this code",
		}
	}

	return &Evaluation{
		PromoID:          promo.ID,
		Code:             promo.Code,
		Discount:         DiscountAmount(promo, relevant),
		AppliesToStoreID: promo.StoreID,
	}, nil
}

// RelevantSubtotal sums the lines a promo is allowed to discount: all of
// them for platform-wide codes, only the owning store's for scoped ones.
func RelevantSubtotal(promo *models.PromoCode, lines []CandidateLine) int64 {
	var sum int64
	for _, line := range lines {
		if promo.StoreID == nil || *promo.StoreID == line.StoreID {
			sum += line.Subtotal
		}
	}
	return sum
}

// DiscountAmount computes the discount a promo grants on a relevant
// subtotal. PERCENT results are capped by MaxDiscount when set; both types
// are clamped so the discount never exceeds what it discounts.
func DiscountAmount(promo *models.PromoCode, relevantSubtotal int64) int64 {
	var discount int64
	switch promo.DiscountType {
	case models.DiscountTypePercent:
		discount = relevantSubtotal * promo.DiscountValue / 100
		if promo.MaxDiscount != nil && discount > *promo.MaxDiscount {
			discount = *promo.MaxDiscount
		}
	case models.DiscountTypeFixed:
		discount = promo.DiscountValue
	}

	if discount > relevantSubtotal {
		discount = relevantSubtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
