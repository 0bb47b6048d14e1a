package services

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

// RequestType distinguishes repair and rental bookings.
type RequestType string

const (
	RequestRepair RequestType = "repair"
	RequestRental RequestType = "rental"
)

// ParseRequestType validates a request type string.
func ParseRequestType(s string) (RequestType, error) {
	switch RequestType(strings.ToLower(strings.TrimSpace(s))) {
	case RequestRepair:
		return RequestRepair, nil
	case RequestRental:
		return RequestRental, nil
	}
	return "", ValidationError("invalid request type", utils.FieldError{
		Field:   "request_type",
		Message: "request_type must be one of [repair rental]",
	})
}

// Discount strategies.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Item-category tags a coupon can target.
const (
	TagRepairServices = "repair_services"
	TagRentalServices = "rental_services"
	TagMechanicCharge = "service_mechanic_charge"
	TagDeliveryCharge = "delivery_charge"
)

// Quote is the outcome of applying a coupon to an amount.
type Quote struct {
	CouponID     uuid.UUID   `json:"coupon_id"`
	Code         string      `json:"code"`
	RequestType  RequestType `json:"request_type"`
	DiscountType string      `json:"discount_type"`
	TotalAmount  float64     `json:"total_amount"`
	Discount     float64     `json:"discount"`
	NetAmount    float64     `json:"net_amount"`
}

// CouponService validates coupons and records their usage.
type CouponService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCouponService constructs a CouponService.
func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// NormalizeCode canonicalises a coupon code for lookup and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Preview evaluates a coupon without side effects.
func (s *CouponService) Preview(ctx context.Context, code string, rt RequestType, items []string, total float64) (*Quote, error) {
	if err := validateApplyInput(code, rt, items, total); err != nil {
		return nil, err
	}

	coupon, err := findCoupon(s.db.WithContext(ctx), code)
	if err != nil {
		return nil, err
	}

	quote, err := Evaluate(coupon, items, decimal.NewFromFloat(total), s.now())
	if err != nil {
		return nil, err
	}
	quote.RequestType = rt
	return quote, nil
}

// Commit applies the coupon to requestID inside tx and increments usage once per request.
// Retrying the same (coupon, request) pair returns the recorded discount without counting again.
func (s *CouponService) Commit(ctx context.Context, tx *gorm.DB, code string, rt RequestType, requestID uuid.UUID, items []string, total float64) (*Quote, error) {
	if err := validateApplyInput(code, rt, items, total); err != nil {
		return nil, err
	}
	tx = tx.WithContext(ctx)

	coupon, err := findCoupon(tx, code)
	if err != nil {
		return nil, err
	}

	var existing models.CouponRedemption
	err = tx.Where("coupon_id = ? AND request_type = ? AND request_id = ?", coupon.ID, string(rt), requestID).
		First(&existing).Error
	if err == nil {
		return quoteFromAmounts(coupon, rt, decimal.NewFromFloat(total), decimal.NewFromFloat(existing.DiscountAmount)), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrapStore(err, "load coupon redemption")
	}

	quote, err := Evaluate(coupon, items, decimal.NewFromFloat(total), s.now())
	if err != nil {
		return nil, err
	}
	quote.RequestType = rt

	res := tx.Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", coupon.ID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return nil, wrapStore(res.Error, "increment coupon usage")
	}
	if res.RowsAffected == 0 {
		return nil, CouponError(CodeCouponExhausted, "coupon usage limit reached")
	}

	redemption := models.CouponRedemption{
		CouponID:       coupon.ID,
		RequestType:    string(rt),
		RequestID:      requestID,
		DiscountAmount: quote.Discount,
	}
	if err := tx.Create(&redemption).Error; err != nil {
		return nil, wrapStore(err, "record coupon redemption")
	}

	return quote, nil
}

// ListAvailable returns active, unexpired, non-exhausted coupons that apply to one of items.
func (s *CouponService) ListAvailable(ctx context.Context, items []string) ([]models.Coupon, error) {
	var coupons []models.Coupon
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc").
		Find(&coupons).Error; err != nil {
		return nil, wrapStore(err, "list coupons")
	}

	now := s.now()
	out := make([]models.Coupon, 0, len(coupons))
	for _, c := range coupons {
		if !c.ExpiresAt.After(now) || exhausted(&c) {
			continue
		}
		if !c.ApplicableItems.Intersects(items) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateRule replaces the editable fields of coupon id with those of rule. usage_count is
// never written, and a usage limit below the current count is rejected inside the same
// statement so a concurrent Commit cannot slip past it.
func (s *CouponService) UpdateRule(ctx context.Context, id uuid.UUID, rule models.Coupon) (*models.Coupon, error) {
	var updated models.Coupon
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Coupon{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return wrapStore(err, "load coupon")
		}
		if count == 0 {
			return NotFoundError("coupon not found")
		}

		code := NormalizeCode(rule.Code)
		if err := tx.Model(&models.Coupon{}).Where("code = ? AND id <> ?", code, id).Count(&count).Error; err != nil {
			return wrapStore(err, "check coupon code")
		}
		if count > 0 {
			return ConflictError("coupon code already exists")
		}

		q := tx.Model(&models.Coupon{}).Where("id = ?", id)
		if rule.UsageLimit != nil {
			q = q.Where("usage_count <= ?", *rule.UsageLimit)
		}
		res := q.Updates(map[string]any{
			"code":             code,
			"description":      rule.Description,
			"discount_type":    rule.DiscountType,
			"discount_value":   rule.DiscountValue,
			"min_amount":       rule.MinAmount,
			"max_discount":     rule.MaxDiscount,
			"applicable_items": rule.ApplicableItems,
			"usage_limit":      rule.UsageLimit,
			"expires_at":       rule.ExpiresAt,
			"is_active":        rule.IsActive,
			"updated_at":       s.now(),
		})
		if res.Error != nil {
			return wrapStore(res.Error, "update coupon")
		}
		if res.RowsAffected == 0 {
			return ValidationError("validation failed", utils.FieldError{Field: "usage_limit", Message: "usage_limit is below the current usage count"})
		}
		return wrapStore(tx.First(&updated, "id = ?", id).Error, "reload coupon")
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Evaluate checks the coupon against the request and computes the discount.
// Checks run in order and the first failure is returned.
func Evaluate(coupon *models.Coupon, items []string, total decimal.Decimal, now time.Time) (*Quote, error) {
	if coupon == nil || !coupon.IsActive {
		return nil, CouponError(CodeCouponNotFound, "coupon not found")
	}
	if !coupon.ExpiresAt.After(now) {
		return nil, CouponError(CodeCouponExpired, "coupon has expired")
	}
	if exhausted(coupon) {
		return nil, CouponError(CodeCouponExhausted, "coupon usage limit reached")
	}
	if total.LessThan(decimal.NewFromFloat(coupon.MinAmount)) {
		return nil, CouponError(CodeBelowMinimumAmount, "order total is below the coupon minimum")
	}
	if !coupon.ApplicableItems.Intersects(items) {
		return nil, CouponError(CodeNotApplicable, "coupon is not applicable to this request")
	}

	var maxDiscount *decimal.Decimal
	if coupon.MaxDiscount != nil {
		m := decimal.NewFromFloat(*coupon.MaxDiscount)
		maxDiscount = &m
	}

	discount := CalculateDiscount(coupon.DiscountType, decimal.NewFromFloat(coupon.DiscountValue), maxDiscount, total)
	return quoteFromAmounts(coupon, "", total, discount), nil
}

// CalculateDiscount returns the discount for total, never negative and never above total.
// fixed: min(value, total). percentage: min(total*value/100, maxDiscount or total).
func CalculateDiscount(discountType string, value decimal.Decimal, maxDiscount *decimal.Decimal, total decimal.Decimal) decimal.Decimal {
	if total.Sign() <= 0 || value.Sign() <= 0 {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch discountType {
	case DiscountFixed:
		discount = decimal.Min(value, total)
	case DiscountPercentage:
		discount = total.Mul(value).Div(decimal.NewFromInt(100))
		limit := total
		if maxDiscount != nil && maxDiscount.Sign() >= 0 {
			limit = decimal.Min(*maxDiscount, total)
		}
		discount = decimal.Min(discount, limit)
	default:
		return decimal.Zero
	}

	return discount.Round(2)
}

// ItemTags returns the item-category tags priced on a request of type rt.
// withCharge adds the type's surcharge tag.
func ItemTags(rt RequestType, withCharge bool) []string {
	switch rt {
	case RequestRepair:
		if withCharge {
			return []string{TagRepairServices, TagMechanicCharge}
		}
		return []string{TagRepairServices}
	case RequestRental:
		if withCharge {
			return []string{TagRentalServices, TagDeliveryCharge}
		}
		return []string{TagRentalServices}
	}
	return nil
}

func quoteFromAmounts(coupon *models.Coupon, rt RequestType, total, discount decimal.Decimal) *Quote {
	return &Quote{
		CouponID:     coupon.ID,
		Code:         coupon.Code,
		RequestType:  rt,
		DiscountType: coupon.DiscountType,
		TotalAmount:  total.Round(2).InexactFloat64(),
		Discount:     discount.InexactFloat64(),
		NetAmount:    total.Sub(discount).Round(2).InexactFloat64(),
	}
}

func exhausted(c *models.Coupon) bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}

func findCoupon(db *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := db.Where("code = ?", NormalizeCode(code)).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CouponError(CodeCouponNotFound, "coupon not found")
		}
		return nil, wrapStore(err, "load coupon")
	}
	return &coupon, nil
}

func validateApplyInput(code string, rt RequestType, items []string, total float64) error {
	var fields []utils.FieldError
	if strings.TrimSpace(code) == "" {
		fields = append(fields, utils.FieldError{Field: "code", Message: "code is required"})
	}
	if rt != RequestRepair && rt != RequestRental {
		fields = append(fields, utils.FieldError{Field: "request_type", Message: "request_type must be one of [repair rental]"})
	}
	if len(items) == 0 {
		fields = append(fields, utils.FieldError{Field: "items", Message: "items must not be empty"})
	}
	if total < 0 {
		fields = append(fields, utils.FieldError{Field: "total_amount", Message: "total_amount must not be negative"})
	}
	if len(fields) > 0 {
		return ValidationError("invalid coupon request", fields...)
	}
	return nil
}
