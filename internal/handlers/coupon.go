package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

// CouponHandler serves coupon preview and admin coupon management.
type CouponHandler struct {
	db      *gorm.DB
	coupons *services.CouponService
	pricing *services.Pricing
}

// NewCouponHandler constructs CouponHandler. pricing decides which item tags a request carries,
// so a preview matches what submission will charge.
func NewCouponHandler(db *gorm.DB, coupons *services.CouponService, pricing *services.Pricing) *CouponHandler {
	return &CouponHandler{db: db, coupons: coupons, pricing: pricing}
}

type applyCouponRequest struct {
	Code        string   `json:"code" validate:"required"`
	RequestType string   `json:"request_type" validate:"required,oneof=repair rental"`
	Items       []string `json:"items"`
	TotalAmount float64  `json:"total_amount" validate:"gte=0"`
}

// Apply previews a coupon against an amount. Usage is only counted when a request is submitted.
func (h *CouponHandler) Apply(c *fiber.Ctx) error {
	var req applyCouponRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	rt, err := services.ParseRequestType(req.RequestType)
	if err != nil {
		return err
	}
	items := h.pricing.PricedItems(rt, req.Items)
	if len(items) == 0 {
		return services.ValidationError("validation failed", utils.FieldError{Field: "items", Message: "none of the items are priced on this request"})
	}

	quote, err := h.coupons.Preview(c.UserContext(), req.Code, rt, items, req.TotalAmount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "coupon applied", "data": quote})
}

// Available lists coupons the client can offer for ?request_type=.
func (h *CouponHandler) Available(c *fiber.Ctx) error {
	rt, err := services.ParseRequestType(c.Query("request_type", string(services.RequestRepair)))
	if err != nil {
		return err
	}
	coupons, err := h.coupons.ListAvailable(c.UserContext(), h.pricing.ItemTags(rt))
	if err != nil {
		return err
	}
	return ok(c, coupons)
}

type couponInput struct {
	Code            string    `json:"code" validate:"required,min=3,max=32"`
	Description     string    `json:"description" validate:"max=500"`
	DiscountType    string    `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue   float64   `json:"discount_value" validate:"gt=0"`
	MinAmount       float64   `json:"min_amount" validate:"gte=0"`
	MaxDiscount     *float64  `json:"max_discount" validate:"omitempty,gte=0"`
	ApplicableItems []string  `json:"applicable_items" validate:"required,min=1,dive,oneof=repair_services rental_services service_mechanic_charge delivery_charge"`
	UsageLimit      *int      `json:"usage_limit" validate:"omitempty,min=1"`
	ExpiresAt       time.Time `json:"expires_at" validate:"required"`
	IsActive        *bool     `json:"is_active"`
}

func (in couponInput) check() error {
	if in.DiscountType == services.DiscountPercentage && in.DiscountValue > 100 {
		return services.ValidationError("validation failed", utils.FieldError{Field: "discount_value", Message: "percentage must be at most 100"})
	}
	return nil
}

func (in couponInput) apply(coupon *models.Coupon) {
	coupon.Code = services.NormalizeCode(in.Code)
	coupon.Description = strings.TrimSpace(in.Description)
	coupon.DiscountType = in.DiscountType
	coupon.DiscountValue = in.DiscountValue
	coupon.MinAmount = in.MinAmount
	coupon.MaxDiscount = in.MaxDiscount
	coupon.ApplicableItems = models.TagSet(in.ApplicableItems)
	coupon.UsageLimit = in.UsageLimit
	coupon.ExpiresAt = in.ExpiresAt.UTC()
	coupon.IsActive = in.IsActive == nil || *in.IsActive
}

// ListCoupons returns all coupons, newest first.
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	var total int64
	if err := h.db.Model(&models.Coupon{}).Count(&total).Error; err != nil {
		return err
	}

	var items []models.Coupon
	if err := h.db.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}
	return paginated(c, items, pg, total)
}

// CreateCoupon adds a coupon.
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var in couponInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if err := in.check(); err != nil {
		return err
	}

	var coupon models.Coupon
	in.apply(&coupon)

	var count int64
	if err := h.db.Model(&models.Coupon{}).Where("code = ?", coupon.Code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return services.ConflictError("coupon code already exists")
	}

	if err := h.db.Create(&coupon).Error; err != nil {
		return err
	}
	return created(c, "coupon created", coupon)
}

// UpdateCoupon replaces a coupon's rule. usage_count is never changed here.
func (h *CouponHandler) UpdateCoupon(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var in couponInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if err := in.check(); err != nil {
		return err
	}

	var rule models.Coupon
	in.apply(&rule)
	coupon, err := h.coupons.UpdateRule(c.UserContext(), id, rule)
	if err != nil {
		return err
	}
	return ok(c, coupon)
}

// DeleteCoupon removes an unused coupon and deactivates a used one.
func (h *CouponHandler) DeleteCoupon(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var coupon models.Coupon
	if err := h.db.First(&coupon, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("coupon not found")
		}
		return err
	}

	if coupon.UsageCount > 0 {
		if err := h.db.Model(&coupon).Update("is_active", false).Error; err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "message": "coupon deactivated"})
	}

	if err := h.db.Delete(&coupon).Error; err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
