package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TagSet is a set of item-category tags stored as a comma separated column.
type TagSet []string

// Value implements driver.Valuer.
func (t TagSet) Value() (driver.Value, error) {
	return strings.Join(t, ","), nil
}

// Scan implements sql.Scanner.
func (t *TagSet) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("tagset: unsupported source %T", src)
	}

	var tags TagSet
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	*t = tags
	return nil
}

// Intersects reports whether any tag of other is in t.
func (t TagSet) Intersects(other []string) bool {
	for _, a := range t {
		for _, b := range other {
			if a == b {
				return true
			}
		}
	}
	return false
}

// Coupon is a discount rule identified by its code.
type Coupon struct {
	BaseModel
	Code            string    `gorm:"uniqueIndex;not null" json:"code"`
	Description     string    `json:"description"`
	DiscountType    string    `gorm:"not null" json:"discount_type"`
	DiscountValue   float64   `json:"discount_value"`
	MinAmount       float64   `json:"min_amount"`
	MaxDiscount     *float64  `json:"max_discount"`
	ApplicableItems TagSet    `gorm:"type:text" json:"applicable_items"`
	UsageLimit      *int      `json:"usage_limit"`
	UsageCount      int       `json:"usage_count"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsActive        bool      `json:"is_active"`
}

// CouponRedemption records that a coupon was committed against a request.
type CouponRedemption struct {
	BaseModel
	CouponID       uuid.UUID `gorm:"type:uuid;uniqueIndex:ux_redemption,priority:1" json:"coupon_id"`
	RequestType    string    `gorm:"uniqueIndex:ux_redemption,priority:2" json:"request_type"`
	RequestID      uuid.UUID `gorm:"type:uuid;uniqueIndex:ux_redemption,priority:3" json:"request_id"`
	DiscountAmount float64   `json:"discount_amount"`
}
