package models

import (
	"time"

	"github.com/google/uuid"
)

// RepairRequest is a user's booking for one or more repair services.
type RepairRequest struct {
	BaseModel
	UserID          uuid.UUID  `gorm:"type:uuid;index;uniqueIndex:ux_repair_draft,priority:1" json:"user_id"`
	User            *User      `json:"user,omitempty"`
	ContactNumber   string     `json:"contact_number"`
	AlternateNumber string     `json:"alternate_number"`
	Email           string     `json:"email"`
	Address         string     `json:"address"`
	Notes           string     `json:"notes"`
	PreferredDate   string     `json:"preferred_date"`
	TimeSlotID      uuid.UUID  `gorm:"type:uuid" json:"time_slot_id"`
	TimeSlot        *TimeSlot  `json:"time_slot,omitempty"`
	PaymentMethod   string     `json:"payment_method"`
	TotalAmount     float64    `json:"total_amount"`
	CouponID        *uuid.UUID `gorm:"type:uuid" json:"coupon_id"`
	DiscountAmount  float64    `json:"discount_amount"`
	NetAmount       float64    `json:"net_amount"`
	Status          string     `gorm:"index;not null" json:"status"`
	RejectionNote   *string    `json:"rejection_note"`
	ExpiresAt       time.Time  `gorm:"index" json:"expires_at"`
	DraftToken      *string    `gorm:"uniqueIndex:ux_repair_draft,priority:2" json:"-"`

	Services []RepairRequestService `json:"services,omitempty"`
	Files    []RepairRequestFile    `json:"files,omitempty"`
}

// RepairRequestService is a priced service line on a repair request.
type RepairRequestService struct {
	BaseModel
	RepairRequestID uuid.UUID `gorm:"type:uuid;index" json:"repair_request_id"`
	RepairServiceID uuid.UUID `gorm:"type:uuid" json:"repair_service_id"`
	ServiceName     string    `json:"service_name"`
	Price           float64   `json:"price"`
	DiscountAmount  float64   `json:"discount_amount"`
}

// RepairRequestFile is an uploaded photo or video attached to a repair request.
type RepairRequestFile struct {
	BaseModel
	RepairRequestID uuid.UUID `gorm:"type:uuid;index" json:"repair_request_id"`
	FileURL         string    `json:"file_url"`
	FileType        string    `json:"file_type"`
	Size            int64     `json:"size"`
}

// RentalRequest is a user's booking of a bicycle for a duration.
type RentalRequest struct {
	BaseModel
	UserID          uuid.UUID  `gorm:"type:uuid;index;uniqueIndex:ux_rental_draft,priority:1" json:"user_id"`
	User            *User      `json:"user,omitempty"`
	BicycleID       uuid.UUID  `gorm:"type:uuid;index" json:"bicycle_id"`
	Bicycle         *Bicycle   `json:"bicycle,omitempty"`
	DurationType    string     `json:"duration_type"`
	Duration        int        `json:"duration"`
	ContactNumber   string     `json:"contact_number"`
	AlternateNumber string     `json:"alternate_number"`
	Email           string     `json:"email"`
	DeliveryAddress string     `json:"delivery_address"`
	PaymentMethod   string     `json:"payment_method"`
	Rate            float64    `json:"rate"`
	DeliveryCharge  float64    `json:"delivery_charge"`
	TotalAmount     float64    `json:"total_amount"`
	CouponID        *uuid.UUID `gorm:"type:uuid" json:"coupon_id"`
	DiscountAmount  float64    `json:"discount_amount"`
	NetAmount       float64    `json:"net_amount"`
	Status          string     `gorm:"index;not null" json:"status"`
	RejectionNote   *string    `json:"rejection_note"`
	ExpiresAt       time.Time  `gorm:"index" json:"expires_at"`
	DraftToken      *string    `gorm:"uniqueIndex:ux_rental_draft,priority:2" json:"-"`
}

// Notification is a status update waiting to be picked up by the client's poll.
type Notification struct {
	BaseModel
	UserID      uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	RequestType string     `json:"request_type"`
	RequestID   uuid.UUID  `gorm:"type:uuid" json:"request_id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	ReadAt      *time.Time `json:"read_at"`
}
