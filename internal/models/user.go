package models

import (
	"time"
)

// User represents a customer identified by phone number.
type User struct {
	BaseModel
	Phone        string `gorm:"uniqueIndex;not null" json:"phone"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Age          int    `json:"age"`
	Pincode      string `json:"pincode"`
	Address      string `json:"address"`
	ProfilePhoto string `json:"profile_photo"`
}

// Admin is a back-office operator authenticated by username and password.
type Admin struct {
	BaseModel
	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string `json:"-"`
}

// OTPCode keeps track of one-time codes sent to phones.
type OTPCode struct {
	BaseModel
	Phone      string     `gorm:"index;not null" json:"phone"`
	Code       string     `json:"-"`
	Purpose    string     `json:"purpose"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Attempts   int        `gorm:"default:0" json:"attempts"`
	VerifiedAt *time.Time `json:"verified_at"`
	Used       bool       `json:"used"`
}

func (OTPCode) TableName() string { return "otp_codes" }
