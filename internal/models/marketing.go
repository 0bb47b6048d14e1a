package models

import "time"

// ContactSetting is the contact method shown to users. Only one row is active at a time.
type ContactSetting struct {
	BaseModel
	Type     string `json:"type"`
	Value    string `json:"value"`
	IsActive bool   `gorm:"index" json:"is_active"`
}

// PromotionalCard is a banner displayed in the client's home screen.
type PromotionalCard struct {
	BaseModel
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ImageURL     string     `json:"image_url"`
	ExternalLink string     `json:"external_link"`
	DisplayOrder int        `gorm:"default:0" json:"display_order"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	IsActive     bool       `json:"is_active"`
}

// Visible reports whether the card is active and inside its display window.
func (p PromotionalCard) Visible(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}
