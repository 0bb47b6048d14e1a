package models

// RepairService is a priced repair offering a user can book.
type RepairService struct {
	BaseModel
	Name        string  `gorm:"not null" json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `gorm:"default:repair_services" json:"category"`
	IsActive    bool    `json:"is_active"`
}

// TimeSlot is a bookable repair window.
type TimeSlot struct {
	BaseModel
	Label     string `json:"label"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsActive  bool   `json:"is_active"`
}

// Bicycle is a rentable bike with per-period rates.
type Bicycle struct {
	BaseModel
	Name        string  `gorm:"not null" json:"name"`
	Model       string  `json:"model"`
	Description string  `json:"description"`
	HourlyRate  float64 `json:"hourly_rate"`
	DailyRate   float64 `json:"daily_rate"`
	WeeklyRate  float64 `json:"weekly_rate"`
	Image       string  `json:"image"`
	IsAvailable bool    `json:"is_available"`
}
