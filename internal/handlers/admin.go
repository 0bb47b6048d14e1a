package handlers

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

// AdminHandler manages the admin dashboard endpoints.
type AdminHandler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type requestStatRow struct {
	Status    string
	ExpiresAt time.Time
	NetAmount float64
	UpdatedAt time.Time
}

type requestStats struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	Revenue      float64          `json:"revenue"`
	TodayRevenue float64          `json:"today_revenue"`
}

// collectStats counts requests by effective status and sums completed revenue.
func collectStats(db *gorm.DB, model any, now, startOfDay time.Time) (requestStats, error) {
	var rows []requestStatRow
	if err := db.Model(model).
		Select("status", "expires_at", "net_amount", "updated_at").
		Find(&rows).Error; err != nil {
		return requestStats{}, err
	}

	stats := requestStats{ByStatus: map[string]int64{}}
	revenue, today := decimal.Zero, decimal.Zero
	for _, r := range rows {
		status := services.EffectiveStatus(r.Status, r.ExpiresAt, now)
		stats.ByStatus[status]++
		stats.Total++
		if status != services.StatusCompleted {
			continue
		}
		amount := decimal.NewFromFloat(r.NetAmount)
		revenue = revenue.Add(amount)
		if !r.UpdatedAt.Before(startOfDay) {
			today = today.Add(amount)
		}
	}
	stats.Revenue = revenue.Round(2).InexactFloat64()
	stats.TodayRevenue = today.Round(2).InexactFloat64()
	return stats, nil
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	now := h.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var totalUsers int64
	if err := h.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	repair, err := collectStats(h.db, &models.RepairRequest{}, now, startOfDay)
	if err != nil {
		return err
	}
	rental, err := collectStats(h.db, &models.RentalRequest{}, now, startOfDay)
	if err != nil {
		return err
	}

	var coupons []models.Coupon
	if err := h.db.Where("is_active = ?", true).Find(&coupons).Error; err != nil {
		return err
	}
	activeCoupons := 0
	for _, cp := range coupons {
		if cp.ExpiresAt.After(now) && (cp.UsageLimit == nil || cp.UsageCount < *cp.UsageLimit) {
			activeCoupons++
		}
	}

	totalRevenue := decimal.NewFromFloat(repair.Revenue).Add(decimal.NewFromFloat(rental.Revenue))
	todayRevenue := decimal.NewFromFloat(repair.TodayRevenue).Add(decimal.NewFromFloat(rental.TodayRevenue))

	return ok(c, fiber.Map{
		"total_users":     totalUsers,
		"repair_requests": repair,
		"rental_requests": rental,
		"total_revenue":   totalRevenue.Round(2).InexactFloat64(),
		"today_revenue":   todayRevenue.Round(2).InexactFloat64(),
		"active_coupons":  activeCoupons,
	})
}

type recentRequest struct {
	RequestType services.RequestType `json:"request_type"`
	ID          string               `json:"id"`
	UserID      string               `json:"user_id"`
	Phone       string               `json:"contact_number"`
	Status      string               `json:"status"`
	NetAmount   float64              `json:"net_amount"`
	CreatedAt   time.Time            `json:"created_at"`
}

// RecentRequests returns the latest repair and rental requests merged by creation time.
func (h *AdminHandler) RecentRequests(c *fiber.Ctx) error {
	limit := utils.ParsePagination(c).Limit
	if c.Query("limit") == "" {
		limit = 10
	}
	now := h.now()

	var repairs []models.RepairRequest
	if err := h.db.Order("created_at desc").Limit(limit).Find(&repairs).Error; err != nil {
		return err
	}
	var rentals []models.RentalRequest
	if err := h.db.Order("created_at desc").Limit(limit).Find(&rentals).Error; err != nil {
		return err
	}

	items := make([]recentRequest, 0, len(repairs)+len(rentals))
	for _, r := range repairs {
		items = append(items, recentRequest{
			RequestType: services.RequestRepair,
			ID:          r.ID.String(),
			UserID:      r.UserID.String(),
			Phone:       r.ContactNumber,
			Status:      services.EffectiveStatus(r.Status, r.ExpiresAt, now),
			NetAmount:   r.NetAmount,
			CreatedAt:   r.CreatedAt,
		})
	}
	for _, r := range rentals {
		items = append(items, recentRequest{
			RequestType: services.RequestRental,
			ID:          r.ID.String(),
			UserID:      r.UserID.String(),
			Phone:       r.ContactNumber,
			Status:      services.EffectiveStatus(r.Status, r.ExpiresAt, now),
			NetAmount:   r.NetAmount,
			CreatedAt:   r.CreatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return ok(c, items)
}

// ListAllUsers returns all registered users with pagination and search.
func (h *AdminHandler) ListAllUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.User{})

	if search := strings.ToLower(strings.TrimSpace(c.Query("search"))); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR phone LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	// Enrich users with request counts
	type userStats struct {
		UserID string
		Count  int64
	}
	counts := make(map[string]int64)
	for _, model := range []any{&models.RepairRequest{}, &models.RentalRequest{}} {
		var stats []userStats
		if err := h.db.Model(model).
			Select("user_id, count(*) as count").
			Group("user_id").
			Scan(&stats).Error; err != nil {
			return err
		}
		for _, s := range stats {
			counts[s.UserID] += s.Count
		}
	}

	type userResponse struct {
		models.User
		RequestCount int64 `json:"request_count"`
	}

	result := make([]userResponse, len(users))
	for i, u := range users {
		result[i] = userResponse{User: u, RequestCount: counts[u.ID.String()]}
	}

	return paginated(c, result, pg, total)
}
