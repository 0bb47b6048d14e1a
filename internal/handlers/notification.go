package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/middleware"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

// NotificationHandler serves the user's notification feed.
type NotificationHandler struct {
	db *gorm.DB
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// List returns the caller's notifications, newest first. ?unread=true limits to unread ones.
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if c.QueryBool("unread") {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var items []models.Notification
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&items).Error; err != nil {
		return err
	}
	return paginated(c, items, pg, total)
}

// MarkRead marks one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, found := middleware.GetCurrentUserID(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var n models.Notification
	if err := h.db.First(&n, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("notification not found")
		}
		return err
	}
	if n.ReadAt == nil {
		now := time.Now().UTC()
		if err := h.db.Model(&n).Update("read_at", now).Error; err != nil {
			return err
		}
		n.ReadAt = &now
	}
	return ok(c, n)
}
