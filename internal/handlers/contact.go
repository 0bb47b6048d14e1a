package handlers

import (
	"net/mail"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

// ContactHandler manages the contact method shown in the app.
type ContactHandler struct {
	db *gorm.DB
}

// NewContactHandler constructs ContactHandler.
func NewContactHandler(db *gorm.DB) *ContactHandler {
	return &ContactHandler{db: db}
}

const (
	defaultContactType  = "phone"
	defaultContactValue = "+91 98765 43210"
)

// GetSettings returns the active contact method (public endpoint).
func (h *ContactHandler) GetSettings(c *fiber.Ctx) error {
	var setting models.ContactSetting
	result := h.db.Where("is_active = ?", true).Order("created_at desc").First(&setting)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			// Return default settings for first load
			return ok(c, models.ContactSetting{Type: defaultContactType, Value: defaultContactValue, IsActive: true})
		}
		return result.Error
	}
	return ok(c, setting)
}

type contactSettingInput struct {
	Type  string `json:"type" validate:"required,oneof=phone email link"`
	Value string `json:"value" validate:"required,max=255"`
}

func validateContactSetting(in *contactSettingInput) error {
	in.Value = strings.TrimSpace(in.Value)
	switch in.Type {
	case "email":
		if _, err := mail.ParseAddress(in.Value); err != nil {
			return services.ValidationError("validation failed", utils.FieldError{Field: "value", Message: "invalid email format"})
		}
	case "link":
		if u, err := url.Parse(in.Value); err != nil || u.Scheme == "" || u.Host == "" {
			return services.ValidationError("validation failed", utils.FieldError{Field: "value", Message: "invalid link"})
		}
	case "phone":
		if _, err := services.NormalizePhone(in.Value); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceSettings deactivates the current contact method and activates a new one (admin endpoint).
func (h *ContactHandler) ReplaceSettings(c *fiber.Ctx) error {
	var in contactSettingInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if err := validateContactSetting(&in); err != nil {
		return err
	}

	setting := models.ContactSetting{Type: in.Type, Value: in.Value, IsActive: true}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ContactSetting{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&setting).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "contact settings updated", "data": setting})
}
