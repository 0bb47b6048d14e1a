package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

// MarketingHandler manages promotional cards.
type MarketingHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewMarketingHandler constructs MarketingHandler.
func NewMarketingHandler(db *gorm.DB, cfg *config.Config) *MarketingHandler {
	return &MarketingHandler{db: db, cfg: cfg}
}

// ListCards returns active cards inside their display window, in display order.
func (h *MarketingHandler) ListCards(c *fiber.Ctx) error {
	var items []models.PromotionalCard
	if err := h.db.Where("is_active = ?", true).
		Order("display_order asc").Order("created_at desc").
		Find(&items).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	visible := make([]models.PromotionalCard, 0, len(items))
	for _, card := range items {
		if card.Visible(now) {
			visible = append(visible, card)
		}
	}
	return ok(c, visible)
}

// AdminListCards returns every card.
func (h *MarketingHandler) AdminListCards(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	var total int64
	if err := h.db.Model(&models.PromotionalCard{}).Count(&total).Error; err != nil {
		return err
	}
	var items []models.PromotionalCard
	if err := h.db.Limit(pg.Limit).Offset(pg.Offset).
		Order("display_order asc").Find(&items).Error; err != nil {
		return err
	}
	return paginated(c, items, pg, total)
}

type cardInput struct {
	Title        string     `json:"title" validate:"required,max=120"`
	Description  string     `json:"description" validate:"max=500"`
	ImageURL     string     `json:"image_url"`
	ExternalLink string     `json:"external_link" validate:"omitempty,url"`
	DisplayOrder int        `json:"display_order" validate:"gte=0"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	IsActive     *bool      `json:"is_active"`
}

func (in cardInput) apply(card *models.PromotionalCard) {
	card.Title = strings.TrimSpace(in.Title)
	card.Description = strings.TrimSpace(in.Description)
	if in.ImageURL != "" {
		card.ImageURL = in.ImageURL
	}
	card.ExternalLink = in.ExternalLink
	card.DisplayOrder = in.DisplayOrder
	card.StartsAt = in.StartsAt
	card.EndsAt = in.EndsAt
	card.IsActive = in.IsActive == nil || *in.IsActive
}

// parseCard reads a card from JSON or multipart and stores an optional "image" file.
func (h *MarketingHandler) parseCard(c *fiber.Ctx) (cardInput, error) {
	var in cardInput
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		in.Title = c.FormValue("title")
		in.Description = c.FormValue("description")
		in.ExternalLink = c.FormValue("external_link")
		in.DisplayOrder, _ = strconv.Atoi(c.FormValue("display_order", "0"))
		in.StartsAt = parseFormTime(c.FormValue("starts_at"))
		in.EndsAt = parseFormTime(c.FormValue("ends_at"))
		if raw := c.FormValue("is_active"); raw != "" {
			v := raw == "true" || raw == "1"
			in.IsActive = &v
		}
	} else if err := c.BodyParser(&in); err != nil {
		return in, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if fields := utils.ValidateStruct(in); fields != nil {
		return in, services.ValidationError("validation failed", fields...)
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return in, services.ValidationError("validation failed", utils.FieldError{Field: "ends_at", Message: "ends_at must be after starts_at"})
	}

	if fh, err := c.FormFile("image"); err == nil {
		if utils.MediaKind(fh) != "image" {
			return in, fiber.NewError(fiber.StatusBadRequest, "image must be an image file")
		}
		saved, err := utils.SaveUpload(c, h.cfg.UploadDir, utils.UploadPromotional, fh)
		if err != nil {
			return in, err
		}
		in.ImageURL = saved.URL
	}
	return in, nil
}

func parseFormTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// CreateCard adds a promotional card.
func (h *MarketingHandler) CreateCard(c *fiber.Ctx) error {
	in, err := h.parseCard(c)
	if err != nil {
		return err
	}
	var card models.PromotionalCard
	in.apply(&card)
	if err := h.db.Create(&card).Error; err != nil {
		return err
	}
	return created(c, "promotional card created", card)
}

// UpdateCard edits a promotional card.
func (h *MarketingHandler) UpdateCard(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var card models.PromotionalCard
	if err := h.db.First(&card, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("promotional card not found")
		}
		return err
	}

	in, err := h.parseCard(c)
	if err != nil {
		return err
	}
	previous := card.ImageURL
	in.apply(&card)
	if err := h.db.Save(&card).Error; err != nil {
		return err
	}
	if previous != "" && previous != card.ImageURL {
		utils.RemoveUpload(h.cfg.UploadDir, previous)
	}
	return ok(c, card)
}

// DeleteCard removes a promotional card and its image.
func (h *MarketingHandler) DeleteCard(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var card models.PromotionalCard
	if err := h.db.First(&card, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("promotional card not found")
		}
		return err
	}
	if err := h.db.Delete(&card).Error; err != nil {
		return err
	}
	utils.RemoveUpload(h.cfg.UploadDir, card.ImageURL)
	return c.SendStatus(fiber.StatusNoContent)
}
