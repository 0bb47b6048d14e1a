package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/middleware"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

// RentalHandler serves rental requests and the bicycle catalogue.
type RentalHandler struct {
	db         *gorm.DB
	cfg        *config.Config
	submission *services.SubmissionService
	status     *services.StatusService
}

// NewRentalHandler constructs RentalHandler.
func NewRentalHandler(db *gorm.DB, cfg *config.Config, submission *services.SubmissionService, status *services.StatusService) *RentalHandler {
	return &RentalHandler{db: db, cfg: cfg, submission: submission, status: status}
}

// CreateRequest submits a rental request.
func (h *RentalHandler) CreateRequest(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var draft services.RentalDraft
	if err := c.BodyParser(&draft); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub, err := h.submission.SubmitRental(c.UserContext(), userID, draft)
	if err != nil {
		return err
	}
	if sub.Replayed {
		return c.JSON(fiber.Map{"success": true, "message": "rental request already submitted", "data": sub})
	}
	return created(c, "rental request submitted", sub)
}

// ListMyRequests returns the caller's rental requests.
func (h *RentalHandler) ListMyRequests(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	items, total, err := services.ListRentalRequests(c.UserContext(), h.db, services.RequestFilter{
		UserID: &userID,
		Status: c.Query("status"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}, time.Now().UTC())
	if err != nil {
		return err
	}
	return paginated(c, items, pg, total)
}

// GetMyRequest returns one of the caller's rental requests.
func (h *RentalHandler) GetMyRequest(c *fiber.Ctx) error {
	userID, found := middleware.GetCurrentUserID(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	req, err := services.LoadRequest(c.UserContext(), h.db, services.RequestRental, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if req.(*models.RentalRequest).UserID != userID {
		return services.NotFoundError("rental request not found")
	}
	return ok(c, req)
}

// AdminListRequests returns all rental requests, optionally filtered by ?status=.
func (h *RentalHandler) AdminListRequests(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	items, total, err := services.ListRentalRequests(c.UserContext(), h.db, services.RequestFilter{
		Status: c.Query("status"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}, time.Now().UTC())
	if err != nil {
		return err
	}
	return paginated(c, items, pg, total)
}

// AdminGetRequest returns any rental request.
func (h *RentalHandler) AdminGetRequest(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	req, err := services.LoadRequest(c.UserContext(), h.db, services.RequestRental, id, time.Now().UTC())
	if err != nil {
		return err
	}
	return ok(c, req)
}

// AdminUpdateStatus moves a rental request through its lifecycle.
func (h *RentalHandler) AdminUpdateStatus(c *fiber.Ctx) error {
	return updateStatus(c, h.status, services.RequestRental)
}

// ListBicycles returns bicycles available for rent.
func (h *RentalHandler) ListBicycles(c *fiber.Ctx) error {
	var items []models.Bicycle
	if err := h.db.Where("is_available = ?", true).Order("name asc").Find(&items).Error; err != nil {
		return err
	}
	return ok(c, items)
}

// GetBicycle returns one bicycle.
func (h *RentalHandler) GetBicycle(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var bike models.Bicycle
	if err := h.db.First(&bike, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("bicycle not found")
		}
		return err
	}
	return ok(c, bike)
}

type bicycleInput struct {
	Name        string  `json:"name" form:"name" validate:"required,max=120"`
	Model       string  `json:"model" form:"model" validate:"max=120"`
	Description string  `json:"description" form:"description" validate:"max=1000"`
	HourlyRate  float64 `json:"hourly_rate" form:"hourly_rate" validate:"gte=0"`
	DailyRate   float64 `json:"daily_rate" form:"daily_rate" validate:"gte=0"`
	WeeklyRate  float64 `json:"weekly_rate" form:"weekly_rate" validate:"gte=0"`
	IsAvailable *bool   `json:"is_available" form:"is_available"`
}

func (in bicycleInput) apply(bike *models.Bicycle) {
	bike.Name = strings.TrimSpace(in.Name)
	bike.Model = strings.TrimSpace(in.Model)
	bike.Description = strings.TrimSpace(in.Description)
	bike.HourlyRate = in.HourlyRate
	bike.DailyRate = in.DailyRate
	bike.WeeklyRate = in.WeeklyRate
	bike.IsAvailable = in.IsAvailable == nil || *in.IsAvailable
}

// parseBicycle reads a bicycle from JSON or multipart and stores an optional "image" file.
func (h *RentalHandler) parseBicycle(c *fiber.Ctx) (bicycleInput, string, error) {
	var in bicycleInput
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		in.Name = c.FormValue("name")
		in.Model = c.FormValue("model")
		in.Description = c.FormValue("description")
		in.HourlyRate, _ = strconv.ParseFloat(c.FormValue("hourly_rate", "0"), 64)
		in.DailyRate, _ = strconv.ParseFloat(c.FormValue("daily_rate", "0"), 64)
		in.WeeklyRate, _ = strconv.ParseFloat(c.FormValue("weekly_rate", "0"), 64)
		if raw := c.FormValue("is_available"); raw != "" {
			v := raw == "true" || raw == "1"
			in.IsAvailable = &v
		}
	} else if err := c.BodyParser(&in); err != nil {
		return in, "", fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if fields := utils.ValidateStruct(in); fields != nil {
		return in, "", services.ValidationError("validation failed", fields...)
	}
	if in.HourlyRate == 0 && in.DailyRate == 0 && in.WeeklyRate == 0 {
		return in, "", services.ValidationError("validation failed", utils.FieldError{Field: "hourly_rate", Message: "at least one rate is required"})
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return in, "", nil
	}
	if utils.MediaKind(fh) != "image" {
		return in, "", fiber.NewError(fiber.StatusBadRequest, "image must be an image file")
	}
	saved, err := utils.SaveUpload(c, h.cfg.UploadDir, utils.UploadBicycles, fh)
	if err != nil {
		return in, "", err
	}
	return in, saved.URL, nil
}

// AdminListBicycles returns every bicycle.
func (h *RentalHandler) AdminListBicycles(c *fiber.Ctx) error {
	var items []models.Bicycle
	if err := h.db.Order("created_at desc").Find(&items).Error; err != nil {
		return err
	}
	return ok(c, items)
}

// AdminCreateBicycle adds a bicycle.
func (h *RentalHandler) AdminCreateBicycle(c *fiber.Ctx) error {
	in, image, err := h.parseBicycle(c)
	if err != nil {
		return err
	}

	var bike models.Bicycle
	in.apply(&bike)
	bike.Image = image
	if err := h.db.Create(&bike).Error; err != nil {
		utils.RemoveUpload(h.cfg.UploadDir, image)
		return err
	}
	return created(c, "bicycle created", bike)
}

// AdminUpdateBicycle edits a bicycle, replacing its image when a new one is uploaded.
func (h *RentalHandler) AdminUpdateBicycle(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var bike models.Bicycle
	if err := h.db.First(&bike, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("bicycle not found")
		}
		return err
	}

	in, image, err := h.parseBicycle(c)
	if err != nil {
		return err
	}

	previous := bike.Image
	in.apply(&bike)
	if image != "" {
		bike.Image = image
	}
	if err := h.db.Save(&bike).Error; err != nil {
		utils.RemoveUpload(h.cfg.UploadDir, image)
		return err
	}
	if image != "" && previous != "" {
		utils.RemoveUpload(h.cfg.UploadDir, previous)
	}
	return ok(c, bike)
}

// AdminDeleteBicycle withdraws a bicycle from rental.
func (h *RentalHandler) AdminDeleteBicycle(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	res := h.db.Model(&models.Bicycle{}).Where("id = ?", id).Update("is_available", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.NotFoundError("bicycle not found")
	}
	return c.JSON(fiber.Map{"success": true, "message": "bicycle withdrawn"})
}
