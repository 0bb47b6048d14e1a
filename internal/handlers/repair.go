package handlers

import (
	"encoding/json"
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

// RepairHandler serves repair requests and the repair catalogue.
type RepairHandler struct {
	db         *gorm.DB
	cfg        *config.Config
	submission *services.SubmissionService
	status     *services.StatusService
}

// NewRepairHandler constructs RepairHandler.
func NewRepairHandler(db *gorm.DB, cfg *config.Config, submission *services.SubmissionService, status *services.StatusService) *RepairHandler {
	return &RepairHandler{db: db, cfg: cfg, submission: submission, status: status}
}

// CreateRequest submits a repair request. Accepts JSON or multipart with up to 5
// "images" and one "video".
func (h *RepairHandler) CreateRequest(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var draft services.RepairDraft
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		saved, err := h.parseMultipart(c, &draft)
		if err != nil {
			return err
		}
		draft.Media = saved
	} else if err := c.BodyParser(&draft); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub, err := h.submission.SubmitRepair(c.UserContext(), userID, draft)
	if err != nil || sub.Replayed {
		for _, m := range draft.Media {
			utils.RemoveUpload(h.cfg.UploadDir, m.URL)
		}
	}
	if err != nil {
		return err
	}

	if sub.Replayed {
		return c.JSON(fiber.Map{"success": true, "message": "repair request already submitted", "data": sub})
	}
	return created(c, "repair request submitted", sub)
}

func (h *RepairHandler) parseMultipart(c *fiber.Ctx, draft *services.RepairDraft) ([]services.UploadedMedia, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
	}

	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	draft.ServiceIDs = parseIDList(form.Value["service_ids"])
	draft.TimeSlotID = value("time_slot_id")
	draft.PreferredDate = value("preferred_date")
	draft.ContactNumber = value("contact_number")
	draft.AlternateNumber = value("alternate_number")
	draft.Email = value("email")
	draft.Address = value("address")
	draft.Notes = value("notes")
	draft.PaymentMethod = value("payment_method")
	draft.CouponCode = value("coupon_code")
	draft.DraftToken = value("draft_token")
	if raw := value("total_amount"); raw != "" {
		total, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, services.ValidationError("validation failed", utils.FieldError{Field: "total_amount", Message: "total_amount must be a number"})
		}
		draft.TotalAmount = &total
	}

	images := form.File["images"]
	videos := form.File["video"]
	if len(images) > services.MaxRepairImages {
		return nil, services.ValidationError("too many images", utils.FieldError{Field: "images", Message: "at most 5 images are allowed"})
	}
	if len(videos) > services.MaxRepairVideos {
		return nil, services.ValidationError("too many videos", utils.FieldError{Field: "video", Message: "at most 1 video is allowed"})
	}

	var saved []services.UploadedMedia
	cleanup := func() {
		for _, m := range saved {
			utils.RemoveUpload(h.cfg.UploadDir, m.URL)
		}
	}
	for _, fh := range append(images, videos...) {
		file, err := utils.SaveUpload(c, h.cfg.UploadDir, utils.UploadRepairRequests, fh)
		if err != nil {
			cleanup()
			return nil, err
		}
		saved = append(saved, services.UploadedMedia{URL: file.URL, Kind: file.Kind, Size: file.Size})
	}
	return saved, nil
}

// parseIDList accepts repeated fields, a JSON array, or a comma separated list.
func parseIDList(values []string) []string {
	var ids []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "[") {
			var arr []string
			if err := json.Unmarshal([]byte(v), &arr); err == nil {
				ids = append(ids, arr...)
				continue
			}
		}
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
	}
	return ids
}

// ListMyRequests returns the caller's repair requests.
func (h *RepairHandler) ListMyRequests(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	items, total, err := services.ListRepairRequests(c.UserContext(), h.db, services.RequestFilter{
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

// GetMyRequest returns one of the caller's repair requests.
func (h *RepairHandler) GetMyRequest(c *fiber.Ctx) error {
	userID, found := middleware.GetCurrentUserID(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	req, err := services.LoadRequest(c.UserContext(), h.db, services.RequestRepair, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if req.(*models.RepairRequest).UserID != userID {
		return services.NotFoundError("repair request not found")
	}
	return ok(c, req)
}

// AdminListRequests returns all repair requests, optionally filtered by ?status=.
func (h *RepairHandler) AdminListRequests(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	items, total, err := services.ListRepairRequests(c.UserContext(), h.db, services.RequestFilter{
		Status: c.Query("status"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}, time.Now().UTC())
	if err != nil {
		return err
	}
	return paginated(c, items, pg, total)
}

// AdminGetRequest returns any repair request.
func (h *RepairHandler) AdminGetRequest(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	req, err := services.LoadRequest(c.UserContext(), h.db, services.RequestRepair, id, time.Now().UTC())
	if err != nil {
		return err
	}
	return ok(c, req)
}

// AdminUpdateStatus moves a repair request through its lifecycle.
func (h *RepairHandler) AdminUpdateStatus(c *fiber.Ctx) error {
	return updateStatus(c, h.status, services.RequestRepair)
}

type statusUpdateRequest struct {
	Status        string `json:"status" validate:"required"`
	RejectionNote string `json:"rejection_note"`
}

func updateStatus(c *fiber.Ctx, status *services.StatusService, rt services.RequestType) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var req statusUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	updated, err := status.UpdateStatus(c.UserContext(), services.StatusChange{
		RequestType:   rt,
		RequestID:     id,
		ActorRole:     identity.Role,
		Status:        req.Status,
		RejectionNote: req.RejectionNote,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "status updated", "data": updated})
}

// ListServices returns active repair services.
func (h *RepairHandler) ListServices(c *fiber.Ctx) error {
	var items []models.RepairService
	if err := h.db.Where("is_active = ?", true).Order("name asc").Find(&items).Error; err != nil {
		return err
	}
	return ok(c, items)
}

// ListTimeSlots returns active time slots.
func (h *RepairHandler) ListTimeSlots(c *fiber.Ctx) error {
	var items []models.TimeSlot
	if err := h.db.Where("is_active = ?", true).Order("start_time asc").Find(&items).Error; err != nil {
		return err
	}
	return ok(c, items)
}

type repairServiceInput struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description" validate:"max=1000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category"`
	IsActive    *bool   `json:"is_active"`
}

func (in repairServiceInput) apply(svc *models.RepairService) {
	svc.Name = strings.TrimSpace(in.Name)
	svc.Description = strings.TrimSpace(in.Description)
	svc.Price = in.Price
	svc.Category = in.Category
	if svc.Category == "" {
		svc.Category = services.TagRepairServices
	}
	svc.IsActive = in.IsActive == nil || *in.IsActive
}

// AdminListServices returns every repair service, including inactive ones.
func (h *RepairHandler) AdminListServices(c *fiber.Ctx) error {
	var items []models.RepairService
	if err := h.db.Order("created_at desc").Find(&items).Error; err != nil {
		return err
	}
	return ok(c, items)
}

// AdminCreateService adds a repair service.
func (h *RepairHandler) AdminCreateService(c *fiber.Ctx) error {
	var in repairServiceInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	var svc models.RepairService
	in.apply(&svc)
	if err := h.db.Create(&svc).Error; err != nil {
		return err
	}
	return created(c, "service created", svc)
}

// AdminUpdateService edits a repair service. Existing requests keep their priced lines.
func (h *RepairHandler) AdminUpdateService(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var in repairServiceInput
	if err := parseBody(c, &in); err != nil {
		return err
	}

	var svc models.RepairService
	if err := h.db.First(&svc, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return services.NotFoundError("service not found")
		}
		return err
	}
	in.apply(&svc)
	if err := h.db.Save(&svc).Error; err != nil {
		return err
	}
	return ok(c, svc)
}

// AdminDeleteService deactivates a repair service.
func (h *RepairHandler) AdminDeleteService(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	res := h.db.Model(&models.RepairService{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.NotFoundError("service not found")
	}
	return c.JSON(fiber.Map{"success": true, "message": "service deactivated"})
}

type timeSlotInput struct {
	Label     string `json:"label" validate:"required,max=60"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	IsActive  *bool  `json:"is_active"`
}

// AdminCreateTimeSlot adds a bookable time slot.
func (h *RepairHandler) AdminCreateTimeSlot(c *fiber.Ctx) error {
	var in timeSlotInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if in.EndTime <= in.StartTime {
		return services.ValidationError("validation failed", utils.FieldError{Field: "end_time", Message: "end_time must be after start_time"})
	}

	slot := models.TimeSlot{
		Label:     strings.TrimSpace(in.Label),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		IsActive:  in.IsActive == nil || *in.IsActive,
	}
	if err := h.db.Create(&slot).Error; err != nil {
		return err
	}
	return created(c, "time slot created", slot)
}

// AdminDeleteTimeSlot deactivates a time slot.
func (h *RepairHandler) AdminDeleteTimeSlot(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	res := h.db.Model(&models.TimeSlot{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.NotFoundError("time slot not found")
	}
	return c.JSON(fiber.Map{"success": true, "message": "time slot deactivated"})
}
