package handlers

import (
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

// ProfileHandler manages user profile endpoints.
type ProfileHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB, cfg *config.Config) *ProfileHandler {
	return &ProfileHandler{db: db, cfg: cfg}
}

func (h *ProfileHandler) currentUser(c *fiber.Ctx) (*models.User, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, services.NotFoundError("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetProfile returns authenticated user profile.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	return ok(c, user)
}

type updateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=2,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Age      *int    `json:"age" validate:"omitempty,min=1,max=120"`
	Pincode  *string `json:"pincode" validate:"omitempty,numeric,len=6"`
	Address  *string `json:"address" validate:"omitempty,max=500"`
}

// UpdateProfile updates user profile fields.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		updates["email"] = strings.TrimSpace(*req.Email)
	}
	if req.Age != nil {
		updates["age"] = *req.Age
	}
	if req.Pincode != nil {
		updates["pincode"] = *req.Pincode
	}
	if req.Address != nil {
		updates["address"] = strings.TrimSpace(*req.Address)
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	updates["updated_at"] = time.Now()

	if err := h.db.Model(user).Updates(updates).Error; err != nil {
		return err
	}
	if err := h.db.First(user, "id = ?", user.ID).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "profile updated", "data": user})
}

// UploadPhoto replaces the profile photo with the multipart "photo" file.
func (h *ProfileHandler) UploadPhoto(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("photo")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "photo is required")
	}
	if utils.MediaKind(fh) != "image" {
		return fiber.NewError(fiber.StatusBadRequest, "photo must be an image")
	}

	saved, err := utils.SaveUpload(c, h.cfg.UploadDir, utils.UploadProfilePhotos, fh)
	if err != nil {
		return err
	}

	previous := user.ProfilePhoto
	if err := h.db.Model(user).Update("profile_photo", saved.URL).Error; err != nil {
		utils.RemoveUpload(h.cfg.UploadDir, saved.URL)
		return err
	}
	if previous != "" {
		utils.RemoveUpload(h.cfg.UploadDir, previous)
	}

	return ok(c, fiber.Map{"profile_photo": saved.URL})
}
