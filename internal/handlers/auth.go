package handlers

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
	otp *services.OTPService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, otp *services.OTPService) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, otp: otp}
}

type sendOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// SendOTP issues a login code to the phone.
func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	expiresAt, err := h.otp.Send(c.UserContext(), req.Phone)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "OTP sent successfully",
		"data":    fiber.Map{"expires_at": expiresAt},
	})
}

type verifyOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// VerifyOTP checks the code and signs the user in, or reports that registration is needed.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	phone, err := services.NormalizePhone(req.Phone)
	if err != nil {
		return err
	}
	if err := h.otp.Verify(c.UserContext(), phone, req.OTP); err != nil {
		return err
	}

	var user models.User
	if err := h.db.Where("phone = ?", phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{
				"success": true,
				"message": "OTP verified, registration required",
				"data":    fiber.Map{"is_new_user": true, "phone": phone},
			})
		}
		return err
	}

	// Existing users sign in directly, so the verification cannot be reused for registration.
	if rec, err := h.otp.RequireVerified(c.UserContext(), phone); err == nil {
		if err := h.otp.Consume(c.UserContext(), rec); err != nil {
			return err
		}
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, utils.RoleUser, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return ok(c, fiber.Map{"is_new_user": false, "token": token, "user": user})
}

type registerRequest struct {
	Phone    string `json:"phone" validate:"required"`
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Age      int    `json:"age" validate:"omitempty,min=1,max=120"`
	Pincode  string `json:"pincode" validate:"omitempty,numeric,len=6"`
	Address  string `json:"address" validate:"max=500"`
}

// Register creates the account of a phone that verified an OTP in the last 15 minutes.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	phone, err := services.NormalizePhone(req.Phone)
	if err != nil {
		return err
	}

	rec, err := h.otp.RequireVerified(c.UserContext(), phone)
	if err != nil {
		return err
	}

	var existing models.User
	if err := h.db.Where("phone = ?", phone).First(&existing).Error; err == nil {
		return services.ConflictError("user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	user := models.User{
		Phone:    phone,
		FullName: strings.TrimSpace(req.FullName),
		Email:    strings.TrimSpace(req.Email),
		Age:      req.Age,
		Pincode:  req.Pincode,
		Address:  strings.TrimSpace(req.Address),
	}
	if err := h.db.Create(&user).Error; err != nil {
		return err
	}
	if err := h.otp.Consume(c.UserContext(), rec); err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, utils.RoleUser, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	logger.Log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return created(c, "registration successful", fiber.Map{"token": token, "user": user})
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminLogin authenticates an operator by username and password.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req adminLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	var admin models.Admin
	if err := h.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.UnauthorizedError("invalid credentials")
		}
		return err
	}

	if !utils.CheckPassword(admin.PasswordHash, req.Password) {
		return services.UnauthorizedError("invalid credentials")
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, admin.ID, utils.RoleAdmin, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return ok(c, fiber.Map{
		"token": token,
		"admin": fiber.Map{"id": admin.ID, "username": admin.Username},
	})
}
