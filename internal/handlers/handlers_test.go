package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/config"
	"github.com/example/cyclebees/internal/database"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/routes"
	"github.com/example/cyclebees/internal/services"
	"github.com/example/cyclebees/internal/utils"
)

type smsOutbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (o *smsOutbox) Send(_ context.Context, phone, message string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		o.last = map[string]string{}
	}
	o.last[phone] = message
	return nil
}

func (o *smsOutbox) code(phone string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	msg := o.last[phone]
	return msg[strings.LastIndex(msg, " ")+1:]
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	cfg    *config.Config
	outbox *smsOutbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	utils.PasswordCost = bcrypt.MinCost

	cfg := &config.Config{
		JWTSecret:            "test-secret",
		TokenExpires:         time.Hour,
		UploadDir:            t.TempDir(),
		CORSOrigins:          "*",
		RequestExpiry:        15 * time.Minute,
		PriceTolerance:       0.01,
		RepairMechanicCharge: 100,
		RentalDeliveryCharge: 50,
		OTPTTL:               5 * time.Minute,
	}

	db, err := database.Open("sqlite://"+filepath.Join(t.TempDir(), "api.db"), "silent")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.SeedAdmin(db, "admin", "admin-pass"))

	outbox := &smsOutbox{}
	svc := routes.NewServices(db, cfg, services.NewNotifier(nil, nil), services.NewGormOTPStore(db), outbox)
	app := routes.NewApp(cfg)
	routes.Register(app, db, cfg, svc)

	return &testEnv{app: app, db: db, cfg: cfg, outbox: outbox}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) userToken(t *testing.T, phone string) (models.User, string) {
	t.Helper()
	user := models.User{Phone: phone, FullName: "Asha Rider"}
	require.NoError(t, e.db.Create(&user).Error)
	token, err := utils.GenerateToken(e.cfg.JWTSecret, user.ID, utils.RoleUser, time.Hour)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	status, body := e.do(t, "POST", "/api/auth/admin/login", "", fiber.Map{"username": "admin", "password": "admin-pass"})
	require.Equal(t, fiber.StatusOK, status, body)
	return body["data"].(map[string]any)["token"].(string)
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, "GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestOTPRegistrationFlow(t *testing.T) {
	env := newTestEnv(t)
	const phone = "9876543210"

	status, body := env.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": phone})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotEmpty(t, data(body)["expires_at"])

	status, body = env.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": phone, "otp": env.outbox.code(phone)})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, data(body)["is_new_user"])

	status, body = env.do(t, "POST", "/api/auth/register", "", fiber.Map{"phone": phone, "full_name": "Asha Rider", "email": "asha@example.com"})
	require.Equal(t, fiber.StatusCreated, status, body)
	token := data(body)["token"].(string)

	status, body = env.do(t, "GET", "/api/auth/profile", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, phone, data(body)["phone"])

	// the verification was consumed by registration
	status, body = env.do(t, "POST", "/api/auth/register", "", fiber.Map{"phone": phone, "full_name": "Asha Rider"})
	assert.Equal(t, fiber.StatusUnauthorized, status, body)
	assert.Equal(t, false, body["success"])

	_, _ = env.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": phone})
	status, body = env.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": phone, "otp": env.outbox.code(phone)})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, false, data(body)["is_new_user"])
	assert.NotEmpty(t, data(body)["token"])
}

func TestValidationErrorsEnvelope(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, "POST", "/api/auth/register", "", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "validation failed", body["message"])

	errs, ok := body["errors"].([]any)
	require.True(t, ok, body)
	var fields []string
	for _, e := range errs {
		fields = append(fields, e.(map[string]any)["field"].(string))
	}
	assert.ElementsMatch(t, []string{"phone", "full_name"}, fields)
}

func TestAdminRoutesCheckRole(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.userToken(t, "9876543210")

	status, body := env.do(t, "GET", "/api/dashboard/admin/stats", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])

	status, body = env.do(t, "GET", "/api/dashboard/admin/stats", userToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, false, body["success"])

	status, body = env.do(t, "POST", "/api/auth/admin/login", "", fiber.Map{"username": "admin", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status, body)

	status, body = env.do(t, "GET", "/api/dashboard/admin/stats", env.adminToken(t), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1, data(body)["total_users"])
}

func TestRepairRequestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	user, userToken := env.userToken(t, "9876543210")
	adminToken := env.adminToken(t)

	svc := models.RepairService{Name: "Chain replacement", Price: 500, IsActive: true}
	require.NoError(t, env.db.Create(&svc).Error)
	slot := models.TimeSlot{Label: "Morning", StartTime: "09:00", EndTime: "12:00", IsActive: true}
	require.NoError(t, env.db.Create(&slot).Error)
	coupon := models.Coupon{
		Code: "FIRST50", DiscountType: services.DiscountPercentage, DiscountValue: 50,
		MaxDiscount: func() *float64 { v := 200.0; return &v }(), MinAmount: 100,
		ApplicableItems: models.TagSet{services.TagRepairServices},
		ExpiresAt:       time.Now().UTC().Add(time.Hour), IsActive: true,
	}
	require.NoError(t, env.db.Create(&coupon).Error)

	status, body := env.do(t, "POST", "/api/coupon/apply", userToken, fiber.Map{"code": "first50", "request_type": "repair", "total_amount": 600})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 200, data(body)["discount"])
	assert.EqualValues(t, 400, data(body)["net_amount"])

	status, body = env.do(t, "POST", "/api/coupon/apply", userToken, fiber.Map{"code": "NOPE", "request_type": "repair", "total_amount": 600})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, services.CodeCouponNotFound, body["code"])

	status, body = env.do(t, "POST", "/api/repair/requests", userToken, fiber.Map{
		"service_ids":    []string{svc.ID.String()},
		"time_slot_id":   slot.ID.String(),
		"contact_number": "9876543210",
		"email":          "asha@example.com",
		"address":        "12 MG Road",
		"coupon_code":    "FIRST50",
		"total_amount":   600,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	sub := data(body)
	assert.Equal(t, services.StatusPending, sub["status"])
	assert.EqualValues(t, 400, sub["net_amount"])
	requestID := sub["request_id"].(string)

	path := "/api/repair/admin/requests/" + requestID + "/status"
	status, body = env.do(t, "PATCH", path, userToken, fiber.Map{"status": "approved"})
	assert.Equal(t, fiber.StatusForbidden, status, body)

	status, body = env.do(t, "PATCH", path, adminToken, fiber.Map{"status": "approved"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, services.StatusApproved, data(body)["status"])

	status, body = env.do(t, "PATCH", path, adminToken, fiber.Map{"status": "completed"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, services.CodeInvalidTransition, body["code"])
	assert.Equal(t, services.StatusApproved, body["from"])
	assert.Equal(t, services.StatusCompleted, body["to"])

	status, body = env.do(t, "GET", "/api/repair/requests/"+requestID, userToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, services.StatusApproved, data(body)["status"])

	_, otherToken := env.userToken(t, "9123456789")
	status, _ = env.do(t, "GET", "/api/repair/requests/"+requestID, otherToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = env.do(t, "GET", "/api/notifications", userToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	notes := body["data"].([]any)
	require.Len(t, notes, 1)
	note := notes[0].(map[string]any)
	assert.Equal(t, user.ID.String(), note["user_id"])
	assert.Nil(t, note["read_at"])

	status, body = env.do(t, "PATCH", "/api/notifications/"+note["id"].(string)+"/read", userToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotNil(t, data(body)["read_at"])

	status, body = env.do(t, "GET", "/api/notifications?unread=true", userToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Empty(t, body["data"])

	status, body = env.do(t, "GET", "/api/repair/requests?status=approved", userToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["data"].([]any), 1)
}

func TestRepairRequestUnknownID(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	status, body := env.do(t, "PATCH", "/api/repair/admin/requests/"+uuid.NewString()+"/status", adminToken, fiber.Map{"status": "approved"})
	assert.Equal(t, fiber.StatusNotFound, status, body)

	status, _ = env.do(t, "GET", "/api/repair/admin/requests/not-a-uuid", adminToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestContactSettings(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	status, body := env.do(t, "GET", "/api/contact/settings", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "phone", data(body)["type"])

	status, body = env.do(t, "POST", "/api/contact/admin/contact-settings", adminToken, fiber.Map{"type": "email", "value": "not-an-email"})
	assert.Equal(t, fiber.StatusBadRequest, status, body)

	status, body = env.do(t, "POST", "/api/contact/admin/contact-settings", adminToken, fiber.Map{"type": "email", "value": "help@cyclebees.in"})
	require.Equal(t, fiber.StatusOK, status, body)
	status, body = env.do(t, "POST", "/api/contact/admin/contact-settings", adminToken, fiber.Map{"type": "link", "value": "https://wa.me/919876543210"})
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = env.do(t, "GET", "/api/contact/settings", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "link", data(body)["type"])

	var active int64
	require.NoError(t, env.db.Model(&models.ContactSetting{}).Where("is_active = ?", true).Count(&active).Error)
	assert.EqualValues(t, 1, active)
}
