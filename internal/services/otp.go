package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

const (
	otpPurposeLogin     = "login"
	otpMaxAttempts      = 5
	otpVerifiedValidity = 15 * time.Minute
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// OTPRecord is the latest code issued to a phone.
type OTPRecord struct {
	ID         string     `json:"id"`
	Phone      string     `json:"phone"`
	Code       string     `json:"code"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Attempts   int        `json:"attempts"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Used       bool       `json:"used"`
}

// OTPStore keeps issued codes. Latest returns nil when no code exists.
type OTPStore interface {
	Save(ctx context.Context, rec OTPRecord) error
	Latest(ctx context.Context, phone string) (*OTPRecord, error)
	IncrementAttempts(ctx context.Context, rec *OTPRecord) error
	MarkVerified(ctx context.Context, rec *OTPRecord, at time.Time) error
	MarkUsed(ctx context.Context, rec *OTPRecord) error
}

// GormOTPStore keeps codes in the otp_codes table.
type GormOTPStore struct {
	db *gorm.DB
}

// NewGormOTPStore constructs a GormOTPStore.
func NewGormOTPStore(db *gorm.DB) *GormOTPStore {
	return &GormOTPStore{db: db}
}

func (s *GormOTPStore) Save(ctx context.Context, rec OTPRecord) error {
	row := models.OTPCode{
		Phone:     rec.Phone,
		Code:      rec.Code,
		Purpose:   otpPurposeLogin,
		ExpiresAt: rec.ExpiresAt,
	}
	if rec.ID != "" {
		row.ID = uuid.MustParse(rec.ID)
	}
	return wrapStore(s.db.WithContext(ctx).Create(&row).Error, "save otp")
}

func (s *GormOTPStore) Latest(ctx context.Context, phone string) (*OTPRecord, error) {
	var row models.OTPCode
	err := s.db.WithContext(ctx).
		Where("phone = ? AND purpose = ?", phone, otpPurposeLogin).
		Order("created_at desc").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStore(err, "load otp")
	}
	return &OTPRecord{
		ID:         row.ID.String(),
		Phone:      row.Phone,
		Code:       row.Code,
		ExpiresAt:  row.ExpiresAt,
		Attempts:   row.Attempts,
		VerifiedAt: row.VerifiedAt,
		Used:       row.Used,
	}, nil
}

func (s *GormOTPStore) IncrementAttempts(ctx context.Context, rec *OTPRecord) error {
	err := s.db.WithContext(ctx).Model(&models.OTPCode{}).
		Where("id = ?", rec.ID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return wrapStore(err, "increment otp attempts")
	}
	rec.Attempts++
	return nil
}

func (s *GormOTPStore) MarkVerified(ctx context.Context, rec *OTPRecord, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.OTPCode{}).
		Where("id = ?", rec.ID).
		Update("verified_at", at).Error
	if err != nil {
		return wrapStore(err, "mark otp verified")
	}
	rec.VerifiedAt = &at
	return nil
}

func (s *GormOTPStore) MarkUsed(ctx context.Context, rec *OTPRecord) error {
	err := s.db.WithContext(ctx).Model(&models.OTPCode{}).
		Where("id = ?", rec.ID).
		Update("used", true).Error
	if err != nil {
		return wrapStore(err, "mark otp used")
	}
	rec.Used = true
	return nil
}

// RedisOTPStore keeps the latest code per phone under a key with a TTL.
type RedisOTPStore struct {
	rdb *redis.Client
}

// NewRedisOTPStore constructs a RedisOTPStore.
func NewRedisOTPStore(rdb *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{rdb: rdb}
}

func otpKey(phone string) string { return "otp:" + phone }

func (s *RedisOTPStore) put(ctx context.Context, rec *OTPRecord, ttl time.Duration) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, otpKey(rec.Phone), body, ttl).Err(); err != nil {
		return wrapStore(err, "write otp")
	}
	return nil
}

func (s *RedisOTPStore) Save(ctx context.Context, rec OTPRecord) error {
	ttl := time.Until(rec.ExpiresAt) + otpVerifiedValidity
	return s.put(ctx, &rec, ttl)
}

func (s *RedisOTPStore) Latest(ctx context.Context, phone string) (*OTPRecord, error) {
	body, err := s.rdb.Get(ctx, otpKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, wrapStore(err, "read otp")
	}
	var rec OTPRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, wrapStore(err, "decode otp")
	}
	return &rec, nil
}

func (s *RedisOTPStore) IncrementAttempts(ctx context.Context, rec *OTPRecord) error {
	rec.Attempts++
	return s.put(ctx, rec, redis.KeepTTL)
}

func (s *RedisOTPStore) MarkVerified(ctx context.Context, rec *OTPRecord, at time.Time) error {
	rec.VerifiedAt = &at
	return s.put(ctx, rec, otpVerifiedValidity)
}

func (s *RedisOTPStore) MarkUsed(ctx context.Context, rec *OTPRecord) error {
	rec.Used = true
	return s.put(ctx, rec, redis.KeepTTL)
}

// OTPService issues and verifies phone login codes.
type OTPService struct {
	store  OTPStore
	sender SMSSender
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewOTPService constructs an OTPService. A nil sender logs codes instead of sending them.
func NewOTPService(store OTPStore, sender SMSSender, ttl time.Duration) *OTPService {
	if sender == nil {
		sender = LogSender{}
	}
	return &OTPService{
		store:  store,
		sender: sender,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Component("otp"),
	}
}

// NormalizePhone strips separators and validates the remaining digits.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	if !phonePattern.MatchString(cleaned) {
		return "", ValidationError("invalid phone number", utils.FieldError{Field: "phone", Message: "phone must be 10 to 15 digits"})
	}
	return cleaned, nil
}

// Send issues a fresh code to phone and returns its expiry.
func (s *OTPService) Send(ctx context.Context, phone string) (time.Time, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return time.Time{}, err
	}

	code, err := generateOTP()
	if err != nil {
		return time.Time{}, InternalError(err, "generate otp")
	}

	rec := OTPRecord{
		ID:        uuid.NewString(),
		Phone:     phone,
		Code:      code,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return time.Time{}, err
	}

	if err := s.sender.Send(ctx, phone, fmt.Sprintf("Your Cycle-Bees verification code is %s", code)); err != nil {
		s.log.Error().Err(err).Str("phone", phone).Msg("send otp")
		return time.Time{}, InternalError(err, "failed to send otp")
	}
	return rec.ExpiresAt, nil
}

// Verify checks code against the latest code issued to phone.
func (s *OTPService) Verify(ctx context.Context, phone, code string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ValidationError("otp is required", utils.FieldError{Field: "otp", Message: "otp is required"})
	}

	rec, err := s.store.Latest(ctx, phone)
	if err != nil {
		return err
	}
	now := s.now()
	if rec == nil || rec.Used || rec.VerifiedAt != nil || !rec.ExpiresAt.After(now) {
		return UnauthorizedError("otp expired or not requested")
	}
	if rec.Attempts >= otpMaxAttempts {
		return UnauthorizedError("too many attempts, request a new otp")
	}
	if rec.Code != code {
		if err := s.store.IncrementAttempts(ctx, rec); err != nil {
			return err
		}
		return UnauthorizedError("invalid otp")
	}
	return s.store.MarkVerified(ctx, rec, now)
}

// RequireVerified succeeds when phone verified a code within the last 15 minutes
// that has not been consumed by a registration yet.
func (s *OTPService) RequireVerified(ctx context.Context, phone string) (*OTPRecord, error) {
	rec, err := s.store.Latest(ctx, phone)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Used || rec.VerifiedAt == nil || s.now().Sub(*rec.VerifiedAt) > otpVerifiedValidity {
		return nil, UnauthorizedError("phone number is not verified")
	}
	return rec, nil
}

// Consume marks a verified code as used.
func (s *OTPService) Consume(ctx context.Context, rec *OTPRecord) error {
	return s.store.MarkUsed(ctx, rec)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
