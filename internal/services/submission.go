package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

// Media limits for a repair request.
const (
	MaxRepairImages = 5
	MaxRepairVideos = 1
)

// RepairDraft is the user's repair booking as submitted.
type RepairDraft struct {
	ServiceIDs      []string `json:"service_ids" validate:"required,min=1,dive,uuid"`
	TimeSlotID      string   `json:"time_slot_id" validate:"required,uuid"`
	PreferredDate   string   `json:"preferred_date"`
	ContactNumber   string   `json:"contact_number" validate:"required,min=10,max=15"`
	AlternateNumber string   `json:"alternate_number" validate:"omitempty,min=10,max=15"`
	Email           string   `json:"email" validate:"required,email"`
	Address         string   `json:"address" validate:"required"`
	Notes           string   `json:"notes" validate:"max=1000"`
	PaymentMethod   string   `json:"payment_method" validate:"omitempty,oneof=cash online"`
	CouponCode      string   `json:"coupon_code"`
	TotalAmount     *float64 `json:"total_amount"`
	DraftToken      string   `json:"draft_token" validate:"max=64"`

	Media []UploadedMedia `json:"-"`
}

// RentalDraft is the user's rental booking as submitted.
type RentalDraft struct {
	BicycleID       string   `json:"bicycle_id" validate:"required,uuid"`
	DurationType    string   `json:"duration_type" validate:"required,oneof=hourly daily weekly"`
	Duration        int      `json:"duration" validate:"required,min=1"`
	ContactNumber   string   `json:"contact_number" validate:"required,min=10,max=15"`
	AlternateNumber string   `json:"alternate_number" validate:"omitempty,min=10,max=15"`
	Email           string   `json:"email" validate:"omitempty,email"`
	DeliveryAddress string   `json:"delivery_address" validate:"required"`
	PaymentMethod   string   `json:"payment_method" validate:"omitempty,oneof=cash online"`
	CouponCode      string   `json:"coupon_code"`
	TotalAmount     *float64 `json:"total_amount"`
	DraftToken      string   `json:"draft_token" validate:"max=64"`
}

// UploadedMedia is a stored photo or video attached to a repair draft.
type UploadedMedia struct {
	URL  string
	Kind string
	Size int64
}

// Submission is the result of persisting a new request.
type Submission struct {
	RequestID      uuid.UUID   `json:"request_id"`
	RequestType    RequestType `json:"request_type"`
	Status         string      `json:"status"`
	ExpiresAt      time.Time   `json:"expires_at"`
	TotalAmount    float64     `json:"total_amount"`
	DiscountAmount float64     `json:"discount_amount"`
	NetAmount      float64     `json:"net_amount"`
	Replayed       bool        `json:"replayed"`
}

// SubmissionService validates, prices and persists new requests.
type SubmissionService struct {
	db       *gorm.DB
	coupons  *CouponService
	pricing  *Pricing
	notifier *Notifier
	window   time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService. window is how long a request
// waits for admin approval before it expires.
func NewSubmissionService(db *gorm.DB, coupons *CouponService, pricing *Pricing, notifier *Notifier, window time.Duration) *SubmissionService {
	return &SubmissionService{
		db:       db,
		coupons:  coupons,
		pricing:  pricing,
		notifier: notifier,
		window:   window,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("submission"),
	}
}

// SubmitRepair creates a pending repair request, committing its coupon in the same transaction.
func (s *SubmissionService) SubmitRepair(ctx context.Context, userID uuid.UUID, draft RepairDraft) (*Submission, error) {
	if fields := utils.ValidateStruct(draft); fields != nil {
		return nil, ValidationError("invalid repair request", fields...)
	}
	if err := checkMedia(draft.Media); err != nil {
		return nil, err
	}

	serviceIDs := make([]uuid.UUID, 0, len(draft.ServiceIDs))
	for _, raw := range draft.ServiceIDs {
		serviceIDs = append(serviceIDs, uuid.MustParse(raw))
	}
	slotID := uuid.MustParse(draft.TimeSlotID)

	if replay, err := s.replay(ctx, RequestRepair, userID, draft.DraftToken); err != nil || replay != nil {
		return replay, err
	}

	now := s.now()
	req := models.RepairRequest{
		UserID:          userID,
		ContactNumber:   draft.ContactNumber,
		AlternateNumber: draft.AlternateNumber,
		Email:           draft.Email,
		Address:         draft.Address,
		Notes:           draft.Notes,
		PreferredDate:   draft.PreferredDate,
		TimeSlotID:      slotID,
		PaymentMethod:   paymentMethodOrDefault(draft.PaymentMethod),
		Status:          StatusPending,
		ExpiresAt:       now.Add(s.window),
		DraftToken:      tokenOrNil(draft.DraftToken),
	}
	req.ID = uuid.New()

	var couponCode string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot models.TimeSlot
		if err := tx.First(&slot, "id = ? AND is_active = ?", slotID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ValidationError("time slot is not available", utils.FieldError{Field: "time_slot_id", Message: "time slot does not exist"})
			}
			return wrapStore(err, "load time slot")
		}

		price, err := s.pricing.PriceRepair(ctx, tx, serviceIDs)
		if err != nil {
			return err
		}
		if err := s.pricing.CheckClientTotal(draft.TotalAmount, price.Total); err != nil {
			return err
		}

		discount := decimal.Zero
		if code := strings.TrimSpace(draft.CouponCode); code != "" {
			quote, err := s.coupons.Commit(ctx, tx, code, RequestRepair, req.ID, price.Items, price.Total.InexactFloat64())
			if err != nil {
				return err
			}
			discount = decimal.NewFromFloat(quote.Discount)
			req.CouponID = &quote.CouponID
			couponCode = quote.Code
		}

		prices := make([]decimal.Decimal, len(price.Services))
		for i, svc := range price.Services {
			prices[i] = decimal.NewFromFloat(svc.Price)
		}
		shares := SpreadDiscount(prices, price.Total, discount)
		for i, svc := range price.Services {
			req.Services = append(req.Services, models.RepairRequestService{
				RepairServiceID: svc.ID,
				ServiceName:     svc.Name,
				Price:           svc.Price,
				DiscountAmount:  shares[i].InexactFloat64(),
			})
		}
		for _, m := range draft.Media {
			req.Files = append(req.Files, models.RepairRequestFile{FileURL: m.URL, FileType: m.Kind, Size: m.Size})
		}

		req.TotalAmount = price.Total.InexactFloat64()
		req.DiscountAmount = discount.InexactFloat64()
		req.NetAmount = price.Total.Sub(discount).InexactFloat64()

		return wrapStore(tx.Create(&req).Error, "create repair request")
	})
	if err != nil {
		if replay, rerr := s.replay(ctx, RequestRepair, userID, draft.DraftToken); rerr == nil && replay != nil {
			return replay, nil
		}
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("user_id", userID.String()).
		Float64("net_amount", req.NetAmount).
		Msg("repair request submitted")

	lines := make([]string, 0, len(req.Services))
	for _, l := range req.Services {
		lines = append(lines, l.ServiceName+" "+FormatPrice(l.Price))
	}
	s.notifier.RequestSubmitted(ctx, RequestEvent{
		Type:        EventRequestCreated,
		RequestType: RequestRepair,
		RequestID:   req.ID,
		UserID:      userID,
		Status:      req.Status,
		NetAmount:   req.NetAmount,
		OccurredAt:  now,
	}, RequestNotification{
		RequestType:   RequestRepair,
		RequestID:     req.ID.String(),
		CustomerPhone: req.ContactNumber,
		Lines:         lines,
		TotalAmount:   req.TotalAmount,
		Discount:      req.DiscountAmount,
		NetAmount:     req.NetAmount,
		CouponCode:    couponCode,
		ExpiresAt:     req.ExpiresAt,
	})

	return repairSubmission(&req, false), nil
}

// SubmitRental creates a pending rental request, committing its coupon in the same transaction.
func (s *SubmissionService) SubmitRental(ctx context.Context, userID uuid.UUID, draft RentalDraft) (*Submission, error) {
	if fields := utils.ValidateStruct(draft); fields != nil {
		return nil, ValidationError("invalid rental request", fields...)
	}
	bicycleID := uuid.MustParse(draft.BicycleID)

	if replay, err := s.replay(ctx, RequestRental, userID, draft.DraftToken); err != nil || replay != nil {
		return replay, err
	}

	now := s.now()
	req := models.RentalRequest{
		UserID:          userID,
		BicycleID:       bicycleID,
		DurationType:    draft.DurationType,
		Duration:        draft.Duration,
		ContactNumber:   draft.ContactNumber,
		AlternateNumber: draft.AlternateNumber,
		Email:           draft.Email,
		DeliveryAddress: draft.DeliveryAddress,
		PaymentMethod:   paymentMethodOrDefault(draft.PaymentMethod),
		Status:          StatusPending,
		ExpiresAt:       now.Add(s.window),
		DraftToken:      tokenOrNil(draft.DraftToken),
	}
	req.ID = uuid.New()

	var (
		couponCode string
		bikeName   string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		price, err := s.pricing.PriceRental(ctx, tx, bicycleID, draft.DurationType, draft.Duration)
		if err != nil {
			return err
		}
		if err := s.pricing.CheckClientTotal(draft.TotalAmount, price.Total); err != nil {
			return err
		}
		bikeName = price.Bicycle.Name

		discount := decimal.Zero
		if code := strings.TrimSpace(draft.CouponCode); code != "" {
			quote, err := s.coupons.Commit(ctx, tx, code, RequestRental, req.ID, price.Items, price.Total.InexactFloat64())
			if err != nil {
				return err
			}
			discount = decimal.NewFromFloat(quote.Discount)
			req.CouponID = &quote.CouponID
			couponCode = quote.Code
		}

		req.Rate = price.Rate.InexactFloat64()
		req.DeliveryCharge = price.DeliveryCharge.InexactFloat64()
		req.TotalAmount = price.Total.InexactFloat64()
		req.DiscountAmount = discount.InexactFloat64()
		req.NetAmount = price.Total.Sub(discount).InexactFloat64()

		return wrapStore(tx.Create(&req).Error, "create rental request")
	})
	if err != nil {
		if replay, rerr := s.replay(ctx, RequestRental, userID, draft.DraftToken); rerr == nil && replay != nil {
			return replay, nil
		}
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("user_id", userID.String()).
		Float64("net_amount", req.NetAmount).
		Msg("rental request submitted")

	s.notifier.RequestSubmitted(ctx, RequestEvent{
		Type:        EventRequestCreated,
		RequestType: RequestRental,
		RequestID:   req.ID,
		UserID:      userID,
		Status:      req.Status,
		NetAmount:   req.NetAmount,
		OccurredAt:  now,
	}, RequestNotification{
		RequestType:   RequestRental,
		RequestID:     req.ID.String(),
		CustomerPhone: req.ContactNumber,
		Lines:         []string{bikeName + " × " + durationLabel(req.Duration, req.DurationType)},
		TotalAmount:   req.TotalAmount,
		Discount:      req.DiscountAmount,
		NetAmount:     req.NetAmount,
		CouponCode:    couponCode,
		ExpiresAt:     req.ExpiresAt,
	})

	return rentalSubmission(&req, false), nil
}

// replay returns the request previously created with the same draft token, if any.
func (s *SubmissionService) replay(ctx context.Context, rt RequestType, userID uuid.UUID, token string) (*Submission, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	db := s.db.WithContext(ctx).Where("user_id = ? AND draft_token = ?", userID, token)
	switch rt {
	case RequestRepair:
		var existing models.RepairRequest
		if err := db.First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, wrapStore(err, "load repair request by draft token")
		}
		existing.Status = EffectiveStatus(existing.Status, existing.ExpiresAt, s.now())
		return repairSubmission(&existing, true), nil
	default:
		var existing models.RentalRequest
		if err := db.First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, wrapStore(err, "load rental request by draft token")
		}
		existing.Status = EffectiveStatus(existing.Status, existing.ExpiresAt, s.now())
		return rentalSubmission(&existing, true), nil
	}
}

func repairSubmission(r *models.RepairRequest, replayed bool) *Submission {
	return &Submission{
		RequestID:      r.ID,
		RequestType:    RequestRepair,
		Status:         r.Status,
		ExpiresAt:      r.ExpiresAt,
		TotalAmount:    r.TotalAmount,
		DiscountAmount: r.DiscountAmount,
		NetAmount:      r.NetAmount,
		Replayed:       replayed,
	}
}

func rentalSubmission(r *models.RentalRequest, replayed bool) *Submission {
	return &Submission{
		RequestID:      r.ID,
		RequestType:    RequestRental,
		Status:         r.Status,
		ExpiresAt:      r.ExpiresAt,
		TotalAmount:    r.TotalAmount,
		DiscountAmount: r.DiscountAmount,
		NetAmount:      r.NetAmount,
		Replayed:       replayed,
	}
}

func checkMedia(media []UploadedMedia) error {
	var images, videos int
	for _, m := range media {
		switch m.Kind {
		case "image":
			images++
		case "video":
			videos++
		default:
			return ValidationError("unsupported file type", utils.FieldError{Field: "files", Message: "only images and videos are accepted"})
		}
	}
	if images > MaxRepairImages {
		return ValidationError("too many images", utils.FieldError{Field: "images", Message: "at most 5 images are allowed"})
	}
	if videos > MaxRepairVideos {
		return ValidationError("too many videos", utils.FieldError{Field: "video", Message: "at most 1 video is allowed"})
	}
	return nil
}

func paymentMethodOrDefault(method string) string {
	if method == "" {
		return "cash"
	}
	return method
}

func tokenOrNil(token string) *string {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return &token
}

func durationLabel(n int, unit string) string {
	suffix := map[string]string{DurationHourly: "h", DurationDaily: "d", DurationWeekly: "w"}[unit]
	return strconv.Itoa(n) + suffix
}
