package services

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

// StatusChange is an admin's request to move a booking to a new status.
type StatusChange struct {
	RequestType   RequestType
	RequestID     uuid.UUID
	ActorRole     string
	Status        string
	RejectionNote string
}

// StatusService applies admin status changes.
type StatusService struct {
	db       *gorm.DB
	notifier *Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewStatusService constructs a StatusService.
func NewStatusService(db *gorm.DB, notifier *Notifier) *StatusService {
	return &StatusService{
		db:       db,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("status"),
	}
}

type requestRef struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    string
	ExpiresAt time.Time
	NetAmount float64
}

func loadRef(ctx context.Context, tx *gorm.DB, rt RequestType, id uuid.UUID) (*requestRef, error) {
	var ref requestRef
	err := tx.WithContext(ctx).Model(requestModel(rt)).
		Select("id", "user_id", "status", "expires_at", "net_amount").
		Where("id = ?", id).
		Take(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError(string(rt) + " request not found")
		}
		return nil, wrapStore(err, "load request")
	}
	return &ref, nil
}

// UpdateStatus validates and applies change, then returns the reloaded request
// (*models.RepairRequest or *models.RentalRequest).
func (s *StatusService) UpdateStatus(ctx context.Context, change StatusChange) (any, error) {
	if change.ActorRole != utils.RoleAdmin {
		return nil, ForbiddenError("only admins can change request status")
	}
	if change.RequestType != RequestRepair && change.RequestType != RequestRental {
		return nil, ValidationError("invalid request type")
	}

	target := strings.ToLower(strings.TrimSpace(change.Status))
	if target == "" {
		return nil, ValidationError("status is required", utils.FieldError{Field: "status", Message: "status is required"})
	}
	var (
		ref  *requestRef
		from string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ref, err = loadRef(ctx, tx, change.RequestType, change.RequestID)
		if err != nil {
			return err
		}

		stored := ref.Status
		from = EffectiveStatus(stored, ref.ExpiresAt, s.now())
		if target == StatusExpired {
			// expiry only happens when the approval window lapses
			return InvalidTransitionError(from, target)
		}
		if err := ValidateTransition(change.RequestType, from, target, change.RejectionNote); err != nil {
			return err
		}

		var note *string
		if target == StatusRejected {
			n := change.RejectionNote
			note = &n
		}
		if err := transition(ctx, tx, change.RequestType, ref.ID, stored, target, note); err != nil {
			return err
		}
		return recordNotification(tx, change.RequestType, ref.ID, ref.UserID, target, note)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_type", string(change.RequestType)).
		Str("request_id", ref.ID.String()).
		Str("from", from).
		Str("to", target).
		Msg("request status changed")

	s.notifier.StatusChanged(ctx, RequestEvent{
		Type:        EventRequestStatusChanged,
		RequestType: change.RequestType,
		RequestID:   ref.ID,
		UserID:      ref.UserID,
		Status:      target,
		PrevStatus:  from,
		NetAmount:   ref.NetAmount,
		OccurredAt:  s.now(),
	})

	return LoadRequest(ctx, s.db, change.RequestType, ref.ID, s.now())
}

// LoadRequest loads a request with its associations and effective status.
func LoadRequest(ctx context.Context, db *gorm.DB, rt RequestType, id uuid.UUID, now time.Time) (any, error) {
	q := db.WithContext(ctx).Preload("User")
	switch rt {
	case RequestRepair:
		var r models.RepairRequest
		err := q.Preload("TimeSlot").Preload("Services").Preload("Files").First(&r, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, NotFoundError("repair request not found")
			}
			return nil, wrapStore(err, "load repair request")
		}
		ApplyEffectiveStatus(now, &r)
		return &r, nil
	case RequestRental:
		var r models.RentalRequest
		err := q.Preload("Bicycle").First(&r, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, NotFoundError("rental request not found")
			}
			return nil, wrapStore(err, "load rental request")
		}
		ApplyEffectiveStatus(now, &r)
		return &r, nil
	}
	return nil, ValidationError("invalid request type")
}
