package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

// Request statuses. pending is the only initial status.
const (
	StatusPending           = "pending"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
	StatusExpired           = "expired"
	StatusActive            = "active"
	StatusCompleted         = "completed"
	StatusWaitingPayment    = "waiting_payment"
	StatusArrangingDelivery = "arranging_delivery"
	StatusActiveRental      = "active_rental"
)

var repairTransitions = map[string][]string{
	StatusPending:   {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved:  {StatusActive},
	StatusActive:    {StatusCompleted},
	StatusRejected:  {},
	StatusExpired:   {},
	StatusCompleted: {},
}

var rentalTransitions = map[string][]string{
	StatusPending:           {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved:          {StatusWaitingPayment},
	StatusWaitingPayment:    {StatusArrangingDelivery},
	StatusArrangingDelivery: {StatusActiveRental},
	StatusActiveRental:      {StatusCompleted},
	StatusRejected:          {},
	StatusExpired:           {},
	StatusCompleted:         {},
}

func transitionsFor(rt RequestType) map[string][]string {
	if rt == RequestRental {
		return rentalTransitions
	}
	return repairTransitions
}

// IsValidStatus reports whether status belongs to rt's lifecycle.
func IsValidStatus(rt RequestType, status string) bool {
	_, ok := transitionsFor(rt)[status]
	return ok
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(rt RequestType, status string) bool {
	next, ok := transitionsFor(rt)[status]
	return !ok || len(next) == 0
}

// CanTransition reports whether from -> to is an edge of rt's lifecycle.
func CanTransition(rt RequestType, from, to string) bool {
	for _, s := range transitionsFor(rt)[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks a requested status change, including the rejection note rule.
// Nothing leaves a terminal status, whatever the target.
func ValidateTransition(rt RequestType, from, to, note string) error {
	if IsValidStatus(rt, from) && IsTerminal(rt, from) {
		return InvalidTransitionError(from, to)
	}
	if !IsValidStatus(rt, to) {
		return ValidationError("unknown status", utils.FieldError{Field: "status", Message: "status " + to + " is not valid for " + string(rt) + " requests"})
	}
	if !CanTransition(rt, from, to) {
		return InvalidTransitionError(from, to)
	}
	if to == StatusRejected && strings.TrimSpace(note) == "" {
		return ValidationError("rejection note is required", utils.FieldError{Field: "rejection_note", Message: "rejection_note is required when rejecting"})
	}
	return nil
}

// EffectiveStatus reports expired for a pending request whose window has lapsed.
func EffectiveStatus(status string, expiresAt, now time.Time) string {
	if status == StatusPending && !expiresAt.IsZero() && !expiresAt.After(now) {
		return StatusExpired
	}
	return status
}

// ApplyEffectiveStatus rewrites the in-memory status of loaded requests to their effective status.
func ApplyEffectiveStatus(now time.Time, reqs ...any) {
	for _, r := range reqs {
		switch v := r.(type) {
		case *models.RepairRequest:
			v.Status = EffectiveStatus(v.Status, v.ExpiresAt, now)
		case *models.RentalRequest:
			v.Status = EffectiveStatus(v.Status, v.ExpiresAt, now)
		}
	}
}

func requestModel(rt RequestType) any {
	if rt == RequestRental {
		return &models.RentalRequest{}
	}
	return &models.RepairRequest{}
}

// transition moves the request from -> to with a conditional update.
// Zero affected rows means another writer changed the status first.
func transition(ctx context.Context, tx *gorm.DB, rt RequestType, id uuid.UUID, from, to string, note *string) error {
	updates := map[string]any{"status": to}
	if to == StatusRejected {
		updates["rejection_note"] = note
	}

	res := tx.WithContext(ctx).Model(requestModel(rt)).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return wrapStore(res.Error, "update request status")
	}
	if res.RowsAffected == 0 {
		return ConflictError("request status changed concurrently, reload and retry")
	}
	return nil
}
