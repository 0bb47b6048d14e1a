package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
)

// RequestFilter narrows a request listing. Status is matched against the effective status.
type RequestFilter struct {
	UserID *uuid.UUID
	Status string
	Limit  int
	Offset int
}

// ListRepairRequests lists repair requests newest first with their effective status.
func ListRepairRequests(ctx context.Context, db *gorm.DB, f RequestFilter, now time.Time) ([]models.RepairRequest, int64, error) {
	q := db.WithContext(ctx).Model(&models.RepairRequest{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	preload := func(q *gorm.DB) *gorm.DB {
		if f.UserID == nil {
			q = q.Preload("User")
		}
		return q.Preload("TimeSlot").Preload("Services").Preload("Files")
	}

	return listEffective(q, preload, f, now, func(r *models.RepairRequest) (*string, time.Time) {
		return &r.Status, r.ExpiresAt
	})
}

// ListRentalRequests lists rental requests newest first with their effective status.
func ListRentalRequests(ctx context.Context, db *gorm.DB, f RequestFilter, now time.Time) ([]models.RentalRequest, int64, error) {
	q := db.WithContext(ctx).Model(&models.RentalRequest{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	preload := func(q *gorm.DB) *gorm.DB {
		if f.UserID == nil {
			q = q.Preload("User")
		}
		return q.Preload("Bicycle")
	}

	return listEffective(q, preload, f, now, func(r *models.RentalRequest) (*string, time.Time) {
		return &r.Status, r.ExpiresAt
	})
}

// listEffective pages in SQL when the stored status decides membership, and in memory
// when a lapsed pending row may count as expired.
func listEffective[T any](q *gorm.DB, preload func(*gorm.DB) *gorm.DB, f RequestFilter, now time.Time, state func(*T) (*string, time.Time)) ([]T, int64, error) {
	switch f.Status {
	case StatusPending, StatusExpired:
		var rows []T
		if err := preload(q).Order("created_at desc").Where("status IN ?", []string{StatusPending, StatusExpired}).Find(&rows).Error; err != nil {
			return nil, 0, wrapStore(err, "list requests")
		}

		matched := make([]T, 0, len(rows))
		for i := range rows {
			status, expiresAt := state(&rows[i])
			*status = EffectiveStatus(*status, expiresAt, now)
			if *status == f.Status {
				matched = append(matched, rows[i])
			}
		}

		total := int64(len(matched))
		start := min(f.Offset, len(matched))
		end := len(matched)
		if f.Limit > 0 {
			end = min(start+f.Limit, len(matched))
		}
		return matched[start:end], total, nil
	case "":
	default:
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, wrapStore(err, "count requests")
	}

	var rows []T
	page := preload(q).Order("created_at desc")
	if f.Limit > 0 {
		page = page.Limit(f.Limit).Offset(f.Offset)
	}
	if err := page.Find(&rows).Error; err != nil {
		return nil, 0, wrapStore(err, "list requests")
	}
	for i := range rows {
		status, expiresAt := state(&rows[i])
		*status = EffectiveStatus(*status, expiresAt, now)
	}
	return rows, total, nil
}
