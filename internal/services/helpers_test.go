package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/database"
	"github.com/example/cyclebees/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://"+filepath.Join(t.TempDir(), "test.db"), "silent")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, phone string) models.User {
	t.Helper()
	u := models.User{Phone: phone, FullName: "Test Rider", Email: "rider@example.com"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func createRepairService(t *testing.T, db *gorm.DB, name string, price float64) models.RepairService {
	t.Helper()
	s := models.RepairService{Name: name, Price: price, Category: TagRepairServices, IsActive: true}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func createTimeSlot(t *testing.T, db *gorm.DB) models.TimeSlot {
	t.Helper()
	s := models.TimeSlot{Label: "Morning", StartTime: "09:00", EndTime: "12:00", IsActive: true}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func createBicycle(t *testing.T, db *gorm.DB) models.Bicycle {
	t.Helper()
	b := models.Bicycle{Name: "City Cruiser", HourlyRate: 50, DailyRate: 300, WeeklyRate: 1500, IsAvailable: true}
	require.NoError(t, db.Create(&b).Error)
	return b
}

func createCoupon(t *testing.T, db *gorm.DB, c models.Coupon) models.Coupon {
	t.Helper()
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = time.Now().UTC().Add(24 * time.Hour)
	}
	if len(c.ApplicableItems) == 0 {
		c.ApplicableItems = models.TagSet{TagRepairServices, TagRentalServices}
	}
	c.IsActive = true
	require.NoError(t, db.Create(&c).Error)
	return c
}

func ptr[T any](v T) *T { return &v }

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []RequestEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev RequestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []RequestEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RequestEvent(nil), p.events...)
}
