package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cyclebees/internal/models"
)

func TestSweepExpiresLapsedPendingRequests(t *testing.T) {
	db := newTestDB(t)
	events := &recordingPublisher{}
	user := createUser(t, db, "9876543210")
	slot := createTimeSlot(t, db)
	bike := createBicycle(t, db)
	now := time.Now().UTC()

	lapsedRepair := createRepairRequest(t, db, user.ID, slot.ID, StatusPending, now.Add(-time.Minute))
	freshRepair := createRepairRequest(t, db, user.ID, slot.ID, StatusPending, now.Add(time.Hour))
	approved := createRepairRequest(t, db, user.ID, slot.ID, StatusApproved, now.Add(-time.Hour))
	lapsedRental := createRentalRequest(t, db, user.ID, bike.ID, StatusPending, now.Add(-time.Second))

	sweeper := NewExpirySweeper(db, NewNotifier(nil, events), time.Minute)
	n, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	statusOf := func(model any, id any) string {
		var row struct{ Status string }
		require.NoError(t, db.Model(model).Select("status").Where("id = ?", id).Take(&row).Error)
		return row.Status
	}
	assert.Equal(t, StatusExpired, statusOf(&models.RepairRequest{}, lapsedRepair.ID))
	assert.Equal(t, StatusPending, statusOf(&models.RepairRequest{}, freshRepair.ID))
	assert.Equal(t, StatusApproved, statusOf(&models.RepairRequest{}, approved.ID))
	assert.Equal(t, StatusExpired, statusOf(&models.RentalRequest{}, lapsedRental.ID))

	var notes []models.Notification
	require.NoError(t, db.Find(&notes).Error)
	require.Len(t, notes, 2)
	for _, note := range notes {
		assert.Equal(t, StatusExpired, note.Status)
		assert.Equal(t, user.ID, note.UserID)
	}
	assert.Len(t, events.Events(), 2)

	n, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, events.Events(), 2)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "9876543210")
	slot := createTimeSlot(t, db)
	req := createRepairRequest(t, db, user.ID, slot.ID, StatusPending, time.Now().UTC().Add(-time.Minute))

	// zero interval disables the loop
	NewExpirySweeper(db, nil, 0).Run(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewExpirySweeper(db, NewNotifier(nil, nil), 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		var stored models.RepairRequest
		if err := db.First(&stored, "id = ?", req.ID).Error; err != nil {
			return false
		}
		return stored.Status == StatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
