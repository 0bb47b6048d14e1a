package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

func createRepairRequest(t *testing.T, db *gorm.DB, userID, slotID uuid.UUID, status string, expiresAt time.Time) models.RepairRequest {
	t.Helper()
	r := models.RepairRequest{
		UserID:        userID,
		TimeSlotID:    slotID,
		ContactNumber: "9876543210",
		Email:         "rider@example.com",
		Address:       "12 MG Road",
		PaymentMethod: "cash",
		TotalAmount:   500,
		NetAmount:     500,
		Status:        status,
		ExpiresAt:     expiresAt,
	}
	require.NoError(t, db.Create(&r).Error)
	return r
}

func createRentalRequest(t *testing.T, db *gorm.DB, userID, bikeID uuid.UUID, status string, expiresAt time.Time) models.RentalRequest {
	t.Helper()
	r := models.RentalRequest{
		UserID:          userID,
		BicycleID:       bikeID,
		DurationType:    DurationDaily,
		Duration:        1,
		ContactNumber:   "9876543210",
		DeliveryAddress: "12 MG Road",
		PaymentMethod:   "cash",
		TotalAmount:     350,
		NetAmount:       350,
		Status:          status,
		ExpiresAt:       expiresAt,
	}
	require.NoError(t, db.Create(&r).Error)
	return r
}

type statusFixture struct {
	db     *gorm.DB
	svc    *StatusService
	events *recordingPublisher
	user   models.User
	slot   models.TimeSlot
	bike   models.Bicycle
}

func newStatusFixture(t *testing.T) *statusFixture {
	t.Helper()
	db := newTestDB(t)
	events := &recordingPublisher{}
	return &statusFixture{
		db:     db,
		svc:    NewStatusService(db, NewNotifier(nil, events)),
		events: events,
		user:   createUser(t, db, "9876543210"),
		slot:   createTimeSlot(t, db),
		bike:   createBicycle(t, db),
	}
}

func (f *statusFixture) pendingRepair(t *testing.T) models.RepairRequest {
	return createRepairRequest(t, f.db, f.user.ID, f.slot.ID, StatusPending, time.Now().UTC().Add(15*time.Minute))
}

func (f *statusFixture) change(rt RequestType, id uuid.UUID, status, note string) StatusChange {
	return StatusChange{RequestType: rt, RequestID: id, ActorRole: utils.RoleAdmin, Status: status, RejectionNote: note}
}

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	f := newStatusFixture(t)
	req := f.pendingRepair(t)

	change := f.change(RequestRepair, req.ID, StatusApproved, "")
	change.ActorRole = utils.RoleUser
	_, err := f.svc.UpdateStatus(context.Background(), change)
	assert.True(t, IsKind(err, KindForbidden), "got %v", err)

	var stored models.RepairRequest
	require.NoError(t, f.db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestUpdateStatusApprove(t *testing.T) {
	f := newStatusFixture(t)
	req := f.pendingRepair(t)

	out, err := f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, req.ID, "Approved", ""))
	require.NoError(t, err)

	loaded, ok := out.(*models.RepairRequest)
	require.True(t, ok)
	assert.Equal(t, StatusApproved, loaded.Status)
	require.NotNil(t, loaded.User)
	assert.Equal(t, f.user.Phone, loaded.User.Phone)

	var notes []models.Notification
	require.NoError(t, f.db.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, f.user.ID, notes[0].UserID)
	assert.Equal(t, StatusApproved, notes[0].Status)
	assert.Equal(t, req.ID, notes[0].RequestID)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, EventRequestStatusChanged, evs[0].Type)
	assert.Equal(t, StatusPending, evs[0].PrevStatus)
	assert.Equal(t, StatusApproved, evs[0].Status)
	assert.Equal(t, "request.repair.status_changed", evs[0].RoutingKey())
}

func TestUpdateStatusRejectStoresNoteVerbatim(t *testing.T) {
	f := newStatusFixture(t)
	req := f.pendingRepair(t)

	_, err := f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, req.ID, StatusRejected, "  "))
	assert.True(t, IsKind(err, KindValidation), "got %v", err)

	note := "  Spare parts unavailable this week "
	out, err := f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, req.ID, StatusRejected, note))
	require.NoError(t, err)

	loaded := out.(*models.RepairRequest)
	assert.Equal(t, StatusRejected, loaded.Status)
	require.NotNil(t, loaded.RejectionNote)
	assert.Equal(t, note, *loaded.RejectionNote)

	var n models.Notification
	require.NoError(t, f.db.First(&n).Error)
	assert.Contains(t, n.Message, "Spare parts unavailable")
}

func TestUpdateStatusRejectsIllegalMoves(t *testing.T) {
	f := newStatusFixture(t)

	completed := createRepairRequest(t, f.db, f.user.ID, f.slot.ID, StatusCompleted, time.Now().UTC().Add(-time.Hour))
	_, err := f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, completed.ID, StatusApproved, ""))
	e, ok := AsError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, KindInvalidTransition, e.Kind)
	assert.Equal(t, StatusCompleted, e.From)
	assert.Equal(t, StatusApproved, e.To)

	pending := f.pendingRepair(t)
	_, err = f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, pending.ID, StatusExpired, ""))
	assert.True(t, IsKind(err, KindInvalidTransition), "got %v", err)

	_, err = f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, uuid.New(), StatusApproved, ""))
	assert.True(t, IsKind(err, KindNotFound), "got %v", err)

	_, err = f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, pending.ID, "", ""))
	assert.True(t, IsKind(err, KindValidation), "got %v", err)

	assert.Zero(t, countRows(t, f.db, &models.Notification{}))
	assert.Empty(t, f.events.Events())
}

func TestUpdateStatusLapsedRequestIsExpired(t *testing.T) {
	f := newStatusFixture(t)
	lapsed := createRepairRequest(t, f.db, f.user.ID, f.slot.ID, StatusPending, time.Now().UTC().Add(-time.Minute))

	_, err := f.svc.UpdateStatus(context.Background(), f.change(RequestRepair, lapsed.ID, StatusApproved, ""))
	e, ok := AsError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, KindInvalidTransition, e.Kind)
	assert.Equal(t, StatusExpired, e.From)
	assert.Equal(t, StatusApproved, e.To)

	var stored models.RepairRequest
	require.NoError(t, f.db.First(&stored, "id = ?", lapsed.ID).Error)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestUpdateStatusWalksRentalLifecycle(t *testing.T) {
	f := newStatusFixture(t)
	req := createRentalRequest(t, f.db, f.user.ID, f.bike.ID, StatusPending, time.Now().UTC().Add(15*time.Minute))

	steps := []string{StatusApproved, StatusWaitingPayment, StatusArrangingDelivery, StatusActiveRental, StatusCompleted}
	for _, s := range steps {
		out, err := f.svc.UpdateStatus(context.Background(), f.change(RequestRental, req.ID, s, ""))
		require.NoError(t, err, s)
		loaded := out.(*models.RentalRequest)
		assert.Equal(t, s, loaded.Status)
		require.NotNil(t, loaded.Bicycle)
	}

	_, err := f.svc.UpdateStatus(context.Background(), f.change(RequestRental, req.ID, StatusActiveRental, ""))
	assert.True(t, IsKind(err, KindInvalidTransition))

	assert.EqualValues(t, len(steps), countRows(t, f.db, &models.Notification{}))
	assert.Len(t, f.events.Events(), len(steps))
}

func TestTransitionDetectsConcurrentChange(t *testing.T) {
	f := newStatusFixture(t)
	req := f.pendingRepair(t)

	require.NoError(t, transition(context.Background(), f.db, RequestRepair, req.ID, StatusPending, StatusApproved, nil))

	err := transition(context.Background(), f.db, RequestRepair, req.ID, StatusPending, StatusRejected, ptr("late"))
	assert.True(t, IsKind(err, KindConflict), "got %v", err)

	var stored models.RepairRequest
	require.NoError(t, f.db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, StatusApproved, stored.Status)
	assert.Nil(t, stored.RejectionNote)
}
