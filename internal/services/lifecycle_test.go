package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name string
		rt   RequestType
		from string
		to   string
		note string
		kind ErrorKind
	}{
		{"repair approve", RequestRepair, StatusPending, StatusApproved, "", ""},
		{"repair start work", RequestRepair, StatusApproved, StatusActive, "", ""},
		{"repair complete", RequestRepair, StatusActive, StatusCompleted, "", ""},
		{"repair reject with note", RequestRepair, StatusPending, StatusRejected, "no parts", ""},
		{"repair reject without note", RequestRepair, StatusPending, StatusRejected, "   ", KindValidation},
		{"repair skip approval", RequestRepair, StatusPending, StatusActive, "", KindInvalidTransition},
		{"repair rental-only status", RequestRepair, StatusApproved, StatusWaitingPayment, "", KindValidation},
		{"repair reopen completed", RequestRepair, StatusCompleted, StatusApproved, "", KindInvalidTransition},
		{"repair completed to rental-only status", RequestRepair, StatusCompleted, StatusWaitingPayment, "", KindInvalidTransition},
		{"repair rejected to unknown status", RequestRepair, StatusRejected, "archived", "", KindInvalidTransition},
		{"repair approved to unknown status", RequestRepair, StatusApproved, "archived", "", KindValidation},
		{"rental approve", RequestRental, StatusPending, StatusApproved, "", ""},
		{"rental payment", RequestRental, StatusApproved, StatusWaitingPayment, "", ""},
		{"rental delivery", RequestRental, StatusWaitingPayment, StatusArrangingDelivery, "", ""},
		{"rental start", RequestRental, StatusArrangingDelivery, StatusActiveRental, "", ""},
		{"rental complete", RequestRental, StatusActiveRental, StatusCompleted, "", ""},
		{"rental skip payment", RequestRental, StatusApproved, StatusActiveRental, "", KindInvalidTransition},
		{"rental repair-only status", RequestRental, StatusApproved, StatusActive, "", KindValidation},
		{"rental leave expired", RequestRental, StatusExpired, StatusApproved, "", KindInvalidTransition},
		{"rental leave rejected", RequestRental, StatusRejected, StatusPending, "", KindInvalidTransition},
		{"rental completed to repair-only status", RequestRental, StatusCompleted, StatusActive, "", KindInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.rt, tt.from, tt.to, tt.note)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestInvalidTransitionCarriesStatuses(t *testing.T) {
	err := ValidateTransition(RequestRepair, StatusCompleted, StatusActive, "")
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidTransition, e.Code)
	assert.Equal(t, StatusCompleted, e.From)
	assert.Equal(t, StatusActive, e.To)
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, rt := range []RequestType{RequestRepair, RequestRental} {
		for _, s := range []string{StatusRejected, StatusExpired, StatusCompleted} {
			assert.True(t, IsTerminal(rt, s), "%s %s", rt, s)
			for target := range transitionsFor(rt) {
				assert.False(t, CanTransition(rt, s, target), "%s %s -> %s", rt, s, target)
			}
		}
		assert.False(t, IsTerminal(rt, StatusPending))
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, StatusPending, EffectiveStatus(StatusPending, now.Add(time.Second), now))
	assert.Equal(t, StatusExpired, EffectiveStatus(StatusPending, now, now))
	assert.Equal(t, StatusExpired, EffectiveStatus(StatusPending, now.Add(-time.Hour), now))
	assert.Equal(t, StatusApproved, EffectiveStatus(StatusApproved, now.Add(-time.Hour), now))
	assert.Equal(t, StatusPending, EffectiveStatus(StatusPending, time.Time{}, now))
}
