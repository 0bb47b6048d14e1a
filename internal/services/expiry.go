package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/logger"
)

// ExpirySweeper persists the expired status of pending requests whose approval window lapsed.
// Reads already report such requests as expired; the sweeper makes the store agree and
// emits the user notification.
type ExpirySweeper struct {
	db       *gorm.DB
	notifier *Notifier
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewExpirySweeper constructs an ExpirySweeper that runs every interval.
func NewExpirySweeper(db *gorm.DB, notifier *Notifier, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		db:       db,
		notifier: notifier,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.Component("expiry"),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.log.Error().Err(err).Msg("expiry sweep failed")
			} else if n > 0 {
				s.log.Info().Int("expired", n).Msg("expired pending requests")
			}
		}
	}
}

type pendingRow struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	NetAmount float64
}

// Sweep expires every lapsed pending request once and returns how many were changed.
// Rows that lost a race against an admin decision are skipped.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	total := 0
	for _, rt := range []RequestType{RequestRepair, RequestRental} {
		n, err := s.sweep(ctx, rt)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *ExpirySweeper) sweep(ctx context.Context, rt RequestType) (int, error) {
	var rows []pendingRow
	if err := s.db.WithContext(ctx).Model(requestModel(rt)).
		Select("id", "user_id", "expires_at", "net_amount").
		Where("status = ?", StatusPending).
		Find(&rows).Error; err != nil {
		return 0, wrapStore(err, "list pending requests")
	}

	now := s.now()
	expired := 0
	for _, row := range rows {
		if EffectiveStatus(StatusPending, row.ExpiresAt, now) != StatusExpired {
			continue
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := transition(ctx, tx, rt, row.ID, StatusPending, StatusExpired, nil); err != nil {
				return err
			}
			return recordNotification(tx, rt, row.ID, row.UserID, StatusExpired, nil)
		})
		if IsKind(err, KindConflict) {
			continue
		}
		if err != nil {
			return expired, err
		}

		expired++
		s.notifier.StatusChanged(ctx, RequestEvent{
			Type:        EventRequestStatusChanged,
			RequestType: rt,
			RequestID:   row.ID,
			UserID:      row.UserID,
			Status:      StatusExpired,
			PrevStatus:  StatusPending,
			NetAmount:   row.NetAmount,
			OccurredAt:  now,
		})
	}
	return expired, nil
}
