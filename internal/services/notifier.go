package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/models"
)

const publishTimeout = 5 * time.Second

// Notifier fans lifecycle changes out to admins (Telegram), the broker and the
// user's notification feed.
type Notifier struct {
	telegram *TelegramService
	events   EventPublisher
	log      zerolog.Logger
}

// NewNotifier constructs a Notifier. Nil collaborators are treated as disabled.
func NewNotifier(telegram *TelegramService, events EventPublisher) *Notifier {
	if telegram == nil {
		telegram = NewTelegramService("", "")
	}
	if events == nil {
		events = NoopPublisher{}
	}
	return &Notifier{telegram: telegram, events: events, log: logger.Component("notifier")}
}

// RequestSubmitted announces a new pending request.
func (n *Notifier) RequestSubmitted(ctx context.Context, ev RequestEvent, admin RequestNotification) {
	n.telegram.sendAsync(admin)
	n.publish(ctx, ev)
}

// StatusChanged announces a status transition.
func (n *Notifier) StatusChanged(ctx context.Context, ev RequestEvent) {
	n.publish(ctx, ev)
}

func (n *Notifier) publish(ctx context.Context, ev RequestEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.events.Publish(ctx, ev); err != nil {
		n.log.Warn().Err(err).
			Str("event", ev.Type).
			Str("request_id", ev.RequestID.String()).
			Msg("publish request event")
	}
}

var statusTitles = map[string]string{
	StatusApproved:          "Request approved",
	StatusRejected:          "Request rejected",
	StatusExpired:           "Request expired",
	StatusActive:            "Repair in progress",
	StatusCompleted:         "Request completed",
	StatusWaitingPayment:    "Payment pending",
	StatusArrangingDelivery: "Arranging delivery",
	StatusActiveRental:      "Rental started",
}

// recordNotification inserts the feed entry the client picks up on its next poll.
func recordNotification(tx *gorm.DB, rt RequestType, requestID, userID uuid.UUID, status string, note *string) error {
	title, ok := statusTitles[status]
	if !ok {
		title = "Request updated"
	}

	message := fmt.Sprintf("Your %s request is now %s.", rt, status)
	if status == StatusRejected && note != nil {
		message = fmt.Sprintf("Your %s request was rejected: %s", rt, *note)
	}
	if status == StatusExpired {
		message = fmt.Sprintf("Your %s request expired before it was approved.", rt)
	}

	n := models.Notification{
		UserID:      userID,
		RequestType: string(rt),
		RequestID:   requestID,
		Title:       title,
		Message:     message,
		Status:      status,
	}
	return wrapStore(tx.Create(&n).Error, "create notification")
}
