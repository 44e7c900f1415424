package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridebook/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationCancellationSummary NotificationType = "CANCELLATION_SUMMARY"
	NotificationBookingSelfHealed   NotificationType = "BOOKING_SELF_HEALED"
)

// Topics events are published to.
const (
	TopicCancellationSummary = "booking.cancellation.summary"
	TopicBookingSelfHealed   = "booking.self_healed"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string                 `json:"id"`
	Type        NotificationType       `json:"type"`
	RecipientID string                 `json:"recipient_id"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Publisher delivers a message to a topic.
type Publisher interface {
	Publish(topic string, message interface{}) error
}

// NotificationService handles notification delivery. Without a publisher
// notifications are only logged.
type NotificationService struct {
	publisher Publisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher Publisher, logger logrus.FieldLogger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyCancellationSummary sends the single summary of a cancellation batch.
func (s *NotificationService) NotifyCancellationSummary(ctx context.Context, userID string, result *CancellationResult) error {
	message := fmt.Sprintf("%d seat(s) cancelled", len(result.Cancelled))
	if len(result.PerSeatErrors) > 0 {
		message = fmt.Sprintf("%s, %d failed", message, len(result.PerSeatErrors))
	}
	if result.Warning != "" {
		message = fmt.Sprintf("%s. %s", message, result.Warning)
	}

	notification := Notification{
		ID:          uuid.New().String(),
		Type:        NotificationCancellationSummary,
		RecipientID: userID,
		Title:       "Booking Cancellation",
		Message:     message,
		Data: map[string]interface{}{
			"batch_id":        result.BatchID,
			"succeeded":       result.Succeeded,
			"cancelled":       result.Cancelled,
			"per_seat_errors": result.PerSeatErrors,
			"refunded":        result.Refunded,
		},
		CreatedAt: s.now(),
	}
	return s.send(ctx, TopicCancellationSummary, notification)
}

// NotifySelfHealed tells the user a stale booking was marked system-cancelled.
func (s *NotificationService) NotifySelfHealed(ctx context.Context, userID string, booking *domain.StoredBooking) error {
	notification := Notification{
		ID:          uuid.New().String(),
		Type:        NotificationBookingSelfHealed,
		RecipientID: userID,
		Title:       "Booking Cancelled",
		Message:     fmt.Sprintf("Your seat %s is no longer reserved on this trip", booking.SeatName),
		Data: map[string]interface{}{
			"booking_id": booking.BookingID,
			"trip_id":    booking.TripID,
			"seat_id":    booking.SeatID,
		},
		CreatedAt: s.now(),
	}
	return s.send(ctx, TopicBookingSelfHealed, notification)
}

func (s *NotificationService) send(ctx context.Context, topic string, notification Notification) error {
	s.logger.WithFields(logrus.Fields{
		"type":      notification.Type,
		"recipient": notification.RecipientID,
		"topic":     topic,
	}).Info(notification.Message)

	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(topic, notification)
}
