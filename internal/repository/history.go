package repository

import (
	"context"
	"time"

	"ridebook/internal/domain"
)

// HistoryRepository defines access to a user's private booking records.
type HistoryRepository interface {
	// ListByUser retrieves every stored booking of a user. A user without
	// history yields an empty slice.
	ListByUser(ctx context.Context, userID string) ([]*domain.StoredBooking, error)

	// GetBooking retrieves one stored booking.
	GetBooking(ctx context.Context, userID, bookingID string) (*domain.StoredBooking, error)

	// TransitionStatus atomically moves a booking to next. It reports
	// changed=false without writing when the booking already holds next.
	TransitionStatus(ctx context.Context, userID, bookingID string, next domain.BookingStatus, at time.Time) (bool, error)
}
