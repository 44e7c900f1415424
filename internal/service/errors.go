package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no user id is available.
	ErrUnauthenticated = errors.New("user is not signed in")

	// ErrNoBookingsSelected is returned when a cancellation names no bookings.
	ErrNoBookingsSelected = errors.New("no bookings selected")

	// ErrHistoryFetchFailed is returned when the user's history cannot be read.
	ErrHistoryFetchFailed = errors.New("failed to load booking history")

	// ErrCancellationInProgress is returned when another batch of the same user is running.
	ErrCancellationInProgress = errors.New("a cancellation for this user is already in progress")

	// ErrBookingsNotEligible is returned when a selected booking can no longer be cancelled.
	ErrBookingsNotEligible = errors.New("one or more bookings can no longer be cancelled")

	// ErrTripStateChanged is returned when pre-flight finds a trip that left the upcoming state.
	ErrTripStateChanged = errors.New("trip state changed")

	// ErrTripNotInHistory is returned when the user has no booking on the requested trip.
	ErrTripNotInHistory = errors.New("trip not found in booking history")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidRefundAmount is returned when a refund amount is not positive.
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
)

// Per-seat rejection reasons.
const (
	ReasonBookingNotFound   = "booking not found"
	ReasonBookingNotActive  = "booking is no longer active"
	ReasonTripNotUpcoming   = "trip is no longer upcoming"
	ReasonWindowExpired     = "cancellation window has passed"
	ReasonTripStateChanged  = "trip state changed"
	ReasonSeatNotOccupied   = "seat not occupied by you"
	ReasonSeatReleaseFailed = "failed to release seat"
)

// SeatError names one seat that could not be cancelled and why.
type SeatError struct {
	BookingID string `json:"booking_id"`
	SeatName  string `json:"seat_name"`
	Reason    string `json:"reason"`
}

// BatchRejectedError aborts a whole cancellation batch before any mutation.
type BatchRejectedError struct {
	Cause error
	Seats []SeatError
}

func (e *BatchRejectedError) Error() string {
	names := make([]string, 0, len(e.Seats))
	for _, seat := range e.Seats {
		names = append(names, seatLabel(seat))
	}
	return fmt.Sprintf("%s: %s", e.Cause, strings.Join(names, ", "))
}

func (e *BatchRejectedError) Unwrap() error {
	return e.Cause
}

func seatLabel(seat SeatError) string {
	name := seat.SeatName
	if name == "" {
		name = seat.BookingID
	}
	return fmt.Sprintf("%s (%s)", name, seat.Reason)
}
