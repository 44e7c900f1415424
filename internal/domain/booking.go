package domain

import (
	"errors"
	"time"
)

// BookingStatus represents the lifecycle state of a rider's stored booking.
type BookingStatus string

const (
	BookingStatusBooked          BookingStatus = "booked"
	BookingStatusUserCancelled   BookingStatus = "user-cancelled"
	BookingStatusSystemCancelled BookingStatus = "system-cancelled"
)

// ErrInvalidTransition is returned when a booking is asked to leave a terminal state.
var ErrInvalidTransition = errors.New("invalid booking status transition")

// Both legal transitions are one-way and originate from booked.
var allowedTransitions = map[BookingStatus]map[BookingStatus]bool{
	BookingStatusBooked: {
		BookingStatusUserCancelled:   true,
		BookingStatusSystemCancelled: true,
	},
	BookingStatusUserCancelled:   {},
	BookingStatusSystemCancelled: {},
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusUserCancelled || s == BookingStatusSystemCancelled
}

// IsCancelled reports whether the booking was cancelled by anyone.
func (s BookingStatus) IsCancelled() bool {
	return s.IsTerminal()
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return allowedTransitions[s][next]
}

// StoredBooking is one reserved seat as recorded in the rider's private history.
type StoredBooking struct {
	BookingID          string        `json:"bookingId"`
	TripID             string        `json:"tripId"`
	SeatID             string        `json:"seatId"`
	SeatName           string        `json:"seatName"`
	TripDateTime       string        `json:"tripDateTime"`
	DepartureCityValue string        `json:"departureCityValue"`
	ArrivalCityValue   string        `json:"arrivalCityValue"`
	DriverID           string        `json:"driverId"`
	DriverNameSnapshot string        `json:"driverNameSnapshot"`
	BookedAt           time.Time     `json:"bookedAt"`
	Status             BookingStatus `json:"status"`
	TripPrice          float64       `json:"tripPrice"`
}

// Transition moves the booking to next. Applying the status the booking
// already holds is reported as changed=false with no error.
func (b *StoredBooking) Transition(next BookingStatus) (changed bool, err error) {
	if b.Status == next {
		return false, nil
	}
	if !b.Status.CanTransitionTo(next) {
		return false, ErrInvalidTransition
	}
	b.Status = next
	return true, nil
}

// TripTime parses TripDateTime. The zero time is returned when the value is
// missing or in an unknown layout.
func (b *StoredBooking) TripTime() time.Time {
	return ParseTripDateTime(b.TripDateTime)
}

var tripDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTripDateTime accepts the layouts trip records have been written with.
// Values without a zone are read as UTC.
func ParseTripDateTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range tripDateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
