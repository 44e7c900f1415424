package domain

import "time"

// DisplayStatus is the human-facing status of a single booking.
type DisplayStatus string

const (
	DisplayArchivedUnknown DisplayStatus = "archived-unknown"
	DisplayUserCancelled   DisplayStatus = "user-cancelled"
	DisplaySystemCancelled DisplayStatus = "system-cancelled"
	DisplayCompleted       DisplayStatus = "completed"
	DisplayOngoing         DisplayStatus = "ongoing"
	DisplayUpcoming        DisplayStatus = "upcoming"
	DisplayCancelled       DisplayStatus = "cancelled"
)

// GroupStatus is the header status of a trip group. Besides the per-booking
// statuses it has three aggregate values.
type GroupStatus string

const (
	GroupCancelledByYou    GroupStatus = "cancelled-by-you"
	GroupCancelledBySystem GroupStatus = "cancelled-by-system"
	GroupMixedStatus       GroupStatus = "mixed-status"
)

// TripLookup tells how the live trip of a booking was observed.
type TripLookup int

const (
	// TripNotObserved means no lookup was made, e.g. for cancelled bookings.
	TripNotObserved TripLookup = iota
	// TripFound means the live trip was read successfully.
	TripFound
	// TripMissing means the store definitively has no such trip.
	TripMissing
	// TripUnavailable means the lookup failed and nothing is known.
	TripUnavailable
)

// TripObservation is what a reconciliation pass saw of a live trip.
type TripObservation struct {
	Lookup   TripLookup
	Status   TripStatus
	SeatHeld bool
}

// StatusDecision is the outcome of DeriveDisplayStatus.
type StatusDecision struct {
	Display DisplayStatus
	// SelfHeal is set when the stored booking must move to system-cancelled.
	SelfHeal bool
}

// DisplayFromTripStatus maps a live trip status 1:1, unknown values to archived-unknown.
func DisplayFromTripStatus(status TripStatus) DisplayStatus {
	switch status {
	case TripStatusUpcoming:
		return DisplayUpcoming
	case TripStatusOngoing:
		return DisplayOngoing
	case TripStatusCompleted:
		return DisplayCompleted
	case TripStatusCancelled:
		return DisplayCancelled
	default:
		return DisplayArchivedUnknown
	}
}

// DeriveDisplayStatus is the single place that decides what a booking shows.
// It is shared by the reconciler and the grouper.
func DeriveDisplayStatus(stored BookingStatus, obs TripObservation, tripTime, now time.Time) StatusDecision {
	switch stored {
	case BookingStatusUserCancelled:
		return StatusDecision{Display: DisplayUserCancelled}
	case BookingStatusSystemCancelled:
		return StatusDecision{Display: DisplaySystemCancelled}
	}

	switch obs.Lookup {
	case TripFound:
		if stored == BookingStatusBooked && obs.Status == TripStatusUpcoming && !obs.SeatHeld {
			return StatusDecision{Display: DisplaySystemCancelled, SelfHeal: true}
		}
		return StatusDecision{Display: DisplayFromTripStatus(obs.Status)}
	case TripMissing:
		if tripTime.IsZero() {
			return StatusDecision{Display: DisplayArchivedUnknown}
		}
		if tripTime.Before(now) {
			return StatusDecision{Display: DisplayCompleted}
		}
		if stored == BookingStatusBooked {
			return StatusDecision{Display: DisplaySystemCancelled, SelfHeal: true}
		}
		return StatusDecision{Display: DisplaySystemCancelled}
	default:
		return StatusDecision{Display: DisplayArchivedUnknown}
	}
}

// DisplayableBooking is a stored booking enriched for presentation.
type DisplayableBooking struct {
	StoredBooking

	UserID string
	// TripLookup records how the live trip was observed in this pass.
	TripLookup TripLookup
	// LiveTripStatus is empty when the live trip could not be observed.
	LiveTripStatus TripStatus
	DriverName     string
	DriverPhone    string

	DisplayStatus   DisplayStatus
	StatusLabel     string
	TripTimeDisplay string
}

// GroupedTrip aggregates all of a user's bookings on one trip.
type GroupedTrip struct {
	TripID             string
	TripDateTime       time.Time
	TripTimeDisplay    string
	DepartureCityValue string
	ArrivalCityValue   string
	DriverID           string
	DriverName         string
	LiveTripStatus     TripStatus

	HeaderStatus GroupStatus
	HeaderLabel  string

	Bookings                   []DisplayableBooking
	ActiveFees                 float64
	CanCancelAnyBookingInGroup bool
}
