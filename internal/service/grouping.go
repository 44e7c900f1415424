package service

import (
	"sort"
	"time"

	"ridebook/internal/domain"
)

// GroupBookings folds displayable bookings into one group per trip, newest
// trip first.
func GroupBookings(bookings []domain.DisplayableBooking, formatter Formatter, now time.Time) []domain.GroupedTrip {
	index := make(map[string]int)
	groups := make([]domain.GroupedTrip, 0)

	for _, booking := range bookings {
		i, ok := index[booking.TripID]
		if !ok {
			i = len(groups)
			index[booking.TripID] = i
			groups = append(groups, domain.GroupedTrip{
				TripID:             booking.TripID,
				TripDateTime:       booking.TripTime(),
				TripTimeDisplay:    booking.TripTimeDisplay,
				DepartureCityValue: booking.DepartureCityValue,
				ArrivalCityValue:   booking.ArrivalCityValue,
				DriverID:           booking.DriverID,
				DriverName:         booking.DriverName,
			})
		}

		group := &groups[i]
		group.Bookings = append(group.Bookings, booking)
		if group.LiveTripStatus == "" && booking.LiveTripStatus != "" {
			group.LiveTripStatus = booking.LiveTripStatus
		}
		if group.DriverName == "" {
			group.DriverName = booking.DriverName
		}
	}

	for i := range groups {
		finishGroup(&groups[i], formatter, now)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].TripDateTime, groups[j].TripDateTime
		if !a.Equal(b) {
			return a.After(b)
		}
		return groups[i].TripID < groups[j].TripID
	})

	return groups
}

func finishGroup(group *domain.GroupedTrip, formatter Formatter, now time.Time) {
	sort.SliceStable(group.Bookings, func(i, j int) bool {
		a, b := group.Bookings[i], group.Bookings[j]
		if a.SeatName != b.SeatName {
			return a.SeatName < b.SeatName
		}
		return a.BookingID < b.BookingID
	})

	var userCancelled, systemCancelled, booked int
	for _, member := range group.Bookings {
		switch member.DisplayStatus {
		case domain.DisplayUserCancelled:
			userCancelled++
		case domain.DisplaySystemCancelled:
			systemCancelled++
		default:
			group.ActiveFees += member.TripPrice
		}
		if member.Status == domain.BookingStatusBooked {
			booked++
		}
	}

	header := domain.GroupStatus(groupTripStatus(group, now))
	total := len(group.Bookings)
	cancelled := userCancelled + systemCancelled

	switch {
	case userCancelled == total:
		header = domain.GroupCancelledByYou
	case systemCancelled == total:
		header = domain.GroupCancelledBySystem
	case cancelled > 0:
		header = domain.GroupMixedStatus
	case group.LiveTripStatus != "" && group.LiveTripStatus != domain.TripStatusUpcoming:
		header = domain.GroupStatus(domain.DisplayFromTripStatus(group.LiveTripStatus))
	}

	group.HeaderStatus = header
	group.HeaderLabel = formatter.GroupLabel(header)
	group.CanCancelAnyBookingInGroup = group.LiveTripStatus == domain.TripStatusUpcoming && booked > 0
}

// groupTripStatus derives the trip-level status the header starts from.
func groupTripStatus(group *domain.GroupedTrip, now time.Time) domain.DisplayStatus {
	obs := domain.TripObservation{Lookup: domain.TripNotObserved}
	for _, member := range group.Bookings {
		if member.TripLookup != domain.TripNotObserved {
			obs.Lookup = member.TripLookup
			break
		}
	}
	if obs.Lookup == domain.TripNotObserved {
		obs.Lookup = domain.TripMissing
	}
	if group.LiveTripStatus != "" {
		obs = domain.TripObservation{Lookup: domain.TripFound, Status: group.LiveTripStatus, SeatHeld: true}
	}

	return domain.DeriveDisplayStatus(domain.BookingStatusBooked, obs, group.TripDateTime, now).Display
}
