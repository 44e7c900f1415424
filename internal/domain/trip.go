package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

// TripStatus represents the current status of a live trip.
type TripStatus string

const (
	TripStatusUpcoming  TripStatus = "upcoming"
	TripStatusOngoing   TripStatus = "ongoing"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

var (
	// ErrSeatNotOccupiedByUser is returned when a seat release is attempted by
	// someone who does not hold the seat.
	ErrSeatNotOccupiedByUser = errors.New("seat not occupied by you")

	// ErrTripNotUpcoming is returned when a trip has left its bookable state.
	ErrTripNotUpcoming = errors.New("trip is no longer upcoming")
)

// Passenger is the occupant entry of a seat.
type Passenger struct {
	UserID string  `json:"userId"`
	Fees   float64 `json:"fees"`
}

// SeatSlot is one entry of offeredSeatsConfig: either the literal true (free)
// or a passenger object (occupied). Anything else means the seat is not offered.
type SeatSlot struct {
	Free     bool
	Occupant *Passenger
	raw      json.RawMessage
}

// FreeSlot returns a slot that marks a seat as free.
func FreeSlot() SeatSlot {
	return SeatSlot{Free: true}
}

// OccupiedSlot returns a slot held by the given passenger.
func OccupiedSlot(p Passenger) SeatSlot {
	return SeatSlot{Occupant: &p}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SeatSlot) UnmarshalJSON(data []byte) error {
	*s = SeatSlot{}
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("true")):
		s.Free = true
	case len(trimmed) > 0 && trimmed[0] == '{':
		var p Passenger
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return err
		}
		s.Occupant = &p
	default:
		s.raw = append(json.RawMessage(nil), trimmed...)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s SeatSlot) MarshalJSON() ([]byte, error) {
	switch {
	case s.Occupant != nil:
		return json.Marshal(s.Occupant)
	case s.Free:
		return []byte("true"), nil
	case len(s.raw) > 0:
		return s.raw, nil
	default:
		return []byte("false"), nil
	}
}

// LiveTrip is the shared, authoritative record of a scheduled ride.
type LiveTrip struct {
	ID                 string               `json:"-"`
	DriverID           string               `json:"driverId,omitempty"`
	Status             TripStatus           `json:"status"`
	DateTime           string               `json:"dateTime,omitempty"`
	OfferedSeatsConfig map[string]SeatSlot  `json:"offeredSeatsConfig,omitempty"`
	OfferedSeatIDs     []string             `json:"offeredSeatIds,omitempty"`
	PassengerDetails   map[string]Passenger `json:"passengerDetails,omitempty"`
}

// SeatMap is the shape-independent view over a trip's seat occupancy.
type SeatMap interface {
	// Occupant returns the passenger holding the seat, if any.
	Occupant(seatID string) (Passenger, bool)
	// IsOccupiedBy reports whether userID currently holds the seat.
	IsOccupiedBy(seatID, userID string) bool
	// Release frees a seat held by userID and returns the fee it carried.
	Release(seatID, userID string) (float64, error)
	// ReleasedFields returns the store fields a release of seatID changes:
	// values to set, and keys to remove. Other seats are not named.
	ReleasedFields(seatID string) (set map[string]any, unset []string)
}

// Seats returns the occupancy view matching the shape present on the record.
func (t *LiveTrip) Seats() SeatMap {
	if t.OfferedSeatsConfig != nil {
		return &configSeats{trip: t}
	}
	return &listSeats{trip: t}
}

// configSeats is the offeredSeatsConfig shape.
type configSeats struct {
	trip *LiveTrip
}

func (c *configSeats) Occupant(seatID string) (Passenger, bool) {
	slot, ok := c.trip.OfferedSeatsConfig[seatID]
	if !ok || slot.Occupant == nil {
		return Passenger{}, false
	}
	return *slot.Occupant, true
}

func (c *configSeats) IsOccupiedBy(seatID, userID string) bool {
	p, ok := c.Occupant(seatID)
	return ok && userID != "" && p.UserID == userID
}

func (c *configSeats) Release(seatID, userID string) (float64, error) {
	p, ok := c.Occupant(seatID)
	if !ok || userID == "" || p.UserID != userID {
		return 0, ErrSeatNotOccupiedByUser
	}
	c.trip.OfferedSeatsConfig[seatID] = FreeSlot()
	return p.Fees, nil
}

func (c *configSeats) ReleasedFields(seatID string) (map[string]any, []string) {
	return map[string]any{"offeredSeatsConfig/" + seatID: true}, nil
}

// listSeats is the offeredSeatIds + passengerDetails shape.
type listSeats struct {
	trip *LiveTrip
}

func (l *listSeats) Occupant(seatID string) (Passenger, bool) {
	p, ok := l.trip.PassengerDetails[seatID]
	return p, ok
}

func (l *listSeats) IsOccupiedBy(seatID, userID string) bool {
	p, ok := l.Occupant(seatID)
	return ok && userID != "" && p.UserID == userID
}

func (l *listSeats) Release(seatID, userID string) (float64, error) {
	p, ok := l.Occupant(seatID)
	if !ok || userID == "" || p.UserID != userID {
		return 0, ErrSeatNotOccupiedByUser
	}
	delete(l.trip.PassengerDetails, seatID)
	for _, id := range l.trip.OfferedSeatIDs {
		if id == seatID {
			return p.Fees, nil
		}
	}
	l.trip.OfferedSeatIDs = append(l.trip.OfferedSeatIDs, seatID)
	return p.Fees, nil
}

func (l *listSeats) ReleasedFields(seatID string) (map[string]any, []string) {
	free := l.trip.OfferedSeatIDs
	if free == nil {
		free = []string{}
	}
	return map[string]any{"offeredSeatIds": free}, []string{"passengerDetails/" + seatID}
}
