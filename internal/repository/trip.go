package repository

import (
	"context"
	"time"

	"ridebook/internal/domain"
)

// TripRepository defines access to live trips.
type TripRepository interface {
	// GetByID retrieves a live trip by ID.
	GetByID(ctx context.Context, id string) (*domain.LiveTrip, error)

	// ReleaseSeat atomically frees seatID on the trip if userID holds it and
	// the trip is still upcoming. It returns the fee the seat carried.
	ReleaseSeat(ctx context.Context, tripID, seatID, userID string, at time.Time) (float64, error)
}
