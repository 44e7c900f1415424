package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ridebook/internal/domain"
	"ridebook/internal/repository"
)

// TripRepository stores live trips under trips/{tripId}.
type TripRepository struct {
	store repository.RecordStore
}

// NewTripRepository creates a trip repository on top of a record store.
func NewTripRepository(store repository.RecordStore) *TripRepository {
	return &TripRepository{store: store}
}

// GetByID retrieves a live trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.LiveTrip, error) {
	if !repository.ValidSegment(id) {
		return nil, repository.ErrNotFound
	}

	raw, err := r.store.Get(ctx, repository.TripPath(id))
	if err != nil {
		return nil, err
	}

	return decodeTrip(id, raw)
}

// ReleaseSeat frees a seat inside one atomic update of the trip document.
// Only the released seat's entries and updatedAt are rewritten, so the
// entries of other seats stay as stored.
func (r *TripRepository) ReleaseSeat(ctx context.Context, tripID, seatID, userID string, at time.Time) (float64, error) {
	if !repository.ValidSegment(tripID) {
		return 0, repository.ErrNotFound
	}
	if !repository.ValidSegment(seatID) {
		return 0, fmt.Errorf("%w: seat %q", repository.ErrInvalidPath, seatID)
	}

	var fee float64
	err := r.store.AtomicUpdate(ctx, repository.TripPath(tripID), func(current json.RawMessage) (json.RawMessage, error) {
		fee = 0
		if current == nil {
			return nil, repository.ErrNotFound
		}

		trip, err := decodeTrip(tripID, current)
		if err != nil {
			return nil, err
		}
		if trip.Status != domain.TripStatusUpcoming {
			return nil, domain.ErrTripNotUpcoming
		}

		seats := trip.Seats()
		released, err := seats.Release(seatID, userID)
		if err != nil {
			return nil, err
		}

		fields, unset := seats.ReleasedFields(seatID)
		for _, key := range unset {
			fields[key] = repository.DeleteField
		}
		fields["updatedAt"] = at.UTC()

		updated, err := repository.MergeFields(current, fields)
		if err != nil {
			return nil, err
		}

		fee = released
		return updated, nil
	})
	if err != nil {
		return 0, err
	}

	return fee, nil
}

func decodeTrip(id string, raw json.RawMessage) (*domain.LiveTrip, error) {
	var trip domain.LiveTrip
	if err := json.Unmarshal(raw, &trip); err != nil {
		return nil, fmt.Errorf("failed to decode trip %s: %w", id, err)
	}
	trip.ID = id
	return &trip, nil
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
