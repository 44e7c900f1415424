package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"ridebook/internal/domain"
	"ridebook/internal/repository"
)

// HistoryRepository stores bookings under history/{userId}.
type HistoryRepository struct {
	store repository.RecordStore
}

// NewHistoryRepository creates a history repository on top of a record store.
func NewHistoryRepository(store repository.RecordStore) *HistoryRepository {
	return &HistoryRepository{store: store}
}

// ListByUser retrieves every stored booking of a user, ordered by booking ID.
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string) ([]*domain.StoredBooking, error) {
	if !repository.ValidSegment(userID) {
		return nil, fmt.Errorf("%w: user %q", repository.ErrInvalidPath, userID)
	}

	raw, err := r.store.Get(ctx, repository.HistoryPath(userID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []*domain.StoredBooking{}, nil
		}
		return nil, err
	}

	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}

	bookings := make([]*domain.StoredBooking, 0, len(entries))
	for id, entry := range entries {
		booking, err := decodeBooking(id, entry)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}

	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].BookingID < bookings[j].BookingID
	})

	return bookings, nil
}

// GetBooking retrieves one stored booking.
func (r *HistoryRepository) GetBooking(ctx context.Context, userID, bookingID string) (*domain.StoredBooking, error) {
	if !repository.ValidSegment(userID) {
		return nil, fmt.Errorf("%w: user %q", repository.ErrInvalidPath, userID)
	}

	raw, err := r.store.Get(ctx, repository.HistoryPath(userID))
	if err != nil {
		return nil, err
	}

	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}

	entry, ok := entries[bookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return decodeBooking(bookingID, entry)
}

// TransitionStatus atomically moves a booking to next. The state machine check
// runs inside the atomic update so a terminal status is never overwritten.
func (r *HistoryRepository) TransitionStatus(ctx context.Context, userID, bookingID string, next domain.BookingStatus, at time.Time) (bool, error) {
	if !repository.ValidSegment(userID) {
		return false, fmt.Errorf("%w: user %q", repository.ErrInvalidPath, userID)
	}

	var changed bool
	err := r.store.AtomicUpdate(ctx, repository.HistoryPath(userID), func(current json.RawMessage) (json.RawMessage, error) {
		changed = false
		if current == nil {
			return nil, repository.ErrNotFound
		}

		entries, err := decodeEntries(current)
		if err != nil {
			return nil, err
		}

		entry, ok := entries[bookingID]
		if !ok {
			return nil, repository.ErrNotFound
		}

		booking, err := decodeBooking(bookingID, entry)
		if err != nil {
			return nil, err
		}

		moved, err := booking.Transition(next)
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, nil
		}

		patched, err := repository.MergeFields(entry, map[string]any{
			"status":          next,
			"statusUpdatedAt": at.UTC(),
		})
		if err != nil {
			return nil, err
		}
		entries[bookingID] = patched

		changed = true
		return json.Marshal(entries)
	})
	if err != nil {
		return false, err
	}

	return changed, nil
}

func decodeEntries(raw json.RawMessage) (map[string]json.RawMessage, error) {
	entries := map[string]json.RawMessage{}
	if len(raw) == 0 || string(raw) == "null" {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return entries, nil
}

func decodeBooking(id string, entry json.RawMessage) (*domain.StoredBooking, error) {
	var booking domain.StoredBooking
	if err := json.Unmarshal(entry, &booking); err != nil {
		return nil, fmt.Errorf("failed to decode booking %s: %w", id, err)
	}
	if booking.BookingID == "" {
		booking.BookingID = id
	}
	if booking.Status == "" {
		booking.Status = domain.BookingStatusBooked
	}
	return &booking, nil
}

// Ensure HistoryRepository implements repository.HistoryRepository.
var _ repository.HistoryRepository = (*HistoryRepository)(nil)
