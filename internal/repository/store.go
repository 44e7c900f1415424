package repository

import (
	"context"
	"encoding/json"
	"strings"
)

// UpdateFunc computes the new value of a record from its current value.
// current is nil when the record does not exist. Returning a nil value with a
// nil error aborts the update without writing; returning an error rejects it
// and the error is propagated to the AtomicUpdate caller.
type UpdateFunc func(current json.RawMessage) (json.RawMessage, error)

// RecordStore is a key-path addressed document store.
type RecordStore interface {
	// Get returns the document at path or ErrNotFound.
	Get(ctx context.Context, path string) (json.RawMessage, error)

	// Set replaces the document at path.
	Set(ctx context.Context, path string, value any) error

	// Update merges fields into the document at path. Field names may be
	// slash-separated to reach nested objects.
	Update(ctx context.Context, path string, fields map[string]any) error

	// AtomicUpdate runs a read-modify-write on one path. fn may be invoked
	// more than once when concurrent writers conflict.
	AtomicUpdate(ctx context.Context, path string, fn UpdateFunc) error
}

// HistoryPath is the document holding a user's bookings keyed by booking id.
func HistoryPath(userID string) string {
	return "history/" + userID
}

// TripPath is the document holding a live trip.
func TripPath(tripID string) string {
	return "trips/" + tripID
}

// DriverPath is the document holding a driver profile and wallet.
func DriverPath(driverID string) string {
	return "drivers/" + driverID
}

// ValidSegment reports whether id can be used as a single path segment.
func ValidSegment(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/.#$[]")
}
