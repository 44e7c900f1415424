package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ridebook/internal/domain"
	"ridebook/internal/repository"
)

// DriverRepository stores driver profiles under drivers/{driverId}.
type DriverRepository struct {
	store repository.RecordStore
}

// NewDriverRepository creates a driver repository on top of a record store.
func NewDriverRepository(store repository.RecordStore) *DriverRepository {
	return &DriverRepository{store: store}
}

// GetByID retrieves a driver profile by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	if !repository.ValidSegment(id) {
		return nil, repository.ErrNotFound
	}

	raw, err := r.store.Get(ctx, repository.DriverPath(id))
	if err != nil {
		return nil, err
	}

	var driver domain.Driver
	if err := json.Unmarshal(raw, &driver); err != nil {
		return nil, fmt.Errorf("failed to decode driver %s: %w", id, err)
	}
	driver.ID = id

	return &driver, nil
}

// UpdateWalletBalance writes the wallet balance and its timestamp. It is a
// plain field update; callers own the read that produced balance.
func (r *DriverRepository) UpdateWalletBalance(ctx context.Context, id string, balance float64, at time.Time) error {
	if !repository.ValidSegment(id) {
		return repository.ErrNotFound
	}

	return r.store.Update(ctx, repository.DriverPath(id), map[string]any{
		"walletBalance": balance,
		"updatedAt":     at.UTC(),
	})
}

// Ensure DriverRepository implements repository.DriverRepository.
var _ repository.DriverRepository = (*DriverRepository)(nil)
