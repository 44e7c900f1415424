package repository

import (
	"context"
	"time"

	"ridebook/internal/domain"
)

// DriverRepository defines access to trip owner profiles.
type DriverRepository interface {
	// GetByID retrieves a driver profile by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// UpdateWalletBalance writes the wallet balance with its timestamp.
	UpdateWalletBalance(ctx context.Context, id string, balance float64, at time.Time) error
}
