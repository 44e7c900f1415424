package service

import (
	"context"
	"fmt"
	"time"

	"ridebook/internal/repository"
)

// RefundService credits released seat fees back to the trip owner's wallet.
type RefundService struct {
	driverRepo repository.DriverRepository
	now        func() time.Time
}

// NewRefundService creates a new RefundService.
func NewRefundService(driverRepo repository.DriverRepository) *RefundService {
	return &RefundService{
		driverRepo: driverRepo,
		now:        time.Now,
	}
}

// Credit adds amount to the owner's wallet and returns the new balance.
//
// The balance is read and written back as two separate operations, so two
// refunds to the same owner racing each other can lose one credit.
func (s *RefundService) Credit(ctx context.Context, driverID string, amount float64) (float64, error) {
	if driverID == "" {
		return 0, ErrInvalidDriverID
	}
	if amount <= 0 {
		return 0, ErrInvalidRefundAmount
	}

	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		return 0, fmt.Errorf("failed to read wallet of %s: %w", driverID, err)
	}

	balance := driver.WalletBalance + amount
	if err := s.driverRepo.UpdateWalletBalance(ctx, driverID, balance, s.now()); err != nil {
		return 0, fmt.Errorf("failed to write wallet of %s: %w", driverID, err)
	}

	return balance, nil
}
