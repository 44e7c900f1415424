package redis

import (
	"context"
	"time"

	"ridebook/internal/domain"
)

// LockStoreInterface defines the interface for per-user locking.
type LockStoreInterface interface {
	AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (string, bool, error)
	ReleaseUserLock(ctx context.Context, userID, token string) error
}

// ProfileCacheInterface defines the interface for driver profile caching.
type ProfileCacheInterface interface {
	GetDriver(ctx context.Context, driverID string) (*domain.Driver, error)
	SetDriver(ctx context.Context, driver *domain.Driver) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface    = (*LockStore)(nil)
	_ ProfileCacheInterface = (*ProfileCache)(nil)
)
