package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ridebook/internal/domain"
)

const driverProfilePrefix = "cache:driver-profile:"

// CachedProfile is the display part of a driver profile. The wallet balance is
// never cached.
type CachedProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ProfileCache caches driver display profiles in Redis.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProfileCache creates a new ProfileCache.
func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

// GetDriver retrieves a driver profile from cache. A miss returns nil, nil.
func (c *ProfileCache) GetDriver(ctx context.Context, driverID string) (*domain.Driver, error) {
	data, err := c.client.Get(ctx, driverProfilePrefix+driverID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedProfile
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &domain.Driver{ID: cached.ID, Name: cached.Name, Phone: cached.Phone}, nil
}

// SetDriver stores a driver profile in cache.
func (c *ProfileCache) SetDriver(ctx context.Context, driver *domain.Driver) error {
	data, err := json.Marshal(CachedProfile{ID: driver.ID, Name: driver.Name, Phone: driver.Phone})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, driverProfilePrefix+driver.ID, data, c.ttl).Err()
}

// InvalidateDriver removes a driver profile from cache.
func (c *ProfileCache) InvalidateDriver(ctx context.Context, driverID string) error {
	return c.client.Del(ctx, driverProfilePrefix+driverID).Err()
}
