package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLock deletes the lock only while it still carries the caller's token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func cancellationLockKey(userID string) string {
	return fmt.Sprintf("lock:cancellation:%s", userID)
}

// AcquireUserLock attempts to take the cancellation lock of a user.
// Returns the owner token and true if the lock was acquired, false if already held.
func (s *LockStore) AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := s.client.SetNX(ctx, cancellationLockKey(userID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

// ReleaseUserLock releases the cancellation lock of a user if token still
// owns it. A lock that expired and was taken by another batch is left alone.
func (s *LockStore) ReleaseUserLock(ctx context.Context, userID, token string) error {
	return releaseLock.Run(ctx, s.client, []string{cancellationLockKey(userID)}, token).Err()
}
