package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ridebook/internal/repository"
)

const (
	recordKeyPrefix = "records:"

	// maxTxRetries bounds optimistic transaction rounds per AtomicUpdate.
	maxTxRetries = 25
)

// RecordStore keeps one JSON document per key path in Redis.
type RecordStore struct {
	client *redis.Client
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(client *redis.Client) *RecordStore {
	return &RecordStore{client: client}
}

func recordKey(path string) string {
	return recordKeyPrefix + path
}

// Get returns the document stored at path.
func (s *RecordStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, recordKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Set replaces the document at path.
func (s *RecordStore) Set(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", path, err)
	}
	return s.client.Set(ctx, recordKey(path), data, 0).Err()
}

// Update merges fields into the document at path, creating it when absent.
func (s *RecordStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.AtomicUpdate(ctx, path, func(current json.RawMessage) (json.RawMessage, error) {
		return repository.MergeFields(current, fields)
	})
}

// AtomicUpdate runs fn inside a WATCH/MULTI/EXEC transaction and retries
// when another client modified the key in between.
func (s *RecordStore) AtomicUpdate(ctx context.Context, path string, fn repository.UpdateFunc) error {
	key := recordKey(path)

	txf := func(tx *redis.Tx) error {
		var current json.RawMessage
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			current = data
		case !errors.Is(err, redis.Nil):
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, []byte(next), 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return repository.ErrTooManyConflicts
}

// Ensure RecordStore implements repository.RecordStore.
var _ repository.RecordStore = (*RecordStore)(nil)
