package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ridebook/internal/repository"
)

// RecordStore is a PostgreSQL implementation of repository.RecordStore. Each
// key path is one row of the records table holding a JSONB document.
type RecordStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecordStore creates a new PostgreSQL record store.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db, now: time.Now}
}

// EnsureSchema creates the records table when it does not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Get returns the document stored at path.
func (s *RecordStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return getRecord(ctx, s.db, path, false)
}

// Set replaces the document at path.
func (s *RecordStore) Set(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", path, err)
	}
	return putRecord(ctx, s.db, path, data, s.now())
}

// Update merges fields into the document at path, creating it when absent.
func (s *RecordStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.AtomicUpdate(ctx, path, func(current json.RawMessage) (json.RawMessage, error) {
		return repository.MergeFields(current, fields)
	})
}

// AtomicUpdate locks the row with SELECT ... FOR UPDATE, applies fn and writes
// the result in the same transaction. Concurrent callers queue on the row
// lock so fn runs once per call.
func (s *RecordStore) AtomicUpdate(ctx context.Context, path string, fn repository.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	current, err := getRecord(ctx, tx, path, true)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		_ = tx.Rollback()
		return err
	}

	next, err := fn(current)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if next == nil {
		return tx.Rollback()
	}

	if err := putRecord(ctx, tx, path, next, s.now()); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ensure RecordStore implements repository.RecordStore.
var _ repository.RecordStore = (*RecordStore)(nil)
