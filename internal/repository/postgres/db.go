package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ridebook/internal/repository"
)

const schema = `
	CREATE TABLE IF NOT EXISTS records (
		path       TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

const upsertRecord = `
	INSERT INTO records (path, value, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`

// Querier is the part of *sql.DB and *sql.Tx the record helpers need, so a
// read can run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

func getRecord(ctx context.Context, q Querier, path string, forUpdate bool) (json.RawMessage, error) {
	query := `SELECT value FROM records WHERE path = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var value []byte
	if err := q.QueryRowContext(ctx, query, path).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(value), nil
}

func putRecord(ctx context.Context, q Querier, path string, value json.RawMessage, at time.Time) error {
	_, err := q.ExecContext(ctx, upsertRecord, path, []byte(value), at.UTC())
	return err
}
