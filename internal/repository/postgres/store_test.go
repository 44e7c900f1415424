package postgres

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebook/internal/repository"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// jsonArg matches a driver value holding JSON equal to want.
type jsonArg string

func (a jsonArg) Match(v driver.Value) bool {
	data, ok := v.([]byte)
	if !ok {
		return false
	}
	var got, want any
	if json.Unmarshal(data, &got) != nil || json.Unmarshal([]byte(a), &want) != nil {
		return false
	}
	gotBytes, _ := json.Marshal(got)
	wantBytes, _ := json.Marshal(want)
	return bytes.Equal(gotBytes, wantBytes)
}

func setupRecordStoreTest(t *testing.T) (*RecordStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := NewRecordStore(db)
	store.now = func() time.Time { return fixedNow }

	return store, mock, func() { db.Close() }
}

func TestRecordStore_Get(t *testing.T) {
	testCases := []struct {
		name       string
		mockSetup  func(mock sqlmock.Sqlmock)
		assertFunc func(t *testing.T, value json.RawMessage, err error)
	}{
		{
			name: "Success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"status":"upcoming"}`))
				mock.ExpectQuery("^SELECT value FROM records WHERE path").
					WithArgs("trips/t1").
					WillReturnRows(rows)
			},
			assertFunc: func(t *testing.T, value json.RawMessage, err error) {
				assert.NoError(t, err)
				assert.JSONEq(t, `{"status":"upcoming"}`, string(value))
			},
		},
		{
			name: "Not Found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("^SELECT value FROM records WHERE path").
					WithArgs("trips/t1").
					WillReturnRows(sqlmock.NewRows([]string{"value"}))
			},
			assertFunc: func(t *testing.T, value json.RawMessage, err error) {
				assert.ErrorIs(t, err, repository.ErrNotFound)
				assert.Nil(t, value)
			},
		},
		{
			name: "Database Error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("^SELECT value FROM records WHERE path").
					WithArgs("trips/t1").
					WillReturnError(errors.New("connection reset"))
			},
			assertFunc: func(t *testing.T, value json.RawMessage, err error) {
				assert.Error(t, err)
				assert.NotErrorIs(t, err, repository.ErrNotFound)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, cleanup := setupRecordStoreTest(t)
			defer cleanup()

			tc.mockSetup(mock)

			value, err := store.Get(context.Background(), "trips/t1")

			tc.assertFunc(t, value, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRecordStore_Set(t *testing.T) {
	store, mock, cleanup := setupRecordStoreTest(t)
	defer cleanup()

	mock.ExpectExec("^INSERT INTO records").
		WithArgs("drivers/d1", jsonArg(`{"name":"Ali","walletBalance":5}`), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Set(context.Background(), "drivers/d1", map[string]any{"name": "Ali", "walletBalance": 5})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_AtomicUpdate(t *testing.T) {
	reject := errors.New("seat not occupied by you")

	testCases := []struct {
		name       string
		fn         repository.UpdateFunc
		mockSetup  func(mock sqlmock.Sqlmock)
		assertFunc func(t *testing.T, err error)
	}{
		{
			name: "Writes Result",
			fn: func(current json.RawMessage) (json.RawMessage, error) {
				return repository.MergeFields(current, map[string]any{"status": "cancelled"})
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("^SELECT value FROM records WHERE path = \\$1 FOR UPDATE").
					WithArgs("trips/t1").
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"status":"upcoming","seats":1}`)))
				mock.ExpectExec("^INSERT INTO records").
					WithArgs("trips/t1", jsonArg(`{"status":"cancelled","seats":1}`), fixedNow).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			assertFunc: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "Abort Rolls Back",
			fn: func(current json.RawMessage) (json.RawMessage, error) {
				return nil, nil
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("FOR UPDATE").
					WithArgs("trips/t1").
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{}`)))
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "Rejection Propagates",
			fn: func(current json.RawMessage) (json.RawMessage, error) {
				return nil, reject
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("FOR UPDATE").
					WithArgs("trips/t1").
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{}`)))
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, reject)
			},
		},
		{
			name: "Missing Row Passes Nil",
			fn: func(current json.RawMessage) (json.RawMessage, error) {
				if current != nil {
					return nil, errors.New("expected nil document")
				}
				return nil, repository.ErrNotFound
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("FOR UPDATE").
					WithArgs("trips/t1").
					WillReturnRows(sqlmock.NewRows([]string{"value"}))
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, repository.ErrNotFound)
			},
		},
		{
			name: "Commit Failure",
			fn: func(current json.RawMessage) (json.RawMessage, error) {
				return json.RawMessage(`{"a":1}`), nil
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("FOR UPDATE").
					WithArgs("trips/t1").
					WillReturnRows(sqlmock.NewRows([]string{"value"}))
				mock.ExpectExec("^INSERT INTO records").
					WithArgs("trips/t1", jsonArg(`{"a":1}`), fixedNow).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
			},
			assertFunc: func(t *testing.T, err error) {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "failed to commit transaction")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, cleanup := setupRecordStoreTest(t)
			defer cleanup()

			tc.mockSetup(mock)

			err := store.AtomicUpdate(context.Background(), "trips/t1", tc.fn)

			tc.assertFunc(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
