package records_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebook/internal/domain"
	"ridebook/internal/redis"
	"ridebook/internal/repository"
	"ridebook/internal/repository/records"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) repository.RecordStore {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return redis.NewRecordStore(client)
}

func seed(t *testing.T, store repository.RecordStore, path, doc string) {
	require.NoError(t, store.Set(context.Background(), path, json.RawMessage(doc)))
}

func TestHistoryRepository_ListByUser(t *testing.T) {
	store := setupStore(t)
	repo := records.NewHistoryRepository(store)
	ctx := context.Background()

	bookings, err := repo.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, bookings)

	seed(t, store, "history/u1", `{
		"b2": {"tripId": "t1", "seatId": "s2", "seatName": "B", "status": "booked", "tripPrice": 40},
		"b1": {"bookingId": "b1", "tripId": "t1", "seatId": "s1", "seatName": "A", "status": "user-cancelled"}
	}`)

	bookings, err = repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "b1", bookings[0].BookingID)
	assert.Equal(t, "b2", bookings[1].BookingID, "booking id falls back to the map key")
	assert.Equal(t, domain.BookingStatusBooked, bookings[1].Status)
	assert.Equal(t, 40.0, bookings[1].TripPrice)
}

func TestHistoryRepository_TransitionStatus(t *testing.T) {
	store := setupStore(t)
	repo := records.NewHistoryRepository(store)
	ctx := context.Background()

	seed(t, store, "history/u1", `{
		"b1": {"tripId": "t1", "seatId": "s1", "status": "booked", "legacyFlag": true},
		"b2": {"tripId": "t2", "seatId": "s9", "status": "booked"}
	}`)

	changed, err := repo.TransitionStatus(ctx, "u1", "b1", domain.BookingStatusUserCancelled, now)
	require.NoError(t, err)
	assert.True(t, changed)

	raw, err := store.Get(ctx, "history/u1")
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "user-cancelled", doc["b1"]["status"])
	assert.Equal(t, true, doc["b1"]["legacyFlag"], "unknown fields survive")
	assert.Equal(t, "booked", doc["b2"]["status"], "other bookings untouched")

	changed, err = repo.TransitionStatus(ctx, "u1", "b1", domain.BookingStatusUserCancelled, now)
	require.NoError(t, err)
	assert.False(t, changed, "re-applying the same terminal status is a no-op")

	_, err = repo.TransitionStatus(ctx, "u1", "b1", domain.BookingStatusSystemCancelled, now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = repo.TransitionStatus(ctx, "u1", "missing", domain.BookingStatusUserCancelled, now)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.TransitionStatus(ctx, "u2", "b1", domain.BookingStatusUserCancelled, now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTripRepository_ReleaseSeat_ConfigShape(t *testing.T) {
	store := setupStore(t)
	repo := records.NewTripRepository(store)
	ctx := context.Background()

	seed(t, store, "trips/t1", `{
		"status": "upcoming",
		"driverId": "d1",
		"offeredSeatsConfig": {"s1": {"userId": "u1", "fees": 50}, "s2": false},
		"routeName": "Cairo - Giza"
	}`)

	fee, err := repo.ReleaseSeat(ctx, "t1", "s1", "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 50.0, fee)

	raw, err := store.Get(ctx, "trips/t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": "upcoming",
		"driverId": "d1",
		"offeredSeatsConfig": {"s1": true, "s2": false},
		"routeName": "Cairo - Giza",
		"updatedAt": "2026-03-01T10:00:00Z"
	}`, string(raw))

	_, err = repo.ReleaseSeat(ctx, "t1", "s1", "u1", now)
	assert.ErrorIs(t, err, domain.ErrSeatNotOccupiedByUser)
}

func TestTripRepository_ReleaseSeat_ListShape(t *testing.T) {
	store := setupStore(t)
	repo := records.NewTripRepository(store)
	ctx := context.Background()

	seed(t, store, "trips/t1", `{
		"status": "upcoming",
		"offeredSeatIds": ["s3"],
		"passengerDetails": {"s1": {"userId": "u1", "fees": 30}, "s2": {"userId": "u2", "fees": 30}}
	}`)

	fee, err := repo.ReleaseSeat(ctx, "t1", "s1", "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 30.0, fee)

	trip, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", trip.ID)
	assert.ElementsMatch(t, []string{"s3", "s1"}, trip.OfferedSeatIDs)
	assert.NotContains(t, trip.PassengerDetails, "s1")
	assert.Contains(t, trip.PassengerDetails, "s2")
}

func TestTripRepository_ReleaseSeat_KeepsOtherOccupants(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "ConfigShape",
			doc: `{
				"status": "upcoming",
				"offeredSeatsConfig": {
					"a": {"userId": "u1", "fees": 10},
					"b": {"userId": "u2", "fees": 20, "name": "Mona", "phone": "0100"}
				}
			}`,
			want: `{
				"status": "upcoming",
				"offeredSeatsConfig": {
					"a": true,
					"b": {"userId": "u2", "fees": 20, "name": "Mona", "phone": "0100"}
				},
				"updatedAt": "2026-03-01T10:00:00Z"
			}`,
		},
		{
			name: "ListShape",
			doc: `{
				"status": "upcoming",
				"offeredSeatIds": [],
				"passengerDetails": {
					"a": {"userId": "u1", "fees": 10, "name": "Omar"},
					"b": {"userId": "u2", "fees": 20, "name": "Mona", "phone": "0100"}
				}
			}`,
			want: `{
				"status": "upcoming",
				"offeredSeatIds": ["a"],
				"passengerDetails": {
					"b": {"userId": "u2", "fees": 20, "name": "Mona", "phone": "0100"}
				},
				"updatedAt": "2026-03-01T10:00:00Z"
			}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := setupStore(t)
			repo := records.NewTripRepository(store)
			ctx := context.Background()
			seed(t, store, "trips/t1", tc.doc)

			fee, err := repo.ReleaseSeat(ctx, "t1", "a", "u1", now)
			require.NoError(t, err)
			assert.Equal(t, 10.0, fee)

			raw, err := store.Get(ctx, "trips/t1")
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(raw))
		})
	}
}

func TestTripRepository_ReleaseSeat_InvalidSeatID(t *testing.T) {
	store := setupStore(t)
	repo := records.NewTripRepository(store)
	seed(t, store, "trips/t1", `{"status": "upcoming", "offeredSeatsConfig": {"a": true}}`)

	_, err := repo.ReleaseSeat(context.Background(), "t1", "a/b", "u1", now)
	assert.ErrorIs(t, err, repository.ErrInvalidPath)
}

func TestTripRepository_ReleaseSeat_Rejections(t *testing.T) {
	store := setupStore(t)
	repo := records.NewTripRepository(store)
	ctx := context.Background()

	seed(t, store, "trips/t2", `{"status": "ongoing", "offeredSeatsConfig": {"s1": {"userId": "u1", "fees": 50}}}`)

	_, err := repo.ReleaseSeat(ctx, "missing", "s1", "u1", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.ReleaseSeat(ctx, "t2", "s1", "u1", now)
	assert.ErrorIs(t, err, domain.ErrTripNotUpcoming)

	raw, err := store.Get(ctx, "trips/t2")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "updatedAt", "rejected release writes nothing")
}

func TestTripRepository_ReleaseSeat_ConcurrentCancellers(t *testing.T) {
	store := setupStore(t)
	repo := records.NewTripRepository(store)
	ctx := context.Background()

	seed(t, store, "trips/t1", `{"status": "upcoming", "offeredSeatsConfig": {"s1": {"userId": "u1", "fees": 50}}}`)

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	fees := make([]float64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fees[i], errs[i] = repo.ReleaseSeat(ctx, "t1", "s1", "u1", now)
		}(i)
	}
	wg.Wait()

	var winners int
	var total float64
	for i := 0; i < callers; i++ {
		if errs[i] == nil {
			winners++
		} else {
			assert.ErrorIs(t, errs[i], domain.ErrSeatNotOccupiedByUser)
		}
		total += fees[i]
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 50.0, total, "the fee is counted once")
}

func TestDriverRepository(t *testing.T) {
	store := setupStore(t)
	repo := records.NewDriverRepository(store)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "d1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	seed(t, store, "drivers/d1", `{"name": "Ali", "phone": "0100", "walletBalance": 100, "rating": 4.9}`)

	driver, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", driver.ID)
	assert.Equal(t, "Ali", driver.Name)
	assert.Equal(t, 100.0, driver.WalletBalance)

	require.NoError(t, repo.UpdateWalletBalance(ctx, "d1", 150, now))

	raw, err := store.Get(ctx, "drivers/d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Ali", "phone": "0100", "walletBalance": 150, "rating": 4.9, "updatedAt": "2026-03-01T10:00:00Z"}`, string(raw))
}
