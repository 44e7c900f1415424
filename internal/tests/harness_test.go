package tests

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"ridebook/internal/format"
	"ridebook/internal/repository/records"
	"ridebook/internal/service"
)

const (
	testUser   = "rider-1"
	otherUser  = "rider-2"
	testDriver = "driver-1"
	testTrip   = "trip-T"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	store        *MockRecordStore
	locks        *MockLockStore
	publisher    *MockPublisher
	logHook      *logtest.Hook
	reconciler   *service.ReconcilerService
	cancellation *service.CancellationService
}

func newHarness(t *testing.T, policy service.RefundPolicy) *harness {
	t.Helper()
	return buildHarness(t, policy, true)
}

// newHarnessDefaultEffects leaves Effects unset so the services pick their own runner.
func newHarnessDefaultEffects(t *testing.T, policy service.RefundPolicy) *harness {
	t.Helper()
	return buildHarness(t, policy, false)
}

func buildHarness(t *testing.T, policy service.RefundPolicy, withEffects bool) *harness {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store := NewMockRecordStore()
	locks := NewMockLockStore()
	publisher := NewMockPublisher()

	historyRepo := records.NewHistoryRepository(store)
	tripRepo := records.NewTripRepository(store)
	driverRepo := records.NewDriverRepository(store)

	now := func() time.Time { return testNow }
	var effects service.EffectRunner
	if withEffects {
		effects = service.NewSyncEffects(logger)
	}
	notifier := service.NewNotificationService(publisher, logger)

	reconciler := service.NewReconcilerService(service.ReconcilerDeps{
		HistoryRepo: historyRepo,
		TripRepo:    tripRepo,
		DriverRepo:  driverRepo,
		Formatter:   format.NewArabic(time.UTC),
		Effects:     effects,
		Notifier:    notifier,
		Logger:      logger,
		Now:         now,
	})

	cancellation := service.NewCancellationService(service.CancellationDeps{
		HistoryRepo: historyRepo,
		TripRepo:    tripRepo,
		Reconciler:  reconciler,
		Refunds:     service.NewRefundService(driverRepo),
		Locks:       locks,
		Notifier:    notifier,
		Effects:     effects,
		Logger:      logger,
		Now:         now,
		Window:      15 * time.Minute,
		Policy:      policy,
	})

	return &harness{
		store:        store,
		locks:        locks,
		publisher:    publisher,
		logHook:      hook,
		reconciler:   reconciler,
		cancellation: cancellation,
	}
}

func (h *harness) putJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	h.store.Put(path, string(data))
}

// seedDriver stores the trip owner with a wallet balance.
func (h *harness) seedDriver(t *testing.T, balance float64) {
	h.putJSON(t, "drivers/"+testDriver, map[string]any{
		"name":          "Driver One",
		"phone":         "0100",
		"walletBalance": balance,
	})
}

// seedTrip stores a live trip in the offeredSeatsConfig shape.
func (h *harness) seedTrip(t *testing.T, tripID, status string, seats map[string]any) {
	h.putJSON(t, "trips/"+tripID, map[string]any{
		"driverId":           testDriver,
		"status":             status,
		"dateTime":           testNow.Add(24 * time.Hour).Format(time.RFC3339),
		"offeredSeatsConfig": seats,
	})
}

type bookingFixture struct {
	id        string
	tripID    string
	seat      string
	bookedAgo time.Duration
	tripAt    time.Time
	fee       float64
	status    string
}

func (b bookingFixture) doc() map[string]any {
	tripAt := b.tripAt
	if tripAt.IsZero() {
		tripAt = testNow.Add(24 * time.Hour)
	}
	status := b.status
	if status == "" {
		status = "booked"
	}
	tripID := b.tripID
	if tripID == "" {
		tripID = testTrip
	}
	return map[string]any{
		"bookingId":          b.id,
		"tripId":             tripID,
		"seatId":             b.seat,
		"seatName":           b.seat,
		"tripDateTime":       tripAt.Format(time.RFC3339),
		"departureCityValue": "cairo",
		"arrivalCityValue":   "giza",
		"driverId":           testDriver,
		"driverNameSnapshot": "Driver One",
		"bookedAt":           testNow.Add(-b.bookedAgo).Format(time.RFC3339),
		"status":             status,
		"tripPrice":          b.fee,
	}
}

// seedHistory stores the user's history.
func (h *harness) seedHistory(t *testing.T, userID string, bookings ...bookingFixture) {
	history := make(map[string]any, len(bookings))
	for _, b := range bookings {
		history[b.id] = b.doc()
	}
	h.putJSON(t, "history/"+userID, history)
}

func occupant(userID string, fee float64) map[string]any {
	return map[string]any{"userId": userID, "fees": fee}
}

func (h *harness) bookingStatus(t *testing.T, userID, bookingID string) string {
	t.Helper()
	doc := h.store.Doc("history/" + userID)
	entry, ok := doc[bookingID].(map[string]any)
	if !ok {
		t.Fatalf("booking %s missing from history", bookingID)
	}
	status, _ := entry["status"].(string)
	return status
}

func (h *harness) seatValue(t *testing.T, tripID, seatID string) any {
	t.Helper()
	doc := h.store.Doc("trips/" + tripID)
	seats, ok := doc["offeredSeatsConfig"].(map[string]any)
	if !ok {
		t.Fatalf("trip %s has no offeredSeatsConfig", tripID)
	}
	return seats[seatID]
}

func (h *harness) walletBalance(t *testing.T) float64 {
	t.Helper()
	doc := h.store.Doc("drivers/" + testDriver)
	balance, _ := doc["walletBalance"].(float64)
	return balance
}

// warnings returns the Warn entries whose message is msg.
func (h *harness) warnings(msg string) []*logrus.Entry {
	var entries []*logrus.Entry
	for _, entry := range h.logHook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == msg {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (h *harness) criticalLogs() []*logrus.Entry {
	var entries []*logrus.Entry
	for _, entry := range h.logHook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && entry.Data["severity"] == "critical" {
			entries = append(entries, entry)
		}
	}
	return entries
}
