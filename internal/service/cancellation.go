package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridebook/internal/domain"
	"ridebook/internal/redis"
	"ridebook/internal/repository"
)

// RefundPolicy decides what a batch with per-seat failures refunds.
type RefundPolicy string

const (
	// RefundAllOrNothing refunds only when every seat of the batch was released.
	RefundAllOrNothing RefundPolicy = "all-or-nothing"
	// RefundPerSeat refunds the fees of the seats actually released.
	RefundPerSeat RefundPolicy = "per-seat"
)

const (
	defaultCancellationWindow = 15 * time.Minute
	defaultCancellationLock   = 30 * time.Second

	refundWarning = "the refund to the trip owner could not be recorded and has been flagged for review"
)

// CancellationDeps contains the collaborators of the CancellationService.
type CancellationDeps struct {
	HistoryRepo repository.HistoryRepository
	TripRepo    repository.TripRepository
	Reconciler  *ReconcilerService
	Refunds     *RefundService
	// Locks is optional; without it batches of one user are not serialised.
	Locks    redis.LockStoreInterface
	Notifier *NotificationService
	Effects  EffectRunner
	Logger   logrus.FieldLogger
	Now      func() time.Time

	Window  time.Duration
	Policy  RefundPolicy
	LockTTL time.Duration
}

// CancellationService cancels a user's seats and refunds the trip owner.
type CancellationService struct {
	historyRepo repository.HistoryRepository
	tripRepo    repository.TripRepository
	reconciler  *ReconcilerService
	refunds     *RefundService
	locks       redis.LockStoreInterface
	notifier    *NotificationService
	effects     EffectRunner
	history     *SyncEffects
	logger      logrus.FieldLogger
	now         func() time.Time

	window  time.Duration
	policy  RefundPolicy
	lockTTL time.Duration
}

// NewCancellationService creates a new CancellationService.
func NewCancellationService(deps CancellationDeps) *CancellationService {
	s := &CancellationService{
		historyRepo: deps.HistoryRepo,
		tripRepo:    deps.TripRepo,
		reconciler:  deps.Reconciler,
		refunds:     deps.Refunds,
		locks:       deps.Locks,
		notifier:    deps.Notifier,
		effects:     deps.Effects,
		history:     NewSyncEffects(deps.Logger),
		logger:      deps.Logger,
		now:         deps.Now,
		window:      deps.Window,
		policy:      deps.Policy,
		lockTTL:     deps.LockTTL,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.effects == nil {
		s.effects = s.history
	}
	if s.window <= 0 {
		s.window = defaultCancellationWindow
	}
	if s.policy != RefundPerSeat {
		s.policy = RefundAllOrNothing
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultCancellationLock
	}
	return s
}

// CancelledSeat is one seat released by a batch.
type CancelledSeat struct {
	BookingID string  `json:"booking_id"`
	SeatName  string  `json:"seat_name"`
	Fee       float64 `json:"fee"`
}

// CancellationResult is the outcome of ExecuteCancellation.
type CancellationResult struct {
	BatchID       string          `json:"batch_id"`
	Succeeded     bool            `json:"succeeded"`
	Cancelled     []CancelledSeat `json:"cancelled"`
	PerSeatErrors []SeatError     `json:"per_seat_errors"`
	Refunded      float64         `json:"refunded"`
	Warning       string          `json:"warning,omitempty"`
}

// InitiateCancellation returns the members of group that may be cancelled now.
func (s *CancellationService) InitiateCancellation(group domain.GroupedTrip) []domain.DisplayableBooking {
	now := s.now()
	eligible := make([]domain.DisplayableBooking, 0, len(group.Bookings))
	for _, booking := range group.Bookings {
		if booking.Status != domain.BookingStatusBooked {
			continue
		}
		if booking.LiveTripStatus != domain.TripStatusUpcoming {
			continue
		}
		if !s.withinWindow(booking.BookedAt, now) {
			continue
		}
		eligible = append(eligible, booking)
	}
	return eligible
}

// CancellableBookings reconciles the user's history and returns the eligible
// bookings of one trip.
func (s *CancellationService) CancellableBookings(ctx context.Context, userID, tripID string) ([]domain.DisplayableBooking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	groups, err := s.reconciler.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, group := range groups {
		if group.TripID == tripID {
			return s.InitiateCancellation(group), nil
		}
	}
	return nil, ErrTripNotInHistory
}

// ExecuteCancellationByIDs reconciles the user's history and cancels the named
// bookings. An unknown booking id rejects the whole batch.
func (s *CancellationService) ExecuteCancellationByIDs(ctx context.Context, userID string, bookingIDs []string) (*CancellationResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if len(bookingIDs) == 0 {
		return nil, ErrNoBookingsSelected
	}

	bookings, err := s.reconciler.ReconcileBookings(ctx, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.DisplayableBooking, len(bookings))
	for _, booking := range bookings {
		byID[booking.BookingID] = booking
	}

	selected := make([]domain.DisplayableBooking, 0, len(bookingIDs))
	var missing []SeatError
	for _, id := range bookingIDs {
		booking, ok := byID[id]
		if !ok {
			missing = append(missing, SeatError{BookingID: id, Reason: ReasonBookingNotFound})
			continue
		}
		selected = append(selected, booking)
	}
	if len(missing) > 0 {
		return nil, &BatchRejectedError{Cause: ErrBookingsNotEligible, Seats: missing}
	}

	return s.ExecuteCancellation(ctx, userID, selected)
}

// ExecuteCancellation releases the selected seats one by one, marks the
// bookings user-cancelled and refunds the trip owner.
//
// Eligibility is checked against the stored records and every targeted trip is
// re-read before anything is written; either check failing rejects the whole
// batch with a *BatchRejectedError. Once the first seat is released the batch
// runs to completion even if ctx is cancelled.
func (s *CancellationService) ExecuteCancellation(ctx context.Context, userID string, bookings []domain.DisplayableBooking) (*CancellationResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	selected := dedupeBookings(bookings)
	if len(selected) == 0 {
		return nil, ErrNoBookingsSelected
	}

	batchID := uuid.New().String()
	logger := s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"batch_id": batchID,
	})

	if s.locks != nil {
		token, acquired, err := s.locks.AcquireUserLock(ctx, userID, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire cancellation lock: %w", err)
		}
		if !acquired {
			return nil, ErrCancellationInProgress
		}
		defer func() {
			if err := s.locks.ReleaseUserLock(context.WithoutCancel(ctx), userID, token); err != nil {
				logger.WithError(err).Warn("failed to release cancellation lock")
			}
		}()
	}

	now := s.now()

	stored, err := s.validate(ctx, userID, selected, now)
	if err != nil {
		return nil, err
	}

	owners, err := s.preflight(ctx, stored)
	if err != nil {
		logger.WithError(err).Info("cancellation aborted at pre-flight")
		return nil, err
	}

	mctx := context.WithoutCancel(ctx)
	result := &CancellationResult{
		BatchID:       batchID,
		Cancelled:     []CancelledSeat{},
		PerSeatErrors: []SeatError{},
	}
	totals := make(map[string]float64)

	for _, booking := range stored {
		fields := logrus.Fields{
			"trip_id":    booking.TripID,
			"booking_id": booking.BookingID,
			"seat":       booking.SeatName,
		}

		fee, err := s.tripRepo.ReleaseSeat(mctx, booking.TripID, booking.SeatID, userID, now)
		if err != nil {
			logger.WithFields(fields).WithError(err).Warn("seat release rejected")
			result.PerSeatErrors = append(result.PerSeatErrors, SeatError{
				BookingID: booking.BookingID,
				SeatName:  booking.SeatName,
				Reason:    releaseReason(err),
			})
			continue
		}

		result.Cancelled = append(result.Cancelled, CancelledSeat{
			BookingID: booking.BookingID,
			SeatName:  booking.SeatName,
			Fee:       fee,
		})

		owner := booking.DriverID
		if owner == "" {
			owner = owners[booking.TripID]
		}
		totals[owner] += fee

		bookingID := booking.BookingID
		s.history.Go(mctx, "history status update", logger.WithFields(fields).Data, func(ctx context.Context) error {
			_, err := s.historyRepo.TransitionStatus(ctx, userID, bookingID, domain.BookingStatusUserCancelled, now)
			return err
		})
	}

	result.Succeeded = len(result.PerSeatErrors) == 0

	if result.Succeeded || s.policy == RefundPerSeat {
		s.refund(mctx, logger, totals, result)
	} else {
		logger.WithField("policy", s.policy).Info("refund discarded for partially failed batch")
	}

	if s.notifier != nil {
		summary := *result
		s.effects.Go(mctx, "cancellation summary", logger.WithField("topic", TopicCancellationSummary).Data, func(ctx context.Context) error {
			return s.notifier.NotifyCancellationSummary(ctx, userID, &summary)
		})
	}

	return result, nil
}

// validate re-reads every selected booking from the user's history.
func (s *CancellationService) validate(ctx context.Context, userID string, selected []domain.DisplayableBooking, now time.Time) ([]*domain.StoredBooking, error) {
	stored := make([]*domain.StoredBooking, 0, len(selected))
	var rejected []SeatError

	for _, booking := range selected {
		record, err := s.historyRepo.GetBooking(ctx, userID, booking.BookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				rejected = append(rejected, SeatError{BookingID: booking.BookingID, SeatName: booking.SeatName, Reason: ReasonBookingNotFound})
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrHistoryFetchFailed, err)
		}

		reason := ""
		switch {
		case record.Status != domain.BookingStatusBooked:
			reason = ReasonBookingNotActive
		case booking.LiveTripStatus != domain.TripStatusUpcoming:
			reason = ReasonTripNotUpcoming
		case !s.withinWindow(record.BookedAt, now):
			reason = ReasonWindowExpired
		}
		if reason != "" {
			rejected = append(rejected, SeatError{BookingID: record.BookingID, SeatName: record.SeatName, Reason: reason})
			continue
		}

		stored = append(stored, record)
	}

	if len(rejected) > 0 {
		return nil, &BatchRejectedError{Cause: ErrBookingsNotEligible, Seats: rejected}
	}
	return stored, nil
}

// preflight re-reads every targeted trip and returns the owner of each.
func (s *CancellationService) preflight(ctx context.Context, bookings []*domain.StoredBooking) (map[string]string, error) {
	owners := make(map[string]string)
	changed := make(map[string]bool)

	for _, booking := range bookings {
		if _, seen := owners[booking.TripID]; seen || changed[booking.TripID] {
			continue
		}

		trip, err := s.tripRepo.GetByID(ctx, booking.TripID)
		if err != nil || trip.Status != domain.TripStatusUpcoming {
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				s.logger.WithField("trip_id", booking.TripID).WithError(err).Warn("pre-flight trip read failed")
			}
			changed[booking.TripID] = true
			continue
		}
		owners[booking.TripID] = trip.DriverID
	}

	if len(changed) == 0 {
		return owners, nil
	}

	var affected []SeatError
	for _, booking := range bookings {
		if changed[booking.TripID] {
			affected = append(affected, SeatError{
				BookingID: booking.BookingID,
				SeatName:  booking.SeatName,
				Reason:    ReasonTripStateChanged,
			})
		}
	}
	return nil, &BatchRejectedError{Cause: ErrTripStateChanged, Seats: affected}
}

func (s *CancellationService) refund(ctx context.Context, logger logrus.FieldLogger, totals map[string]float64, result *CancellationResult) {
	owners := make([]string, 0, len(totals))
	for owner := range totals {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		amount := totals[owner]
		if amount <= 0 {
			continue
		}

		if _, err := s.refunds.Credit(ctx, owner, amount); err != nil {
			logger.WithFields(logrus.Fields{
				"severity":  "critical",
				"driver_id": owner,
				"amount":    amount,
			}).WithError(err).Error("refund to trip owner failed")
			result.Warning = refundWarning
			continue
		}
		result.Refunded += amount
	}
}

func (s *CancellationService) withinWindow(bookedAt, now time.Time) bool {
	if bookedAt.IsZero() {
		return false
	}
	return now.Sub(bookedAt) < s.window
}

func releaseReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSeatNotOccupiedByUser):
		return ReasonSeatNotOccupied
	case errors.Is(err, domain.ErrTripNotUpcoming), errors.Is(err, repository.ErrNotFound):
		return ReasonTripStateChanged
	default:
		return ReasonSeatReleaseFailed
	}
}

func dedupeBookings(bookings []domain.DisplayableBooking) []domain.DisplayableBooking {
	seen := make(map[string]bool, len(bookings))
	result := make([]domain.DisplayableBooking, 0, len(bookings))
	for _, booking := range bookings {
		if booking.BookingID == "" || seen[booking.BookingID] {
			continue
		}
		seen[booking.BookingID] = true
		result = append(result, booking)
	}
	return result
}
