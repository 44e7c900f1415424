package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ridebook/internal/domain"
	"ridebook/internal/redis"
	"ridebook/internal/repository"
)

// ReconcilerDeps contains the collaborators of the ReconcilerService.
type ReconcilerDeps struct {
	HistoryRepo repository.HistoryRepository
	TripRepo    repository.TripRepository
	DriverRepo  repository.DriverRepository
	// Profiles is optional.
	Profiles  redis.ProfileCacheInterface
	Formatter Formatter
	Effects   EffectRunner
	Notifier  *NotificationService
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// ReconcilerService derives the effective status of a user's bookings from
// the live trip records and heals stale ones.
type ReconcilerService struct {
	historyRepo repository.HistoryRepository
	tripRepo    repository.TripRepository
	driverRepo  repository.DriverRepository
	profiles    redis.ProfileCacheInterface
	formatter   Formatter
	effects     EffectRunner
	notifier    *NotificationService
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(deps ReconcilerDeps) *ReconcilerService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	effects := deps.Effects
	if effects == nil {
		effects = NewSyncEffects(deps.Logger)
	}
	return &ReconcilerService{
		historyRepo: deps.HistoryRepo,
		tripRepo:    deps.TripRepo,
		driverRepo:  deps.DriverRepo,
		profiles:    deps.Profiles,
		formatter:   deps.Formatter,
		effects:     effects,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		now:         now,
	}
}

// Reconcile loads the user's history and returns it grouped per trip.
func (s *ReconcilerService) Reconcile(ctx context.Context, userID string) ([]domain.GroupedTrip, error) {
	bookings, err := s.ReconcileBookings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return GroupBookings(bookings, s.formatter, s.now()), nil
}

// ReconcileBookings loads the user's history and returns one displayable
// booking per stored booking.
func (s *ReconcilerService) ReconcileBookings(ctx context.Context, userID string) ([]domain.DisplayableBooking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	stored, err := s.historyRepo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.WithField("user_id", userID).WithError(err).Error("failed to read booking history")
		return nil, fmt.Errorf("%w: %w", ErrHistoryFetchFailed, err)
	}

	pass := newReconcilePass(s, userID)
	result := make([]domain.DisplayableBooking, 0, len(stored))
	for _, booking := range stored {
		result = append(result, pass.reconcile(ctx, booking))
	}

	return result, nil
}

type tripObservation struct {
	trip   *domain.LiveTrip
	lookup domain.TripLookup
}

// reconcilePass memoises trip and driver lookups for one call.
type reconcilePass struct {
	svc     *ReconcilerService
	userID  string
	now     time.Time
	trips   map[string]tripObservation
	drivers map[string]*domain.Driver
}

func newReconcilePass(svc *ReconcilerService, userID string) *reconcilePass {
	return &reconcilePass{
		svc:     svc,
		userID:  userID,
		now:     svc.now(),
		trips:   make(map[string]tripObservation),
		drivers: make(map[string]*domain.Driver),
	}
}

func (p *reconcilePass) reconcile(ctx context.Context, stored *domain.StoredBooking) domain.DisplayableBooking {
	booking := *stored
	tripTime := booking.TripTime()

	view := domain.DisplayableBooking{
		UserID:     p.userID,
		TripLookup: domain.TripNotObserved,
	}

	var obs domain.TripObservation
	var trip *domain.LiveTrip
	if !booking.Status.IsTerminal() {
		observed := p.trip(ctx, booking.TripID)
		trip = observed.trip
		obs.Lookup = observed.lookup
		if trip != nil {
			obs.Status = trip.Status
			obs.SeatHeld = trip.Seats().IsOccupiedBy(booking.SeatID, p.userID)
			view.LiveTripStatus = trip.Status
		}
		view.TripLookup = observed.lookup
	}

	decision := domain.DeriveDisplayStatus(booking.Status, obs, tripTime, p.now)
	if decision.SelfHeal {
		p.selfHeal(ctx, &booking)
		booking.Status = domain.BookingStatusSystemCancelled
	}

	driverID := booking.DriverID
	if driverID == "" && trip != nil {
		driverID = trip.DriverID
		booking.DriverID = driverID
	}
	if driver := p.driver(ctx, driverID); driver != nil {
		view.DriverName = driver.Name
		view.DriverPhone = driver.Phone
	}
	if view.DriverName == "" {
		view.DriverName = booking.DriverNameSnapshot
	}

	view.StoredBooking = booking
	view.DisplayStatus = decision.Display
	view.StatusLabel = p.svc.formatter.StatusLabel(decision.Display)
	if !tripTime.IsZero() {
		view.TripTimeDisplay = p.svc.formatter.DateTime(tripTime)
	}

	return view
}

func (p *reconcilePass) trip(ctx context.Context, tripID string) tripObservation {
	if observed, ok := p.trips[tripID]; ok {
		return observed
	}

	var observed tripObservation
	trip, err := p.svc.tripRepo.GetByID(ctx, tripID)
	switch {
	case err == nil:
		observed = tripObservation{trip: trip, lookup: domain.TripFound}
	case errors.Is(err, repository.ErrNotFound):
		observed = tripObservation{lookup: domain.TripMissing}
	default:
		p.svc.logger.WithFields(logrus.Fields{
			"user_id": p.userID,
			"trip_id": tripID,
		}).WithError(err).Warn("live trip lookup failed")
		observed = tripObservation{lookup: domain.TripUnavailable}
	}

	p.trips[tripID] = observed
	return observed
}

func (p *reconcilePass) driver(ctx context.Context, driverID string) *domain.Driver {
	if driverID == "" {
		return nil
	}
	if driver, ok := p.drivers[driverID]; ok {
		return driver
	}

	driver := p.svc.lookupDriver(ctx, driverID)
	p.drivers[driverID] = driver
	return driver
}

// lookupDriver reads a driver profile through the cache. Failures are logged
// and yield nil.
func (s *ReconcilerService) lookupDriver(ctx context.Context, driverID string) *domain.Driver {
	fields := logrus.Fields{"driver_id": driverID}

	if s.profiles != nil {
		cached, err := s.profiles.GetDriver(ctx, driverID)
		if err != nil {
			s.logger.WithFields(fields).WithError(err).Debug("driver profile cache read failed")
		} else if cached != nil {
			return cached
		}
	}

	driver, err := s.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.WithFields(fields).WithError(err).Warn("driver profile lookup failed")
		}
		return nil
	}

	if s.profiles != nil {
		if err := s.profiles.SetDriver(ctx, driver); err != nil {
			s.logger.WithFields(fields).WithError(err).Debug("driver profile cache write failed")
		}
	}

	return driver
}

func (p *reconcilePass) selfHeal(ctx context.Context, booking *domain.StoredBooking) {
	svc := p.svc
	userID := p.userID
	healed := *booking
	at := p.now

	fields := logrus.Fields{
		"user_id":    userID,
		"trip_id":    healed.TripID,
		"booking_id": healed.BookingID,
		"seat":       healed.SeatName,
	}

	svc.effects.Go(ctx, "self-heal", fields, func(ctx context.Context) error {
		changed, err := svc.historyRepo.TransitionStatus(ctx, userID, healed.BookingID, domain.BookingStatusSystemCancelled, at)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		svc.logger.WithFields(fields).Info("stale booking marked system-cancelled")
		healed.Status = domain.BookingStatusSystemCancelled
		if svc.notifier != nil {
			if err := svc.notifier.NotifySelfHealed(ctx, userID, &healed); err != nil {
				return fmt.Errorf("failed to publish self-heal event: %w", err)
			}
		}
		return nil
	})
}
