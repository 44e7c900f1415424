package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridebook/internal/app"
	"ridebook/internal/config"
	"ridebook/internal/format"
	"ridebook/internal/handler"
	"ridebook/internal/nsq"
	internalRedis "ridebook/internal/redis"
	"ridebook/internal/repository"
	"ridebook/internal/repository/postgres"
	"ridebook/internal/repository/records"
	"ridebook/internal/service"
)

func main() {
	cfg := config.Load()
	logger := app.NewLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic first so the database and Redis clients get instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize New Relic")
		} else {
			logger.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	var db *sql.DB
	if cfg.Store.Backend == config.StoreBackendPostgres {
		db, err = app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		logger.Info("connected to PostgreSQL")
	}

	var publisher service.Publisher
	if cfg.NSQ.Addr != "" {
		producer, err := nsq.NewProducer(cfg.NSQ.Addr, logger)
		if err != nil {
			logger.WithError(err).Warn("event publishing disabled")
		} else {
			defer producer.Stop()
			publisher = producer
		}
	}

	effects := service.NewAsyncEffects(logger, cfg.Cancellation.EffectTimeout)
	server := wireServer(cfg, logger, db, redisClient, nrApp, publisher, effects)

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}

	// Let self-heal writes and notifications still in flight finish.
	effects.Wait()

	logger.Info("server exited")
}

// newRecordStore returns the configured record store backend.
func newRecordStore(cfg *config.Config, db *sql.DB, redisClient *redis.Client) repository.RecordStore {
	if cfg.Store.Backend == config.StoreBackendPostgres {
		return postgres.NewRecordStore(db)
	}
	return internalRedis.NewRecordStore(redisClient)
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	cfg *config.Config,
	logger *logrus.Logger,
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	publisher service.Publisher,
	effects service.EffectRunner,
) *http.Server {
	store := newRecordStore(cfg, db, redisClient)

	historyRepo := records.NewHistoryRepository(store)
	tripRepo := records.NewTripRepository(store)
	driverRepo := records.NewDriverRepository(store)

	lockStore := internalRedis.NewLockStore(redisClient)
	profileCache := internalRedis.NewProfileCache(redisClient, cfg.Cancellation.ProfileCacheTTL)

	loc, err := time.LoadLocation(cfg.Display.Timezone)
	if err != nil {
		logger.WithError(err).Warn("unknown display timezone, using UTC")
		loc = time.UTC
	}
	formatter := format.NewArabic(loc)

	notificationService := service.NewNotificationService(publisher, logger)
	refundService := service.NewRefundService(driverRepo)
	reconcilerService := service.NewReconcilerService(service.ReconcilerDeps{
		HistoryRepo: historyRepo,
		TripRepo:    tripRepo,
		DriverRepo:  driverRepo,
		Profiles:    profileCache,
		Formatter:   formatter,
		Effects:     effects,
		Notifier:    notificationService,
		Logger:      logger,
	})
	cancellationService := service.NewCancellationService(service.CancellationDeps{
		HistoryRepo: historyRepo,
		TripRepo:    tripRepo,
		Reconciler:  reconcilerService,
		Refunds:     refundService,
		Locks:       lockStore,
		Notifier:    notificationService,
		Effects:     effects,
		Logger:      logger,
		Window:      cfg.Cancellation.Window,
		Policy:      service.RefundPolicy(cfg.Cancellation.RefundPolicy),
		LockTTL:     cfg.Cancellation.LockTTL,
	})

	historyHandler := handler.NewHistoryHandler(reconcilerService, cancellationService)

	router := app.NewRouter(app.RouterDeps{
		HistoryHandler: historyHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTIssuer:      cfg.Auth.JWTIssuer,
		IdempotencyTTL: cfg.Cancellation.IdempotencyTTL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
