// Command seed loads a JSON fixture of {"path": document} pairs into the
// configured record store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ridebook/internal/app"
	"ridebook/internal/config"
	internalRedis "ridebook/internal/redis"
	"ridebook/internal/repository"
	"ridebook/internal/repository/postgres"
)

func main() {
	file := flag.String("file", "fixtures/seed.json", "fixture file")
	flag.Parse()

	cfg := config.Load()
	logger := app.NewLogger(cfg.Log)

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.WithError(err).Fatal("failed to read fixture")
	}

	var fixture map[string]json.RawMessage
	if err := json.Unmarshal(data, &fixture); err != nil {
		logger.WithError(err).Fatal("fixture must be an object of path to document")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Cached driver profiles always live in Redis, whatever the record backend.
	client, err := app.NewRedisClient(ctx, cfg.Redis, nil)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer client.Close()
	profiles := internalRedis.NewProfileCache(client, cfg.Cancellation.ProfileCacheTTL)

	var store repository.RecordStore = internalRedis.NewRecordStore(client)
	if cfg.Store.Backend == config.StoreBackendPostgres {
		db, err := app.NewDatabase(ctx, cfg.Database, nil)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		store = postgres.NewRecordStore(db)
	}

	if err := load(ctx, store, profiles, fixture, logger); err != nil {
		logger.WithError(err).Fatal("seed failed")
	}
}

// load writes every fixture record in path order. Driver profiles that were
// rewritten are dropped from the profile cache.
func load(ctx context.Context, store repository.RecordStore, profiles *internalRedis.ProfileCache, fixture map[string]json.RawMessage, logger logrus.FieldLogger) error {
	paths := make([]string, 0, len(fixture))
	for path := range fixture {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := store.Set(ctx, path, fixture[path]); err != nil {
			return err
		}
		logger.WithField("path", path).Info("record written")

		if driverID, ok := strings.CutPrefix(path, "drivers/"); ok && profiles != nil {
			if err := profiles.InvalidateDriver(ctx, driverID); err != nil {
				logger.WithField("driver_id", driverID).WithError(err).Warn("failed to drop cached profile")
			}
		}
	}
	logger.WithField("records", len(paths)).Info("seed complete")
	return nil
}
