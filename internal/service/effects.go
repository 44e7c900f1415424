package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EffectRunner runs best-effort writes whose failure must not reach the caller.
type EffectRunner interface {
	Go(ctx context.Context, name string, fields logrus.Fields, fn func(ctx context.Context) error)
}

// SyncEffects runs effects inline. Failures are logged.
type SyncEffects struct {
	logger logrus.FieldLogger
}

// NewSyncEffects creates an inline effect runner.
func NewSyncEffects(logger logrus.FieldLogger) *SyncEffects {
	return &SyncEffects{logger: logger}
}

// Go runs fn before returning.
func (e *SyncEffects) Go(ctx context.Context, name string, fields logrus.Fields, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		e.logger.WithFields(fields).WithError(err).Warnf("%s failed", name)
	}
}

// AsyncEffects runs effects on their own goroutine, detached from the
// request's cancellation and bounded by a timeout.
type AsyncEffects struct {
	logger  logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncEffects creates a background effect runner.
func NewAsyncEffects(logger logrus.FieldLogger, timeout time.Duration) *AsyncEffects {
	return &AsyncEffects{logger: logger, timeout: timeout}
}

// Go starts fn in the background.
func (e *AsyncEffects) Go(ctx context.Context, name string, fields logrus.Fields, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		runCtx, cancel := context.WithTimeout(detached, e.timeout)
		defer cancel()

		if err := fn(runCtx); err != nil {
			e.logger.WithFields(fields).WithError(err).Warnf("%s failed", name)
		}
	}()
}

// Wait blocks until every started effect has finished.
func (e *AsyncEffects) Wait() {
	e.wg.Wait()
}
