// Package scheduler periodically force-refreshes the coupon dataset so that
// remote edits show up without waiting for a request to expire the cache.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/agromin/jurisdiction-validator/internal/domain"
)

// Refresher reloads the coupon dataset regardless of cache age.
type Refresher interface {
	ForceRefresh(ctx context.Context) map[string]domain.CouponRecord
}

// Scheduler wraps robfig/cron and runs one refresh job.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	spec      string
	logger    *slog.Logger
}

// New creates a Scheduler for a cron spec such as "@every 5m". Overlapping
// runs are skipped.
func New(spec string, refresher Refresher, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		refresher: refresher,
		spec:      spec,
		logger:    logger,
	}
}

// Start registers the job and starts the scheduler. The first refresh runs
// on the first tick; startup warms the cache separately.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.refresh(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("coupon refresh scheduled", "spec", s.spec)
	return nil
}

// Stop halts the scheduler and returns a context that is done once any
// running refresh has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	records := s.refresher.ForceRefresh(ctx)
	s.logger.Info("scheduled coupon refresh", "records", len(records))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
