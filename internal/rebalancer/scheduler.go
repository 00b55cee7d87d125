package rebalancer

import (
	"context"
	"fmt"
	"time"

	"github.com/elys-network/rebalancer/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler triggers Service cycles on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	ctx     context.Context
	now     func() time.Time
	logger  zerolog.Logger
}

// NewScheduler registers the service's cycle under schedule, a standard cron
// expression or descriptor such as "@every 10m". Overlapping runs are skipped.
func NewScheduler(ctx context.Context, service *Service, schedule string) (*Scheduler, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	l := logger.GetForComponent("scheduler")
	cl := cronLogger{logger: l}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		service: service,
		ctx:     ctx,
		now:     time.Now,
		logger:  l,
	}

	if _, err := s.cron.AddFunc(schedule, s.RunNow); err != nil {
		return nil, fmt.Errorf("register rebalance cycle %q: %w", schedule, err)
	}
	return s, nil
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running cycle to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stop timed out with a cycle still running")
	}
}

// RunNow executes one cycle immediately, e.g. at startup.
func (s *Scheduler) RunNow() {
	if s.ctx.Err() != nil {
		s.logger.Info().Msg("Context cancelled, not starting cycle")
		return
	}
	if _, err := s.service.RunCycle(s.ctx, s.now()); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled cycle failed")
	}
}
