// -----------------------------------------------------------------------
// Scheduler Service - cron-driven pipeline runs with overlap protection
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/interfaces"
)

// Service schedules recurring pipeline runs. A run still in flight when
// the next trigger fires is never overlapped; the trigger is skipped.
type Service struct {
	cfg          *common.SchedulerConfig
	pipelineCfg  *common.PipelineConfig
	orchestrator interfaces.Orchestrator
	cron         *cron.Cron
	logger       arbor.ILogger
	runMu        sync.Mutex
	running      bool
	lastRun      *time.Time
}

// NewService creates a new scheduler
func NewService(cfg *common.SchedulerConfig, pipelineCfg *common.PipelineConfig, orchestrator interfaces.Orchestrator, logger arbor.ILogger) *Service {
	return &Service{
		cfg:          cfg,
		pipelineCfg:  pipelineCfg,
		orchestrator: orchestrator,
		// Seconds field enabled; the default schedule carries six fields
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start registers the configured schedule and begins triggering runs
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.cfg.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.Schedule, s.trigger)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.cfg.Schedule).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop and waits for an in-flight run to finish
func (s *Service) Stop() {
	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	// Block until any in-flight run releases the lock
	s.runMu.Lock()
	s.runMu.Unlock()

	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// trigger fires one scheduled run, skipping when the previous one is
// still in flight
func (s *Service) trigger() {
	if !s.runMu.TryLock() {
		s.logger.Warn().Msg("Previous run still in flight, skipping scheduled trigger")
		return
	}
	defer s.runMu.Unlock()

	now := time.Now()
	s.lastRun = &now

	ctx, cancel := context.WithTimeout(context.Background(), s.pipelineCfg.RunTimeout+10*time.Minute)
	defer cancel()

	summary, err := s.orchestrator.Run(ctx, s.pipelineCfg.SearchCondition)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run failed")
		return
	}

	s.logger.Info().
		Str("status", summary.Status).
		Int("processed", summary.Processed).
		Msg("Scheduled run completed")
}
