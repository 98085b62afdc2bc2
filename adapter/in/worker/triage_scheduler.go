// Package worker drives triage runs without an HTTP request: on a timer
// and from the run request stream.
package worker

import (
	"context"
	"sync"
	"time"

	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// Scheduler triggers a run every interval. Ticks that land on a running
// batch are skipped.
type Scheduler struct {
	triage     in.TriageService
	interval   time.Duration
	runTimeout time.Duration
	runOnStart bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SchedulerConfig struct {
	Interval   time.Duration
	RunTimeout time.Duration
	RunOnStart bool
}

func NewScheduler(parent context.Context, triage in.TriageService, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		triage:     triage,
		interval:   cfg.Interval,
		runTimeout: cfg.RunTimeout,
		runOnStart: cfg.RunOnStart,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	logger.Info("[Scheduler] Starting with interval %v", s.interval)
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for an in-flight run to notice.
func (s *Scheduler) Stop() {
	logger.Info("[Scheduler] Stopping...")
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.tick()
	}
	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[Scheduler] Stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	summary, err := s.triage.Run(ctx, in.TriggerSchedule)
	switch {
	case apperr.HasCode(err, apperr.CodeRunInProgress):
		logger.Info("[Scheduler] Run already in progress, skipping tick")
	case err != nil:
		logger.Error("[Scheduler] Scheduled run failed: %v", err)
	default:
		logger.Debug("[Scheduler] Scheduled run %s processed %d threads", summary.RunID, summary.Eligible)
	}
}
