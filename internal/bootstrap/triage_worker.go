package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"triage_server/adapter/in/worker"
	"triage_server/adapter/out/messaging"
	"triage_server/config"
	"triage_server/pkg/logger"
)

// Worker runs triage batches without an HTTP request: on the schedule and
// from the run request stream.
type Worker struct {
	scheduler *worker.Scheduler
	consumer  *messaging.Consumer
	log       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(parent context.Context, cfg *config.Config, deps *Dependencies) *Worker {
	ctx, cancel := context.WithCancel(parent)
	log := deps.Log.WithField("component", "worker")
	w := &Worker{log: log, ctx: ctx, cancel: cancel}

	if cfg.SchedulerEnabled {
		w.scheduler = worker.NewScheduler(ctx, deps.Triage, worker.SchedulerConfig{
			Interval:   cfg.ScheduleInterval,
			RunTimeout: cfg.RunTimeout,
			RunOnStart: true,
		})
	}

	if deps.Redis != nil {
		zlog := log.Zerolog()
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:    cfg.ConsumerGroup,
			Consumer: cfg.WorkerID,
			Streams:  []string{cfg.RunStream},
			Handler:  worker.NewRunHandler(deps.Triage, cfg.RunTimeout, zlog),
			Logger:   zlog,
			Block:    time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		})
		log.Info("Run request consumer configured for stream %s", cfg.RunStream)
	} else {
		log.Warn("Redis not available, worker only runs on schedule")
	}
	return w
}

func (w *Worker) Start() {
	if w.scheduler != nil {
		w.scheduler.Start()
	}
	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.WithError(err).Error("Run request consumer stopped")
			}
		}()
	}
	w.log.Info("Worker started")
}

// Stop cancels the consumer and scheduler and waits for in-flight work,
// giving up after timeout.
func (w *Worker) Stop(timeout time.Duration) {
	w.cancel()
	done := make(chan struct{})
	go func() {
		if w.scheduler != nil {
			w.scheduler.Stop()
		}
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("Worker stopped")
	case <-time.After(timeout):
		w.log.Warn("Worker stop timed out after %v", timeout)
	}
}
