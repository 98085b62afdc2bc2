package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/pkg/apperr"

	"github.com/rs/zerolog"
)

type countingTriage struct {
	calls    atomic.Int32
	err      error
	triggers chan string
}

func (c *countingTriage) Run(ctx context.Context, trigger string) (*domain.RunSummary, error) {
	c.calls.Add(1)
	if c.triggers != nil {
		select {
		case c.triggers <- trigger:
		default:
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &domain.RunSummary{RunID: "run", Trigger: trigger}, nil
}

func (c *countingTriage) State() domain.RunState { return domain.StateIdle }

func (c *countingTriage) RefreshStats(ctx context.Context) (*domain.InboxStats, error) {
	return nil, nil
}

func (c *countingTriage) InvalidateExamples(ctx context.Context) error { return nil }

func TestSchedulerRunsOnStartAndTicks(t *testing.T) {
	svc := &countingTriage{triggers: make(chan string, 8)}
	s := NewScheduler(context.Background(), svc, SchedulerConfig{
		Interval:   20 * time.Millisecond,
		RunOnStart: true,
	})
	s.Start()
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case trig := <-svc.triggers:
			if trig != "schedule" {
				t.Errorf("trigger = %q", trig)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d not triggered", i+1)
		}
	}
}

func TestSchedulerStopEndsLoop(t *testing.T) {
	svc := &countingTriage{err: apperr.ErrRunInProgress}
	s := NewScheduler(context.Background(), svc, SchedulerConfig{Interval: time.Hour})
	s.Start()
	s.Stop()

	if n := svc.calls.Load(); n != 0 {
		t.Errorf("calls = %d, want 0 without RunOnStart", n)
	}
}

func TestRunHandler(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		runErr    error
		wantErr   bool
		wantCalls int32
	}{
		{"runs", `{"request_id":"r1","trigger":"http"}`, nil, false, 1},
		{"malformed is acked", `not json`, nil, false, 0},
		{"in progress is acked", `{"request_id":"r2"}`, apperr.ErrRunInProgress, false, 1},
		{"setup failure is retried", `{"request_id":"r3"}`, errors.New("gmail down"), true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &countingTriage{err: tt.runErr}
			h := NewRunHandler(svc, time.Minute, zerolog.Nop())

			err := h.Handle(context.Background(), "triage:run", []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := svc.calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}
