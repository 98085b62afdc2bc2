package out

import (
	"context"
	"time"
)

// RunRequest asks a worker to start a triage run.
type RunRequest struct {
	RequestID   string    `json:"request_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// RunPublisher hands run requests to the worker process.
type RunPublisher interface {
	PublishRun(ctx context.Context, req *RunRequest) error
}
