// Package in defines inbound ports (driving ports).
package in

import (
	"context"

	"triage_server/core/domain"
)

// Run triggers
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerHTTP     = "http"
	TriggerStream   = "stream"
)

// TriageService runs one batch over the inbox.
type TriageService interface {
	Run(ctx context.Context, trigger string) (*domain.RunSummary, error)
	State() domain.RunState
	RefreshStats(ctx context.Context) (*domain.InboxStats, error)
	InvalidateExamples(ctx context.Context) error
}

// DashboardService serves the read side of the dashboard.
type DashboardService interface {
	Dashboard(ctx context.Context, limit int) (*domain.Dashboard, error)
	Stats(ctx context.Context) (*domain.InboxStats, error)
	SetFeedback(ctx context.Context, recordID string, feedback domain.Feedback) error
}
