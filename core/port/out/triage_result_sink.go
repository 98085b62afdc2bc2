package out

import (
	"context"

	"triage_server/core/domain"
)

// ResultSink stores run records and the singleton stats document.
type ResultSink interface {
	// AppendRecord stores a record; records are append-only.
	AppendRecord(ctx context.Context, record *domain.RunRecord) error
	// UpsertStats creates the singleton stats document, or merges the
	// given fields into it when it already exists.
	UpsertStats(ctx context.Context, stats *domain.InboxStats) error
	Close(ctx context.Context) error
}

// DashboardReader is the read side used by the dashboard API.
type DashboardReader interface {
	RecentRecords(ctx context.Context, limit int) ([]*domain.RunRecord, error)
	// GetStats returns nil, nil before the first refresh.
	GetStats(ctx context.Context) (*domain.InboxStats, error)
	// SetFeedback annotates a record. The triage core never reads feedback.
	SetFeedback(ctx context.Context, recordID string, feedback domain.Feedback) error
}

// DashboardSink is a sink that also serves the dashboard.
type DashboardSink interface {
	ResultSink
	DashboardReader
}
