package domain

import (
	"strings"
	"time"
)

// RecordStatus of a run record.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordError   RecordStatus = "error"
)

// Feedback is a viewer annotation; the triage core never reads it.
type Feedback string

const (
	FeedbackNone     Feedback = ""
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// ParseFeedback accepts only positive or negative.
func ParseFeedback(s string) (Feedback, bool) {
	switch Feedback(strings.ToLower(strings.TrimSpace(s))) {
	case FeedbackPositive:
		return FeedbackPositive, true
	case FeedbackNegative:
		return FeedbackNegative, true
	}
	return FeedbackNone, false
}

// BodySnippetLength is the number of body runes stored with each record.
const BodySnippetLength = 200

// RunRecord is written once per processed message and never mutated by the core.
type RunRecord struct {
	ID             string                `json:"id"`
	RunID          string                `json:"run_id"`
	MessageID      string                `json:"message_id"`
	ThreadID       string                `json:"thread_id"`
	Sender         string                `json:"sender"`
	Subject        string                `json:"subject"`
	ReceivedAt     time.Time             `json:"received_at"`
	ProcessedAt    time.Time             `json:"processed_at"`
	BodySnippet    string                `json:"body_snippet"`
	HasAttachments bool                  `json:"has_attachments"`
	Result         *ClassificationResult `json:"result,omitempty"`
	Outcome        DecisionOutcome       `json:"outcome"`
	AppliedLabel   string                `json:"applied_label,omitempty"`
	ProcessingTime time.Duration         `json:"processing_time_ms"`
	Status         RecordStatus          `json:"status"`
	Error          string                `json:"error,omitempty"`
	Feedback       Feedback              `json:"feedback,omitempty"`
}

// ProcessingMillis is the duration in whole milliseconds.
func (r *RunRecord) ProcessingMillis() int64 {
	return r.ProcessingTime.Milliseconds()
}

// Confidence returns the result confidence when known.
func (r *RunRecord) Confidence() (int, bool) {
	if r.Result == nil || r.Result.Confidence == nil {
		return 0, false
	}
	return *r.Result.Confidence, true
}

// StatsStatus tells the dashboard whether a run is in flight.
type StatsStatus string

const (
	StatsIdle    StatsStatus = "IDLE"
	StatsRunning StatsStatus = "RUNNING"
)

// InboxStats is the singleton aggregate refreshed before and after every run.
type InboxStats struct {
	Pending         int         `json:"pending"`
	TotalUnread     int         `json:"totalUnread"`
	ProcessedUnread int         `json:"processedUnread"`
	LastUpdated     time.Time   `json:"lastUpdated"`
	Status          StatsStatus `json:"status,omitempty"`
}

// RunState of the orchestrator.
type RunState string

const (
	StateIdle            RunState = "idle"
	StateLoadingTaxonomy RunState = "loading-taxonomy"
	StateProcessing      RunState = "processing"
	StateReporting       RunState = "reporting"
)

// RunSummary describes one completed run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Eligible   int           `json:"eligible"`
	Applied    int           `json:"applied"`
	Deferred   int           `json:"deferred"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Stats      *InboxStats   `json:"stats,omitempty"`
	Duration   time.Duration `json:"duration_ms"`
}

// SenderCount is one row of the top-senders aggregate.
type SenderCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Dashboard bundles the data the web dashboard renders.
type Dashboard struct {
	Records       []*RunRecord  `json:"records"`
	AvgConfidence float64       `json:"avg_confidence"`
	TopSenders    []SenderCount `json:"top_senders"`
	Stats         *InboxStats   `json:"stats,omitempty"`
}
