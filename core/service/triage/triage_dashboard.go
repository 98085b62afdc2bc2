package triage

import (
	"context"
	"sort"
	"strings"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

const (
	DefaultRecordLimit = 50
	MaxRecordLimit     = 500
	topSenderCount     = 5
)

// DashboardService serves recent records and aggregates over them.
type DashboardService struct {
	reader out.DashboardReader
}

func NewDashboardService(reader out.DashboardReader) *DashboardService {
	return &DashboardService{reader: reader}
}

func (s *DashboardService) Dashboard(ctx context.Context, limit int) (*domain.Dashboard, error) {
	if limit <= 0 {
		limit = DefaultRecordLimit
	}
	if limit > MaxRecordLimit {
		limit = MaxRecordLimit
	}

	records, err := s.reader.RecentRecords(ctx, limit)
	if err != nil {
		return nil, apperr.Sink("recent records", err)
	}
	stats, err := s.reader.GetStats(ctx)
	if err != nil {
		return nil, apperr.Sink("get stats", err)
	}

	return &domain.Dashboard{
		Records:       records,
		AvgConfidence: AverageConfidence(records),
		TopSenders:    TopSenders(records, topSenderCount),
		Stats:         stats,
	}, nil
}

func (s *DashboardService) Stats(ctx context.Context) (*domain.InboxStats, error) {
	stats, err := s.reader.GetStats(ctx)
	if err != nil {
		return nil, apperr.Sink("get stats", err)
	}
	if stats == nil {
		return nil, apperr.NotFound("stats")
	}
	return stats, nil
}

func (s *DashboardService) SetFeedback(ctx context.Context, recordID string, feedback domain.Feedback) error {
	if strings.TrimSpace(recordID) == "" {
		return apperr.InvalidInput("id", "record id is required")
	}
	if feedback != domain.FeedbackPositive && feedback != domain.FeedbackNegative {
		return apperr.InvalidInput("feedback", "must be positive or negative")
	}
	return s.reader.SetFeedback(ctx, recordID, feedback)
}

// AverageConfidence averages the known confidences, 0 when none is known.
func AverageConfidence(records []*domain.RunRecord) float64 {
	sum, n := 0, 0
	for _, r := range records {
		if c, ok := r.Confidence(); ok {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// SenderName is the display part of a From header: the text before '<'
// with quotes removed, or "Unknown".
func SenderName(from string) string {
	name := from
	if i := strings.Index(from, "<"); i >= 0 {
		name = from[:i]
	}
	name = strings.TrimSpace(strings.ReplaceAll(name, `"`, ""))
	if name == "" {
		return "Unknown"
	}
	return name
}

// TopSenders counts records per sender name, most frequent first and ties by
// name.
func TopSenders(records []*domain.RunRecord, n int) []domain.SenderCount {
	counts := make(map[string]int)
	for _, r := range records {
		counts[SenderName(r.Sender)]++
	}
	result := make([]domain.SenderCount, 0, len(counts))
	for name, c := range counts {
		result = append(result, domain.SenderCount{Name: name, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

var _ in.DashboardService = (*DashboardService)(nil)
