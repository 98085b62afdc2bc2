package testutil

import (
	"context"
	"sync"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// ClassifyFunc produces a response for a prompt.
type ClassifyFunc func(prompt string) (*domain.RawResponse, error)

// FakeClassifier returns scripted responses in order; the last one repeats.
type FakeClassifier struct {
	mu        sync.Mutex
	responses []ClassifyFunc
	Prompts   []string
}

func NewFakeClassifier(responses ...ClassifyFunc) *FakeClassifier {
	return &FakeClassifier{responses: responses}
}

// Text returns a ClassifyFunc answering with a single candidate.
func Text(text string) ClassifyFunc {
	return func(string) (*domain.RawResponse, error) {
		return &domain.RawResponse{Candidates: []string{text}}, nil
	}
}

// Fail returns a ClassifyFunc failing with err.
func Fail(err error) ClassifyFunc {
	return func(string) (*domain.RawResponse, error) {
		return nil, err
	}
}

func (c *FakeClassifier) Classify(ctx context.Context, prompt string) (*domain.RawResponse, error) {
	c.mu.Lock()
	idx := len(c.Prompts)
	c.Prompts = append(c.Prompts, prompt)
	c.mu.Unlock()

	if len(c.responses) == 0 {
		return &domain.RawResponse{}, nil
	}
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx](prompt)
}

func (c *FakeClassifier) Name() string { return "fake" }

// FakeSink keeps records and stats in memory.
type FakeSink struct {
	mu        sync.Mutex
	Records   []*domain.RunRecord
	StatsLog  []domain.InboxStats
	feedback  map[string]domain.Feedback
	AppendErr error
	StatsErr  error
}

func NewFakeSink() *FakeSink {
	return &FakeSink{feedback: make(map[string]domain.Feedback)}
}

func (s *FakeSink) AppendRecord(ctx context.Context, record *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.Records = append(s.Records, record)
	return nil
}

func (s *FakeSink) UpsertStats(ctx context.Context, stats *domain.InboxStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatsErr != nil {
		return s.StatsErr
	}
	s.StatsLog = append(s.StatsLog, *stats)
	return nil
}

func (s *FakeSink) Close(ctx context.Context) error { return nil }

func (s *FakeSink) RecentRecords(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.RunRecord
	for i := len(s.Records) - 1; i >= 0 && len(result) < limit; i-- {
		r := *s.Records[i]
		r.Feedback = s.feedback[r.ID]
		result = append(result, &r)
	}
	return result, nil
}

func (s *FakeSink) GetStats(ctx context.Context) (*domain.InboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.StatsLog) == 0 {
		return nil, nil
	}
	stats := s.StatsLog[len(s.StatsLog)-1]
	return &stats, nil
}

func (s *FakeSink) SetFeedback(ctx context.Context, recordID string, feedback domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Records {
		if r.ID == recordID {
			s.feedback[recordID] = feedback
			return nil
		}
	}
	return apperr.NotFound("record " + recordID)
}

var _ out.DashboardSink = (*FakeSink)(nil)
