// Package multisink fans run records out to several result sinks.
package multisink

import (
	"context"
	"errors"
	"fmt"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Sink writes to every mirror after the primary and serves dashboard
// reads from the primary. A primary failure is returned; mirror failures
// are logged so a slow or broken mirror never loses a record.
type Sink struct {
	primary out.DashboardSink
	mirrors []out.ResultSink
	log     *logger.Logger
}

func New(primary out.DashboardSink, log *logger.Logger, mirrors ...out.ResultSink) *Sink {
	if log == nil {
		log = logger.Default()
	}
	return &Sink{
		primary: primary,
		mirrors: mirrors,
		log:     log.WithField("component", "multisink"),
	}
}

func (s *Sink) AppendRecord(ctx context.Context, record *domain.RunRecord) error {
	if err := s.primary.AppendRecord(ctx, record); err != nil {
		return err
	}
	s.mirror("append record", func(m out.ResultSink) error {
		return m.AppendRecord(ctx, record)
	})
	return nil
}

func (s *Sink) UpsertStats(ctx context.Context, stats *domain.InboxStats) error {
	if err := s.primary.UpsertStats(ctx, stats); err != nil {
		return err
	}
	s.mirror("upsert stats", func(m out.ResultSink) error {
		return m.UpsertStats(ctx, stats)
	})
	return nil
}

func (s *Sink) mirror(op string, fn func(out.ResultSink) error) {
	for i, m := range s.mirrors {
		if err := fn(m); err != nil {
			s.log.WithError(err).WithFields(map[string]any{
				"mirror":    fmt.Sprintf("%T", m),
				"index":     i,
				"operation": op,
			}).Warn("Mirror sink write failed")
		}
	}
}

// Close closes every sink and joins the errors.
func (s *Sink) Close(ctx context.Context) error {
	errs := []error{s.primary.Close(ctx)}
	for _, m := range s.mirrors {
		errs = append(errs, m.Close(ctx))
	}
	return errors.Join(errs...)
}

func (s *Sink) RecentRecords(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	return s.primary.RecentRecords(ctx, limit)
}

func (s *Sink) GetStats(ctx context.Context) (*domain.InboxStats, error) {
	return s.primary.GetStats(ctx)
}

func (s *Sink) SetFeedback(ctx context.Context, recordID string, feedback domain.Feedback) error {
	return s.primary.SetFeedback(ctx, recordID, feedback)
}

var _ out.DashboardSink = (*Sink)(nil)
