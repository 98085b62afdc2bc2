package triage

import (
	"context"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"
)

// StatsRefresher recomputes the inbox stats document from mailbox counts.
type StatsRefresher struct {
	mailbox        out.MailboxProvider
	sink           out.ResultSink
	processedLabel string
	log            *logger.Logger
	now            func() time.Time
}

func NewStatsRefresher(mailbox out.MailboxProvider, sink out.ResultSink, processedLabel string, log *logger.Logger) *StatsRefresher {
	if log == nil {
		log = logger.Default()
	}
	return &StatsRefresher{
		mailbox:        mailbox,
		sink:           sink,
		processedLabel: processedLabel,
		log:            log,
		now:            time.Now,
	}
}

// Refresh counts total unread inbox threads, unread threads already carrying
// the processed marker, and unread inbox threads still waiting for triage,
// then upserts the singleton stats document.
func (s *StatsRefresher) Refresh(ctx context.Context, status domain.StatsStatus) (*domain.InboxStats, error) {
	marker := domain.LabelQuery(s.processedLabel)

	total, err := s.mailbox.InboxUnreadCount(ctx)
	if err != nil {
		return nil, apperr.Mailbox("count inbox unread", err)
	}
	processed, err := s.mailbox.Count(ctx, fmt.Sprintf("%s is:unread", marker))
	if err != nil {
		return nil, apperr.Mailbox("count processed unread", err)
	}
	pending, err := s.mailbox.Count(ctx, fmt.Sprintf("is:unread -%s in:inbox", marker))
	if err != nil {
		return nil, apperr.Mailbox("count pending", err)
	}

	stats := &domain.InboxStats{
		Pending:         pending,
		TotalUnread:     total,
		ProcessedUnread: processed,
		LastUpdated:     s.now().UTC(),
		Status:          status,
	}
	metrics.SetPending(pending)

	if err := s.sink.UpsertStats(ctx, stats); err != nil {
		return stats, apperr.Sink("upsert stats", err)
	}
	s.log.Debug("Stats refreshed: pending=%d unread=%d processed=%d", pending, total, processed)
	return stats, nil
}
