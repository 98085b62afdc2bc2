// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// ResultSink implements out.DashboardSink on PostgreSQL.
type ResultSink struct {
	db          *sqlx.DB
	recordTable string
	statsTable  string
}

// NewResultSink stores records in <schema>.triage_records and stats in
// <schema>.triage_stats. An empty schema uses the search path.
func NewResultSink(db *sqlx.DB, schema string) *ResultSink {
	return &ResultSink{
		db:          db,
		recordTable: qualify(schema, "triage_records"),
		statsTable:  qualify(schema, "triage_stats"),
	}
}

func qualify(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// EnsureSchema creates the tables when missing.
func (s *ResultSink) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.recordTable + ` (
			id                 TEXT PRIMARY KEY,
			run_id             TEXT NOT NULL,
			message_id         TEXT NOT NULL DEFAULT '',
			thread_id          TEXT NOT NULL,
			sender             TEXT NOT NULL DEFAULT '',
			subject            TEXT NOT NULL DEFAULT '',
			received_at        TIMESTAMPTZ,
			processed_at       TIMESTAMPTZ NOT NULL,
			body_snippet       TEXT NOT NULL DEFAULT '',
			has_attachments    BOOLEAN NOT NULL DEFAULT FALSE,
			ai_response        JSONB,
			action             TEXT NOT NULL DEFAULT '',
			applied_label      TEXT NOT NULL DEFAULT '',
			decision_reason    TEXT NOT NULL DEFAULT '',
			processing_time_ms BIGINT NOT NULL DEFAULT 0,
			status             TEXT NOT NULL,
			error              TEXT NOT NULL DEFAULT '',
			feedback           TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS triage_records_processed_at_idx ON ` + s.recordTable + ` (processed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS ` + s.statsTable + ` (
			id               TEXT PRIMARY KEY,
			pending          INTEGER NOT NULL,
			total_unread     INTEGER NOT NULL,
			processed_unread INTEGER NOT NULL,
			last_updated     TIMESTAMPTZ NOT NULL,
			status           TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// recordRow represents the database row for run records.
type recordRow struct {
	ID               string         `db:"id"`
	RunID            string         `db:"run_id"`
	MessageID        string         `db:"message_id"`
	ThreadID         string         `db:"thread_id"`
	Sender           string         `db:"sender"`
	Subject          string         `db:"subject"`
	ReceivedAt       sql.NullTime   `db:"received_at"`
	ProcessedAt      time.Time      `db:"processed_at"`
	BodySnippet      string         `db:"body_snippet"`
	HasAttachments   bool           `db:"has_attachments"`
	AIResponse       []byte         `db:"ai_response"`
	Action           string         `db:"action"`
	AppliedLabel     string         `db:"applied_label"`
	DecisionReason   string         `db:"decision_reason"`
	ProcessingTimeMs int64          `db:"processing_time_ms"`
	Status           string         `db:"status"`
	Error            string         `db:"error"`
	Feedback         sql.NullString `db:"feedback"`
}

func toRow(r *domain.RunRecord) (*recordRow, error) {
	row := &recordRow{
		ID:               r.ID,
		RunID:            r.RunID,
		MessageID:        r.MessageID,
		ThreadID:         r.ThreadID,
		Sender:           r.Sender,
		Subject:          r.Subject,
		ReceivedAt:       sql.NullTime{Time: r.ReceivedAt, Valid: !r.ReceivedAt.IsZero()},
		ProcessedAt:      r.ProcessedAt,
		BodySnippet:      r.BodySnippet,
		HasAttachments:   r.HasAttachments,
		Action:           string(r.Outcome.Action),
		AppliedLabel:     r.AppliedLabel,
		DecisionReason:   r.Outcome.Reason,
		ProcessingTimeMs: r.ProcessingMillis(),
		Status:           string(r.Status),
		Error:            r.Error,
		Feedback:         sql.NullString{String: string(r.Feedback), Valid: true},
	}
	if r.Result != nil {
		b, err := json.Marshal(r.Result)
		if err != nil {
			return nil, err
		}
		row.AIResponse = b
	}
	return row, nil
}

func (r *recordRow) toEntity() (*domain.RunRecord, error) {
	rec := &domain.RunRecord{
		ID:             r.ID,
		RunID:          r.RunID,
		MessageID:      r.MessageID,
		ThreadID:       r.ThreadID,
		Sender:         r.Sender,
		Subject:        r.Subject,
		ProcessedAt:    r.ProcessedAt,
		BodySnippet:    r.BodySnippet,
		HasAttachments: r.HasAttachments,
		Outcome: domain.DecisionOutcome{
			Action: domain.DecisionAction(r.Action),
			Label:  r.AppliedLabel,
			Reason: r.DecisionReason,
		},
		AppliedLabel:   r.AppliedLabel,
		ProcessingTime: time.Duration(r.ProcessingTimeMs) * time.Millisecond,
		Status:         domain.RecordStatus(r.Status),
		Error:          r.Error,
		Feedback:       domain.Feedback(r.Feedback.String),
	}
	if r.ReceivedAt.Valid {
		rec.ReceivedAt = r.ReceivedAt.Time
	}
	if len(r.AIResponse) > 0 {
		var result domain.ClassificationResult
		if err := json.Unmarshal(r.AIResponse, &result); err != nil {
			return nil, fmt.Errorf("failed to decode ai_response: %w", err)
		}
		rec.Result = &result
	}
	return rec, nil
}

func (s *ResultSink) AppendRecord(ctx context.Context, record *domain.RunRecord) error {
	row, err := toRow(record)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	query := `INSERT INTO ` + s.recordTable + ` (
		id, run_id, message_id, thread_id, sender, subject, received_at, processed_at,
		body_snippet, has_attachments, ai_response, action, applied_label, decision_reason,
		processing_time_ms, status, error, feedback
	) VALUES (
		:id, :run_id, :message_id, :thread_id, :sender, :subject, :received_at, :processed_at,
		:body_snippet, :has_attachments, :ai_response, :action, :applied_label, :decision_reason,
		:processing_time_ms, :status, :error, :feedback
	)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("run record " + record.ID + " already exists")
		}
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// UpsertStats inserts the singleton row; on a unique violation it updates
// the counters instead.
func (s *ResultSink) UpsertStats(ctx context.Context, stats *domain.InboxStats) error {
	insert := `INSERT INTO ` + s.statsTable + ` (id, pending, total_unread, processed_unread, last_updated, status)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, insert, "current",
		stats.Pending, stats.TotalUnread, stats.ProcessedUnread, stats.LastUpdated, string(stats.Status))
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("failed to create stats: %w", err)
	}

	update := `UPDATE ` + s.statsTable + ` SET pending = $2, total_unread = $3, processed_unread = $4,
		last_updated = $5, status = COALESCE(NULLIF($6, ''), status) WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, update, "current",
		stats.Pending, stats.TotalUnread, stats.ProcessedUnread, stats.LastUpdated, string(stats.Status)); err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	return nil
}

func (s *ResultSink) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *ResultSink) RecentRecords(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	var rows []recordRow
	query := `SELECT * FROM ` + s.recordTable + ` ORDER BY processed_at DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}

	records := make([]*domain.RunRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// statsRow represents the stats singleton row.
type statsRow struct {
	ID              string    `db:"id"`
	Pending         int       `db:"pending"`
	TotalUnread     int       `db:"total_unread"`
	ProcessedUnread int       `db:"processed_unread"`
	LastUpdated     time.Time `db:"last_updated"`
	Status          string    `db:"status"`
}

func (s *ResultSink) GetStats(ctx context.Context) (*domain.InboxStats, error) {
	var row statsRow
	query := `SELECT * FROM ` + s.statsTable + ` WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, "current"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &domain.InboxStats{
		Pending:         row.Pending,
		TotalUnread:     row.TotalUnread,
		ProcessedUnread: row.ProcessedUnread,
		LastUpdated:     row.LastUpdated,
		Status:          domain.StatsStatus(row.Status),
	}, nil
}

func (s *ResultSink) SetFeedback(ctx context.Context, recordID string, feedback domain.Feedback) error {
	query := `UPDATE ` + s.recordTable + ` SET feedback = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, recordID, string(feedback))
	if err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("record " + recordID)
	}
	return nil
}

// isUniqueViolation recognises unique violations from both the pgx and the
// lib/pq drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

var _ out.DashboardSink = (*ResultSink)(nil)
