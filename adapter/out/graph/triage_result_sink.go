package graph

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ResultSink mirrors run records into a graph of
// (Sender)-[:SENT]->(Record)-[:LABELED]->(Label). It is write-only; the
// dashboard reads from a document or relational sink.
type ResultSink struct {
	driver neo4j.DriverWithContext
	dbName string
}

func NewResultSink(driver neo4j.DriverWithContext, dbName string) *ResultSink {
	return &ResultSink{driver: driver, dbName: dbName}
}

// EnsureIndexes creates the uniqueness constraints the MERGE queries rely on.
func (s *ResultSink) EnsureIndexes(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT triage_record_id IF NOT EXISTS FOR (r:TriageRecord) REQUIRE r.id IS UNIQUE`,
		`CREATE CONSTRAINT triage_sender_address IF NOT EXISTS FOR (s:Sender) REQUIRE s.address IS UNIQUE`,
		`CREATE CONSTRAINT triage_label_name IF NOT EXISTS FOR (l:Label) REQUIRE l.name IS UNIQUE`,
		`CREATE INDEX triage_record_processed IF NOT EXISTS FOR (r:TriageRecord) ON (r.processed_at)`,
	}
	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to ensure graph constraints: %w", err)
		}
	}
	return nil
}

const appendRecordQuery = `
	MERGE (r:TriageRecord {id: $id})
	SET r.run_id = $runID,
		r.thread_id = $threadID,
		r.message_id = $messageID,
		r.subject = $subject,
		r.status = $status,
		r.action = $action,
		r.confidence = $confidence,
		r.reasoning = $reasoning,
		r.error = $error,
		r.processed_at = $processedAt
	MERGE (s:Sender {address: $senderAddress})
	SET s.name = $senderName
	MERGE (s)-[:SENT]->(r)
	FOREACH (_ IN CASE WHEN $label <> '' THEN [1] ELSE [] END |
		MERGE (l:Label {name: $label})
		MERGE (r)-[:LABELED]->(l)
	)
`

func (s *ResultSink) AppendRecord(ctx context.Context, record *domain.RunRecord) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.dbName,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, appendRecordQuery, recordParams(record))
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to write record graph: %w", err)
	}
	return nil
}

func (s *ResultSink) UpsertStats(ctx context.Context, stats *domain.InboxStats) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.dbName,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	query := `
		MERGE (st:InboxStats {id: 'current'})
		SET st.pending = $pending,
			st.total_unread = $totalUnread,
			st.processed_unread = $processedUnread,
			st.last_updated = $lastUpdated,
			st.status = $status
	`
	params := map[string]any{
		"pending":         stats.Pending,
		"totalUnread":     stats.TotalUnread,
		"processedUnread": stats.ProcessedUnread,
		"lastUpdated":     stats.LastUpdated.Unix(),
		"status":          string(stats.Status),
	}
	if _, err := session.Run(ctx, query, params); err != nil {
		return fmt.Errorf("failed to write stats node: %w", err)
	}
	return nil
}

func (s *ResultSink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func recordParams(r *domain.RunRecord) map[string]any {
	address, name := senderIdentity(r.Sender)
	params := map[string]any{
		"id":            r.ID,
		"runID":         r.RunID,
		"threadID":      r.ThreadID,
		"messageID":     r.MessageID,
		"subject":       r.Subject,
		"status":        string(r.Status),
		"action":        string(r.Outcome.Action),
		"confidence":    nil,
		"reasoning":     "",
		"error":         r.Error,
		"processedAt":   r.ProcessedAt.Unix(),
		"senderAddress": address,
		"senderName":    name,
		"label":         r.AppliedLabel,
	}
	if c, ok := r.Confidence(); ok {
		params["confidence"] = int64(c)
	}
	if r.Result != nil {
		params["reasoning"] = r.Result.Reasoning
	}
	return params
}

// senderIdentity splits a From header into a lowercase address key and a
// display name. Unparseable headers use the raw value for both.
func senderIdentity(from string) (address, name string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "unknown", "Unknown"
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.ToLower(from), from
	}
	name = addr.Name
	if name == "" {
		name = addr.Address
	}
	return strings.ToLower(addr.Address), name
}

var _ out.ResultSink = (*ResultSink)(nil)
