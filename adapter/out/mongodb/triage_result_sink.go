package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Result Sink
// =============================================================================

const (
	collectionLogs  = "email_logs"
	collectionStats = "email_stats"
	statsDocumentID = "current"
)

// ResultSink stores run records in email_logs and the stats singleton in
// email_stats/current.
type ResultSink struct {
	db    *mongo.Database
	logs  *mongo.Collection
	stats *mongo.Collection
}

func NewResultSink(db *mongo.Database) *ResultSink {
	return &ResultSink{
		db:    db,
		logs:  db.Collection(collectionLogs),
		stats: db.Collection(collectionStats),
	}
}

// EnsureIndexes creates necessary indexes for the collections.
func (s *ResultSink) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "processedDate", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "runId", Value: 1}},
		},
	}
	_, err := s.logs.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type recordDocument struct {
	ID               string                       `bson:"id"`
	RunID            string                       `bson:"runId"`
	MessageID        string                       `bson:"messageId"`
	ThreadID         string                       `bson:"threadId"`
	Sender           string                       `bson:"sender"`
	Subject          string                       `bson:"subject"`
	ReceivedDate     time.Time                    `bson:"receivedDate"`
	ProcessedDate    time.Time                    `bson:"processedDate"`
	BodySnippet      string                       `bson:"bodySnippet"`
	HasAttachments   bool                         `bson:"hasAttachments"`
	AIResponse       *domain.ClassificationResult `bson:"aiResponse,omitempty"`
	Outcome          domain.DecisionOutcome       `bson:"outcome"`
	AppliedLabel     string                       `bson:"appliedLabel,omitempty"`
	ProcessingTimeMs int64                        `bson:"processingTimeMs"`
	Status           string                       `bson:"status"`
	Error            string                       `bson:"error,omitempty"`
	Feedback         string                       `bson:"feedback,omitempty"`
}

type statsDocument struct {
	ID              string    `bson:"_id"`
	Pending         int       `bson:"pending"`
	TotalUnread     int       `bson:"totalUnread"`
	ProcessedUnread int       `bson:"processedUnread"`
	LastUpdated     time.Time `bson:"lastUpdated"`
	Status          string    `bson:"status,omitempty"`
}

func toDocument(r *domain.RunRecord) *recordDocument {
	return &recordDocument{
		ID:               r.ID,
		RunID:            r.RunID,
		MessageID:        r.MessageID,
		ThreadID:         r.ThreadID,
		Sender:           r.Sender,
		Subject:          r.Subject,
		ReceivedDate:     r.ReceivedAt,
		ProcessedDate:    r.ProcessedAt,
		BodySnippet:      r.BodySnippet,
		HasAttachments:   r.HasAttachments,
		AIResponse:       r.Result,
		Outcome:          r.Outcome,
		AppliedLabel:     r.AppliedLabel,
		ProcessingTimeMs: r.ProcessingMillis(),
		Status:           string(r.Status),
		Error:            r.Error,
		Feedback:         string(r.Feedback),
	}
}

func (d *recordDocument) toRecord() *domain.RunRecord {
	return &domain.RunRecord{
		ID:             d.ID,
		RunID:          d.RunID,
		MessageID:      d.MessageID,
		ThreadID:       d.ThreadID,
		Sender:         d.Sender,
		Subject:        d.Subject,
		ReceivedAt:     d.ReceivedDate,
		ProcessedAt:    d.ProcessedDate,
		BodySnippet:    d.BodySnippet,
		HasAttachments: d.HasAttachments,
		Result:         d.AIResponse,
		Outcome:        d.Outcome,
		AppliedLabel:   d.AppliedLabel,
		ProcessingTime: time.Duration(d.ProcessingTimeMs) * time.Millisecond,
		Status:         domain.RecordStatus(d.Status),
		Error:          d.Error,
		Feedback:       domain.Feedback(d.Feedback),
	}
}

// =============================================================================
// ResultSink
// =============================================================================

func (s *ResultSink) AppendRecord(ctx context.Context, record *domain.RunRecord) error {
	if _, err := s.logs.InsertOne(ctx, toDocument(record)); err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// UpsertStats creates email_stats/current. When it already exists the
// counters are merged in with $set, leaving unknown fields untouched.
func (s *ResultSink) UpsertStats(ctx context.Context, stats *domain.InboxStats) error {
	doc := statsDocument{
		ID:              statsDocumentID,
		Pending:         stats.Pending,
		TotalUnread:     stats.TotalUnread,
		ProcessedUnread: stats.ProcessedUnread,
		LastUpdated:     stats.LastUpdated,
		Status:          string(stats.Status),
	}

	_, err := s.stats.InsertOne(ctx, doc)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to create stats: %w", err)
	}

	update := bson.M{"$set": statsFields(stats)}
	if _, err := s.stats.UpdateOne(ctx, bson.M{"_id": statsDocumentID}, update); err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	return nil
}

func statsFields(stats *domain.InboxStats) bson.M {
	fields := bson.M{
		"pending":         stats.Pending,
		"totalUnread":     stats.TotalUnread,
		"processedUnread": stats.ProcessedUnread,
		"lastUpdated":     stats.LastUpdated,
	}
	if stats.Status != "" {
		fields["status"] = string(stats.Status)
	}
	return fields
}

func (s *ResultSink) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// =============================================================================
// DashboardReader
// =============================================================================

// RecentRecords returns the newest records by processed date.
func (s *ResultSink) RecentRecords(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "processedDate", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.logs.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*domain.RunRecord
	for cursor.Next(ctx) {
		var doc recordDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode run record: %w", err)
		}
		records = append(records, doc.toRecord())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run records: %w", err)
	}
	return records, nil
}

func (s *ResultSink) GetStats(ctx context.Context) (*domain.InboxStats, error) {
	var doc statsDocument
	err := s.stats.FindOne(ctx, bson.M{"_id": statsDocumentID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &domain.InboxStats{
		Pending:         doc.Pending,
		TotalUnread:     doc.TotalUnread,
		ProcessedUnread: doc.ProcessedUnread,
		LastUpdated:     doc.LastUpdated,
		Status:          domain.StatsStatus(doc.Status),
	}, nil
}

func (s *ResultSink) SetFeedback(ctx context.Context, recordID string, feedback domain.Feedback) error {
	res, err := s.logs.UpdateOne(ctx,
		bson.M{"id": recordID},
		bson.M{"$set": bson.M{"feedback": string(feedback)}},
	)
	if err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("record " + recordID)
	}
	return nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.DashboardSink = (*ResultSink)(nil)
