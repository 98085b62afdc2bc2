package triage

import (
	"context"
	"reflect"
	"testing"

	"triage_server/core/domain"
	"triage_server/internal/testutil"
	"triage_server/pkg/apperr"
)

func recordFrom(id, sender string, confidence *int) *domain.RunRecord {
	rec := &domain.RunRecord{ID: id, Sender: sender, Status: domain.RecordSuccess}
	if confidence != nil {
		rec.Result = &domain.ClassificationResult{Label: "Work", Confidence: confidence}
	}
	return rec
}

func ptr(v int) *int { return &v }

func TestSenderName(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{`Alice Smith <alice@example.com>`, "Alice Smith"},
		{`"Bob, Inc." <bob@example.com>`, "Bob, Inc."},
		{`carol@example.com`, "carol@example.com"},
		{`<noreply@example.com>`, "Unknown"},
		{``, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			if got := SenderName(tt.from); got != tt.want {
				t.Errorf("SenderName(%q) = %q, want %q", tt.from, got, tt.want)
			}
		})
	}
}

func TestAverageConfidence(t *testing.T) {
	records := []*domain.RunRecord{
		recordFrom("1", "a", ptr(8)),
		recordFrom("2", "a", ptr(5)),
		recordFrom("3", "a", nil),
	}
	if got := AverageConfidence(records); got != 6.5 {
		t.Errorf("AverageConfidence() = %v, want 6.5", got)
	}
	if got := AverageConfidence(nil); got != 0 {
		t.Errorf("AverageConfidence(nil) = %v, want 0", got)
	}
}

func TestTopSenders(t *testing.T) {
	var records []*domain.RunRecord
	add := func(sender string, n int) {
		for i := 0; i < n; i++ {
			records = append(records, recordFrom("", sender, nil))
		}
	}
	add("Alice <a@example.com>", 3)
	add(`"Alice" <alice@other.com>`, 1)
	add("Bob <b@example.com>", 2)
	add("Carol <c@example.com>", 2)
	add("Dan <d@example.com>", 1)
	add("Eve <e@example.com>", 1)
	add("Frank <f@example.com>", 1)

	want := []domain.SenderCount{
		{Name: "Alice", Count: 4},
		{Name: "Bob", Count: 2},
		{Name: "Carol", Count: 2},
		{Name: "Dan", Count: 1},
		{Name: "Eve", Count: 1},
	}
	if got := TopSenders(records, 5); !reflect.DeepEqual(got, want) {
		t.Errorf("TopSenders() = %+v, want %+v", got, want)
	}
}

func TestDashboard(t *testing.T) {
	sink := testutil.NewFakeSink()
	ctx := context.Background()
	for i, sender := range []string{"Alice <a@x>", "Bob <b@x>", "Alice <a@x>"} {
		_ = sink.AppendRecord(ctx, recordFrom(string(rune('a'+i)), sender, ptr(6)))
	}
	_ = sink.UpsertStats(ctx, &domain.InboxStats{Pending: 4})

	svc := NewDashboardService(sink)
	dash, err := svc.Dashboard(ctx, 0)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(dash.Records) != 3 || dash.Records[0].ID != "c" {
		t.Errorf("records should be newest first, got %d records", len(dash.Records))
	}
	if dash.AvgConfidence != 6 {
		t.Errorf("AvgConfidence = %v", dash.AvgConfidence)
	}
	if dash.TopSenders[0].Name != "Alice" || dash.TopSenders[0].Count != 2 {
		t.Errorf("TopSenders = %+v", dash.TopSenders)
	}
	if dash.Stats == nil || dash.Stats.Pending != 4 {
		t.Errorf("Stats = %+v", dash.Stats)
	}

	limited, err := svc.Dashboard(ctx, 1)
	if err != nil || len(limited.Records) != 1 {
		t.Errorf("Dashboard(1) = %d records, %v", len(limited.Records), err)
	}
}

func TestStatsNotFound(t *testing.T) {
	svc := NewDashboardService(testutil.NewFakeSink())
	_, err := svc.Stats(context.Background())
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSetFeedback(t *testing.T) {
	sink := testutil.NewFakeSink()
	ctx := context.Background()
	_ = sink.AppendRecord(ctx, recordFrom("r1", "a", nil))
	svc := NewDashboardService(sink)

	tests := []struct {
		name     string
		id       string
		feedback domain.Feedback
		wantErr  bool
	}{
		{"positive", "r1", domain.FeedbackPositive, false},
		{"negative", "r1", domain.FeedbackNegative, false},
		{"empty id", " ", domain.FeedbackPositive, true},
		{"invalid value", "r1", domain.Feedback("meh"), true},
		{"unknown record", "r2", domain.FeedbackPositive, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SetFeedback(ctx, tt.id, tt.feedback)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetFeedback() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	recent, _ := sink.RecentRecords(ctx, 1)
	if recent[0].Feedback != domain.FeedbackNegative {
		t.Errorf("Feedback = %q, want negative", recent[0].Feedback)
	}
}
