package graph

import (
	"testing"
	"time"

	"triage_server/core/domain"
)

func TestSenderIdentity(t *testing.T) {
	tests := []struct {
		from     string
		wantAddr string
		wantName string
	}{
		{`"Alice Smith" <Alice@Example.com>`, "alice@example.com", "Alice Smith"},
		{"bob@example.com", "bob@example.com", "bob@example.com"},
		{"", "unknown", "Unknown"},
		{"not an address", "not an address", "not an address"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			addr, name := senderIdentity(tt.from)
			if addr != tt.wantAddr || name != tt.wantName {
				t.Errorf("senderIdentity(%q) = %q, %q; want %q, %q", tt.from, addr, name, tt.wantAddr, tt.wantName)
			}
		})
	}
}

func TestRecordParams(t *testing.T) {
	conf := 7
	rec := &domain.RunRecord{
		ID:           "r1",
		RunID:        "run1",
		ThreadID:     "t1",
		Sender:       "Carol <carol@example.com>",
		ProcessedAt:  time.Unix(1700000000, 0),
		Result:       &domain.ClassificationResult{Label: "Work", Reasoning: "meeting", Confidence: &conf},
		Outcome:      domain.DecisionOutcome{Action: domain.ActionApplyLabel, Label: "Work"},
		AppliedLabel: "Work",
		Status:       domain.RecordSuccess,
	}

	p := recordParams(rec)
	if p["senderAddress"] != "carol@example.com" || p["senderName"] != "Carol" {
		t.Errorf("sender params = %v / %v", p["senderAddress"], p["senderName"])
	}
	if p["confidence"] != int64(7) {
		t.Errorf("confidence = %v", p["confidence"])
	}
	if p["label"] != "Work" || p["reasoning"] != "meeting" {
		t.Errorf("label = %v, reasoning = %v", p["label"], p["reasoning"])
	}
	if p["processedAt"] != int64(1700000000) {
		t.Errorf("processedAt = %v", p["processedAt"])
	}

	failed := recordParams(&domain.RunRecord{ID: "r2", Status: domain.RecordError})
	if failed["confidence"] != nil || failed["label"] != "" {
		t.Errorf("failed record params = %v", failed)
	}
}
