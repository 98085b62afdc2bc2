package domain

import "testing"

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 5, "hello"},
		{"multibyte", "안녕하세요", 2, "안녕"},
		{"zero limit keeps input", "hello", 0, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.n); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestNewClassificationRequestTruncatesBody(t *testing.T) {
	body := make([]byte, 6000)
	for i := range body {
		body[i] = 'a'
	}
	req := NewClassificationRequest("a@b.c", "hi", string(body), nil, 5000)
	if len(req.Body) != 5000 {
		t.Errorf("len(Body) = %d, want 5000", len(req.Body))
	}
}

func TestTaxonomyHasIsCaseSensitive(t *testing.T) {
	tax := TaxonomyFromNames([]string{"Work", "Personal"})
	if !tax.Has("Work") {
		t.Error("Has(Work) = false")
	}
	if tax.Has("work") {
		t.Error("Has(work) = true, matching must be case-sensitive")
	}
}

func TestParseEnums(t *testing.T) {
	if got := ParseUrgency(" high "); got != UrgencyHigh {
		t.Errorf("ParseUrgency = %q", got)
	}
	if got := ParseCategory("PROMOTIONS"); got != CategoryPromotions {
		t.Errorf("ParseCategory = %q", got)
	}
	if got := ParseSentiment("ecstatic"); got != "" {
		t.Errorf("ParseSentiment(unknown) = %q, want empty", got)
	}
}

func TestParseFeedback(t *testing.T) {
	tests := []struct {
		in   string
		want Feedback
		ok   bool
	}{
		{"positive", FeedbackPositive, true},
		{"Negative", FeedbackNegative, true},
		{"meh", FeedbackNone, false},
	}
	for _, tt := range tests {
		got, ok := ParseFeedback(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseFeedback(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResultProfileFields(t *testing.T) {
	if n := len(BasicProfile.Fields()); n != 2 {
		t.Errorf("basic fields = %d, want 2", n)
	}
	if n := len(ExtendedProfile.Fields()); n != 7 {
		t.Errorf("extended fields = %d, want 7", n)
	}
}
