package normalize

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"triage_server/core/domain"
	"triage_server/pkg/logger"
)

func newTestNormalizer(profile domain.ResultProfile) (*Normalizer, *bytes.Buffer) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: logger.LevelDebug, Output: &buf})
	return New(profile, log), &buf
}

func raw(texts ...string) *domain.RawResponse {
	return &domain.RawResponse{Candidates: texts}
}

func TestNormalizeScenarios(t *testing.T) {
	tests := []struct {
		name      string
		raw       *domain.RawResponse
		label     string
		reasoning string
	}{
		{
			name:      "plain object",
			raw:       raw(`{"label":"Work","reasoning":"invoice"}`),
			label:     "Work",
			reasoning: "invoice",
		},
		{
			name:      "fenced without reasoning",
			raw:       raw("```json\n{\"label\":\"Finance\"}\n```"),
			label:     "Finance",
			reasoning: domain.ReasoningPlaceholder,
		},
		{
			name:      "conversational wrapper",
			raw:       raw(`Sure! {"label":"Promotions","reasoning":"sale"} Hope that helps!`),
			label:     "Promotions",
			reasoning: "sale",
		},
		{
			name:      "nil response",
			raw:       nil,
			label:     domain.ManualSortLabel,
			reasoning: domain.ReasoningNoCandidates,
		},
		{
			name:      "zero candidates",
			raw:       raw(),
			label:     domain.ManualSortLabel,
			reasoning: domain.ReasoningNoCandidates,
		},
		{
			name:      "empty text",
			raw:       raw(""),
			label:     domain.ManualSortLabel,
			reasoning: domain.ReasoningParseFailure,
		},
		{
			name:      "truncated object",
			raw:       raw(`{"label":"Work","reas`),
			label:     domain.ManualSortLabel,
			reasoning: domain.ReasoningParseFailure,
		},
		{
			name:      "broken json inside braces",
			raw:       raw(`{"label": Work}`),
			label:     domain.ManualSortLabel,
			reasoning: domain.ReasoningParseFailure,
		},
		{
			name:      "empty label",
			raw:       raw(`{"label":"  ","reasoning":"unsure"}`),
			label:     domain.ManualSortLabel,
			reasoning: "unsure",
		},
		{
			name:      "non-string label",
			raw:       raw(`{"label":42}`),
			label:     domain.ManualSortLabel,
			reasoning: domain.ReasoningPlaceholder,
		},
		{
			name:      "manual sort label",
			raw:       raw(`{"label":"Manual Sort"}`),
			label:     domain.ManualSortLabel,
			reasoning: domain.ReasoningPlaceholder,
		},
		{
			name:      "summary used as reasoning",
			raw:       raw(`{"label":"Work","summary":"weekly sync"}`),
			label:     "Work",
			reasoning: "weekly sync",
		},
		{
			name:      "only first candidate used",
			raw:       raw(`{"label":"Work"}`, `{"label":"Personal"}`),
			label:     "Work",
			reasoning: domain.ReasoningPlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := newTestNormalizer(domain.BasicProfile)
			got := n.Normalize(tt.raw)
			if got.Label != tt.label {
				t.Errorf("Label = %q, want %q", got.Label, tt.label)
			}
			if got.Reasoning != tt.reasoning {
				t.Errorf("Reasoning = %q, want %q", got.Reasoning, tt.reasoning)
			}
		})
	}
}

func TestNormalizeNeverReturnsEmptyLabel(t *testing.T) {
	inputs := []string{
		"", " ", "{", "}", "}{", "null", "[]", `[{"label":"Work"}]`, "```", "```json```",
		`{"label":null}`, `{"label":""}`, "no json here", `{"label":"Work"`, "\x00\xff",
		`{"confidence": "high", "urgency": 3}`,
	}
	n, _ := newTestNormalizer(domain.ExtendedProfile)
	for _, in := range inputs {
		got := n.Normalize(raw(in))
		if got.Label == "" {
			t.Errorf("Normalize(%q) returned empty label", in)
		}
		if got.Reasoning == "" {
			t.Errorf("Normalize(%q) returned empty reasoning", in)
		}
	}
}

func TestNormalizeLogsRawTextOnFailure(t *testing.T) {
	n, buf := newTestNormalizer(domain.BasicProfile)
	n.Normalize(raw("definitely not json"))
	if !strings.Contains(buf.String(), "definitely not json") {
		t.Errorf("raw text not logged, got %q", buf.String())
	}
}

func TestFenceStrippingRoundTrip(t *testing.T) {
	objects := []string{
		`{"label":"Work","reasoning":"invoice"}`,
		`{"label":"Personal"}`,
		`{"label":"Updates","reasoning":"release notes","confidence":7,"urgency":"Low","category":"Updates","sentiment":"Neutral","actionRequired":false}`,
		`{"reasoning":"no label here"}`,
		`{"label":"Work","nested":{"a":[1,2,{"b":"}"}]}}`,
	}
	wrappers := []func(string) string{
		func(s string) string { return "```json\n" + s + "\n```" },
		func(s string) string { return "```\n" + s + "\n```" },
		func(s string) string { return "Here you go:\n" + s + "\nLet me know!" },
		func(s string) string { return "  ```json" + s + "```  " },
		func(s string) string { return "Sure!\n```json\n" + s + "\n```\nThanks" },
	}

	n, _ := newTestNormalizer(domain.ExtendedProfile)
	for _, obj := range objects {
		direct := n.Normalize(raw(obj))
		for i, wrap := range wrappers {
			wrapped := n.Normalize(raw(wrap(obj)))
			if !reflect.DeepEqual(direct, wrapped) {
				t.Errorf("wrapper %d changed result for %s: direct=%+v wrapped=%+v", i, obj, direct, wrapped)
			}
		}
	}
}

func TestExtendedFieldRepair(t *testing.T) {
	n, _ := newTestNormalizer(domain.ExtendedProfile)
	got := n.Normalize(raw(`{"label":"Work","confidence":15,"urgency":"high","category":"finance","sentiment":"angry","actionRequired":"true"}`))

	if got.Confidence == nil || *got.Confidence != 10 {
		t.Errorf("Confidence = %v, want clamped 10", got.Confidence)
	}
	if got.Urgency != domain.UrgencyHigh {
		t.Errorf("Urgency = %q, want High", got.Urgency)
	}
	if got.Category != domain.CategoryFinance {
		t.Errorf("Category = %q, want Finance", got.Category)
	}
	if got.Sentiment != "" {
		t.Errorf("Sentiment = %q, want empty for unknown value", got.Sentiment)
	}
	if got.ActionRequired == nil || !*got.ActionRequired {
		t.Errorf("ActionRequired = %v, want true", got.ActionRequired)
	}
}

func TestConfidenceField(t *testing.T) {
	tests := []struct {
		json  string
		want  int
		isNil bool
	}{
		{`{"confidence":8}`, 8, false},
		{`{"confidence":"7"}`, 7, false},
		{`{"confidence":0}`, 1, false},
		{`{"confidence":6.6}`, 7, false},
		{`{"confidence":"very"}`, 0, true},
		{`{"confidence":true}`, 0, true},
		{`{}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			got, err := Parse(tt.json, domain.ExtendedProfile)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if tt.isNil {
				if got.Confidence != nil {
					t.Errorf("Confidence = %d, want nil", *got.Confidence)
				}
				return
			}
			if got.Confidence == nil || *got.Confidence != tt.want {
				t.Errorf("Confidence = %v, want %d", got.Confidence, tt.want)
			}
		})
	}
}

func TestBasicProfileIgnoresExtendedFields(t *testing.T) {
	got, err := Parse(`{"label":"Work","confidence":9,"urgency":"High"}`, domain.BasicProfile)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Confidence != nil || got.Urgency != "" {
		t.Errorf("basic profile should ignore extended fields, got %+v", got)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"  {}  ", "{}"},
		{"{}```", "{}"},
		{"```json", ""},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{`pre {"a":1} post`, `{"a":1}`, true},
		{`{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{`no braces`, "", false},
		{`} before {`, "", false},
		{`{ unterminated`, "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractObject(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractObject(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
