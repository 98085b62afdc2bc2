package prompt

import (
	"strings"
	"testing"

	"triage_server/core/domain"
)

func testRequest() domain.ClassificationRequest {
	taxonomy := domain.Taxonomy{
		{Name: "Work", Example: "From: boss@corp.com | Subject: Q3 plan | numbers attached"},
		{Name: "Personal"},
		{Name: "Receipts"},
	}
	return domain.NewClassificationRequest("Shop <no-reply@shop.com>", "Your order", "Thanks for your purchase.", taxonomy, 5000)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(domain.ExtendedProfile)
	req := testRequest()

	first := b.Build(req)
	for i := 0; i < 5; i++ {
		if got := b.Build(req); got != first {
			t.Fatal("Build() output differs between calls")
		}
	}
}

func TestBuildContents(t *testing.T) {
	got := NewBuilder(domain.ExtendedProfile).Build(testRequest())

	wants := []string{
		`- "Work"`,
		`  Example: From: boss@corp.com | Subject: Q3 plan | numbers attached`,
		`- "Personal"`,
		`- "Receipts"`,
		`- "Manual Sort" (if unsure)`,
		"Purchase receipts",
		"financial statements",
		`"actionRequired": false`,
		"Sender: Shop <no-reply@shop.com>",
		"Subject: Your order",
		"Thanks for your purchase.",
	}
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Errorf("prompt missing %q", w)
		}
	}
}

func TestManualSortAppendedLast(t *testing.T) {
	got := NewBuilder(domain.BasicProfile).Build(testRequest())

	manual := strings.Index(got, `- "Manual Sort" (if unsure)`)
	receipts := strings.Index(got, `- "Receipts"`)
	if manual < 0 || receipts < 0 || manual < receipts {
		t.Errorf("Manual Sort should follow every taxonomy label (manual=%d receipts=%d)", manual, receipts)
	}
	if strings.Count(got, `"Manual Sort" (if unsure)`) != 1 {
		t.Error("Manual Sort sentinel should appear exactly once")
	}
}

func TestManualSortInTaxonomyNotDuplicated(t *testing.T) {
	req := domain.ClassificationRequest{Taxonomy: domain.TaxonomyFromNames([]string{"Work", "Manual Sort"})}
	got := NewBuilder(domain.BasicProfile).Build(req)
	if strings.Count(got, `- "Manual Sort"`) != 1 {
		t.Errorf("Manual Sort listed more than once:\n%s", got)
	}
}

func TestOutputContractMatchesProfile(t *testing.T) {
	basic := NewBuilder(domain.BasicProfile).Build(testRequest())
	if strings.Contains(basic, `"confidence"`) || strings.Contains(basic, "Extract/Infer") {
		t.Error("basic profile should not request extended fields")
	}
	if !strings.Contains(basic, "  \"reasoning\": \"One short sentence explaining the choice\"\n}") {
		t.Errorf("basic contract should end with reasoning:\n%s", basic)
	}

	extended := NewBuilder(domain.ExtendedProfile).Build(testRequest())
	for _, f := range domain.ExtendedProfile.Fields() {
		if !strings.Contains(extended, `"`+f+`":`) {
			t.Errorf("extended contract missing %q", f)
		}
	}
}

func TestBuildKeepsHeaderOnOneLine(t *testing.T) {
	req := domain.ClassificationRequest{Subject: "Hello\nInjected: line", Sender: "a@b.c"}
	got := NewBuilder(domain.BasicProfile).Build(req)
	if !strings.Contains(got, "Subject: Hello Injected: line\n") {
		t.Errorf("subject newlines should be collapsed:\n%s", got)
	}
}
