package domain

import (
	"strings"
	"unicode/utf8"
)

// Sentinel labels meaning "do not auto-file".
const (
	ManualSortLabel = "Manual Sort"
	OtherLabel      = "Other"
)

// Placeholder and diagnostic reasonings produced by the normalizer.
const (
	ReasoningPlaceholder  = "No reasoning provided."
	ReasoningNoCandidates = "No response candidates"
	ReasoningParseFailure = "Failed to parse JSON response"
)

// Urgency of the email as inferred by the classifier.
type Urgency string

const (
	UrgencyHigh   Urgency = "High"
	UrgencyMedium Urgency = "Medium"
	UrgencyLow    Urgency = "Low"
)

// Category is the coarse topical bucket inferred by the classifier.
type Category string

const (
	CategoryWork       Category = "Work"
	CategoryPersonal   Category = "Personal"
	CategoryFinance    Category = "Finance"
	CategorySocial     Category = "Social"
	CategoryPromotions Category = "Promotions"
	CategoryUpdates    Category = "Updates"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// AllUrgencies, AllCategories and AllSentiments list canonical spellings.
var (
	AllUrgencies  = []Urgency{UrgencyHigh, UrgencyMedium, UrgencyLow}
	AllCategories = []Category{CategoryWork, CategoryPersonal, CategoryFinance, CategorySocial, CategoryPromotions, CategoryUpdates}
	AllSentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}
)

// ParseUrgency matches case-insensitively; unknown values return "".
func ParseUrgency(s string) Urgency {
	for _, u := range AllUrgencies {
		if strings.EqualFold(strings.TrimSpace(s), string(u)) {
			return u
		}
	}
	return ""
}

func ParseCategory(s string) Category {
	for _, c := range AllCategories {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c
		}
	}
	return ""
}

func ParseSentiment(s string) Sentiment {
	for _, v := range AllSentiments {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v
		}
	}
	return ""
}

// ResultProfile selects which optional result fields are requested from
// the classifier and expected back.
type ResultProfile struct {
	Extended bool
}

var (
	BasicProfile    = ResultProfile{}
	ExtendedProfile = ResultProfile{Extended: true}
)

// Fields returns the JSON field names of the output contract, in prompt order.
func (p ResultProfile) Fields() []string {
	if !p.Extended {
		return []string{"label", "reasoning"}
	}
	return []string{"label", "reasoning", "confidence", "urgency", "category", "sentiment", "actionRequired"}
}

// ClassificationRequest is built once per message and discarded after use.
type ClassificationRequest struct {
	Sender   string
	Subject  string
	Body     string
	Taxonomy Taxonomy
}

// NewClassificationRequest truncates body to at most maxChars runes.
func NewClassificationRequest(sender, subject, body string, taxonomy Taxonomy, maxChars int) ClassificationRequest {
	return ClassificationRequest{
		Sender:   sender,
		Subject:  subject,
		Body:     TruncateRunes(body, maxChars),
		Taxonomy: taxonomy,
	}
}

// TruncateRunes cuts s to at most n runes without splitting a UTF-8 sequence.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// RawResponse is the opaque output of the classification service.
type RawResponse struct {
	Candidates   []string
	Model        string
	FinishReason string
}

// ClassificationResult always carries a non-empty Label.
type ClassificationResult struct {
	Label          string    `json:"label" bson:"label"`
	Reasoning      string    `json:"reasoning" bson:"reasoning"`
	Confidence     *int      `json:"confidence,omitempty" bson:"confidence,omitempty"`
	Urgency        Urgency   `json:"urgency,omitempty" bson:"urgency,omitempty"`
	Category       Category  `json:"category,omitempty" bson:"category,omitempty"`
	Sentiment      Sentiment `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
	ActionRequired *bool     `json:"actionRequired,omitempty" bson:"actionRequired,omitempty"`
}

// ManualSort returns the safe default result with a diagnostic reasoning.
func ManualSort(reasoning string) ClassificationResult {
	return ClassificationResult{Label: ManualSortLabel, Reasoning: reasoning}
}

// IsManualSort reports whether the result fell back to the sentinel label.
func (r ClassificationResult) IsManualSort() bool {
	return r.Label == ManualSortLabel
}
