// Package normalize turns raw classifier text into a usable ClassificationResult.
//
// The classifier is asked for JSON, but replies are not trusted to be well
// formed: fences, prose around the object, missing fields and wrong types
// all degrade to the manual-review default instead of failing.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"triage_server/core/domain"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/tidwall/gjson"
)

const maxLoggedRaw = 1000

// Normalizer never fails: every input maps to a result with a non-empty label.
type Normalizer struct {
	profile domain.ResultProfile
	log     *logger.Logger
}

func New(profile domain.ResultProfile, log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.Default()
	}
	return &Normalizer{
		profile: profile,
		log:     log.WithField("component", "normalizer"),
	}
}

// Normalize applies, in order: candidate check, fence stripping, object
// extraction and parsing. Any failure yields a Manual Sort result.
func (n *Normalizer) Normalize(raw *domain.RawResponse) domain.ClassificationResult {
	if raw == nil || len(raw.Candidates) == 0 {
		metrics.RecordFallback("no_candidates")
		return domain.ManualSort(domain.ReasoningNoCandidates)
	}

	text := raw.Candidates[0]
	result, err := Parse(text, n.profile)
	if err != nil {
		metrics.RecordFallback("parse")
		n.log.WithError(err).
			WithField("raw", domain.TruncateRunes(text, maxLoggedRaw)).
			Warn("Unparsable classifier response, deferring to manual sort")
		return domain.ManualSort(domain.ReasoningParseFailure)
	}
	return result
}

// Parse is the strict half of Normalize: it returns a FORMAT_ERROR instead of
// falling back.
func Parse(text string, profile domain.ResultProfile) (domain.ClassificationResult, error) {
	obj, ok := ExtractObject(StripFences(text))
	if !ok {
		return domain.ClassificationResult{}, apperr.Format("no JSON object in response", nil)
	}
	if !gjson.Valid(obj) {
		return domain.ClassificationResult{}, apperr.Format("invalid JSON in response", nil)
	}
	root := gjson.Parse(obj)
	if !root.IsObject() {
		return domain.ClassificationResult{}, apperr.Format("response is not a JSON object", nil)
	}

	result := domain.ClassificationResult{
		Label:     stringField(root, "label"),
		Reasoning: stringField(root, "reasoning"),
	}
	if result.Label == "" {
		result.Label = domain.ManualSortLabel
	}
	if result.Reasoning == "" {
		result.Reasoning = stringField(root, "summary")
	}
	if result.Reasoning == "" {
		result.Reasoning = domain.ReasoningPlaceholder
	}

	if profile.Extended {
		result.Confidence = confidenceField(root.Get("confidence"))
		result.Urgency = domain.ParseUrgency(stringField(root, "urgency"))
		result.Category = domain.ParseCategory(stringField(root, "category"))
		result.Sentiment = domain.ParseSentiment(stringField(root, "sentiment"))
		result.ActionRequired = boolField(root.Get("actionRequired"))
	}
	return result, nil
}

// StripFences removes a leading ```json or ``` marker and a trailing ```.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractObject slices text from the first '{' to the last '}'.
// It reports false when no such span exists.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func stringField(root gjson.Result, key string) string {
	v := root.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

// confidenceField accepts numbers and numeric strings, clamped to 1..10.
func confidenceField(v gjson.Result) *int {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	c := int(math.Round(f))
	if c < 1 {
		c = 1
	}
	if c > 10 {
		c = 10
	}
	return &c
}

func boolField(v gjson.Result) *bool {
	switch v.Type {
	case gjson.True, gjson.False:
		b := v.Bool()
		return &b
	case gjson.String:
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		if err != nil {
			return nil
		}
		return &b
	}
	return nil
}
