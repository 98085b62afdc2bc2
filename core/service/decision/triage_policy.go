package decision

import (
	"fmt"

	"triage_server/core/domain"
)

// Config of the decision policy.
type Config struct {
	// ManualLabel is the mailbox label added to deferred threads.
	ManualLabel string
	// DeferLabels are result labels meaning "do not auto-file".
	// Manual Sort is always included.
	DeferLabels            []string
	MarkReadOnApply        bool
	ArchiveOnApply         bool
	PreserveUnreadOnManual bool
	// MinConfidence defers apply-label outcomes whose known confidence is
	// lower. Zero disables the check.
	MinConfidence int
}

// Policy maps a ClassificationResult to a DecisionOutcome. It is pure: the
// same inputs always give the same outcome.
type Policy struct {
	cfg      Config
	deferSet map[string]struct{}
}

func New(cfg Config) *Policy {
	set := map[string]struct{}{domain.ManualSortLabel: {}}
	for _, l := range cfg.DeferLabels {
		set[l] = struct{}{}
	}
	return &Policy{cfg: cfg, deferSet: set}
}

// IsDeferLabel reports whether label is a deferral sentinel.
func (p *Policy) IsDeferLabel(label string) bool {
	_, ok := p.deferSet[label]
	return ok
}

// Decide picks the action for one thread. A label is applied only when it is
// both a taxonomy entry and an existing mailbox label, compared by exact,
// case-sensitive name. Labels are never created here.
func (p *Policy) Decide(result domain.ClassificationResult, taxonomy domain.Taxonomy, labels domain.LabelIndex, thread domain.Thread) domain.DecisionOutcome {
	if p.IsDeferLabel(result.Label) {
		return p.deferManual(fmt.Sprintf("classifier returned %q", result.Label))
	}
	if !taxonomy.Has(result.Label) {
		return p.deferManual(fmt.Sprintf("label %q is not in the taxonomy", result.Label))
	}
	labelID, ok := labels.Lookup(result.Label)
	if !ok {
		return p.deferManual(fmt.Sprintf("label %q does not exist in the mailbox", result.Label))
	}
	if p.cfg.MinConfidence > 0 && result.Confidence != nil && *result.Confidence < p.cfg.MinConfidence {
		return p.deferManual(fmt.Sprintf("confidence %d below %d", *result.Confidence, p.cfg.MinConfidence))
	}

	if hasLabel(thread, labelID) && !p.cfg.MarkReadOnApply && !p.cfg.ArchiveOnApply {
		return domain.DecisionOutcome{
			Action: domain.ActionNoOp,
			Label:  result.Label,
			Reason: "thread already carries the label",
		}
	}

	return domain.DecisionOutcome{
		Action:   domain.ActionApplyLabel,
		Label:    result.Label,
		MarkRead: p.cfg.MarkReadOnApply,
		Archive:  p.cfg.ArchiveOnApply,
		Reason:   "matched existing label",
	}
}

func (p *Policy) deferManual(reason string) domain.DecisionOutcome {
	return domain.DecisionOutcome{
		Action:   domain.ActionDeferManual,
		Label:    p.cfg.ManualLabel,
		MarkRead: !p.cfg.PreserveUnreadOnManual,
		Reason:   reason,
	}
}

func hasLabel(thread domain.Thread, labelID string) bool {
	for _, id := range thread.LabelIDs {
		if id == labelID {
			return true
		}
	}
	return false
}
