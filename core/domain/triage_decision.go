package domain

// DecisionAction is what the orchestrator does with a classified thread.
type DecisionAction string

const (
	ActionApplyLabel  DecisionAction = "apply-label"
	ActionDeferManual DecisionAction = "defer-manual"
	ActionNoOp        DecisionAction = "no-op"
)

// DecisionOutcome is derived deterministically from a result and the taxonomy.
type DecisionOutcome struct {
	Action DecisionAction `json:"action" bson:"action"`
	// Label is the mailbox label to add: the chosen taxonomy label for
	// apply-label, the manual-review label for defer-manual.
	Label    string `json:"label,omitempty" bson:"label,omitempty"`
	MarkRead bool   `json:"mark_read" bson:"mark_read"`
	Archive  bool   `json:"archive" bson:"archive"`
	Reason   string `json:"reason,omitempty" bson:"reason,omitempty"`
}

func (o DecisionOutcome) IsApply() bool { return o.Action == ActionApplyLabel }
func (o DecisionOutcome) IsDefer() bool { return o.Action == ActionDeferManual }
