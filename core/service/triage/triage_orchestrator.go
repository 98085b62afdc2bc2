// Package triage runs the batch: search, classify, decide, label, record.
package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/decision"
	"triage_server/core/service/normalize"
	"triage_server/core/service/prompt"
	"triage_server/core/service/taxonomy"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/google/uuid"
)

type Config struct {
	ProcessedLabel string
	BatchLimit     int
	BodyMaxChars   int
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Mailbox    out.MailboxProvider
	Classifier out.ClassificationService
	Sink       out.ResultSink
	Loader     *taxonomy.Loader
	Builder    *prompt.Builder
	Normalizer *normalize.Normalizer
	Policy     *decision.Policy
}

// Orchestrator processes one batch at a time. Overlapping Run calls are
// rejected with apperr.ErrRunInProgress.
type Orchestrator struct {
	Deps
	stats *StatsRefresher
	cfg   Config
	log   *logger.Logger

	runMu   sync.Mutex
	stateMu sync.RWMutex
	state   domain.RunState

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(deps Deps, cfg Config, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Default()
	}
	log = log.WithField("component", "orchestrator")
	return &Orchestrator{
		Deps:  deps,
		stats: NewStatsRefresher(deps.Mailbox, deps.Sink, cfg.ProcessedLabel, log),
		cfg:   cfg,
		log:   log,
		state: domain.StateIdle,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// run carries the per-run view of the mailbox.
type run struct {
	id          string
	taxonomy    domain.Taxonomy
	labels      domain.LabelIndex
	processedID string
	log         *logger.Logger
}

// Run executes one batch. Setup failures abort the run; failures of a single
// thread are recorded and the loop continues.
func (o *Orchestrator) Run(ctx context.Context, trigger string) (*domain.RunSummary, error) {
	if !o.runMu.TryLock() {
		return nil, apperr.ErrRunInProgress
	}
	defer o.runMu.Unlock()
	defer o.setState(domain.StateIdle)

	summary := &domain.RunSummary{
		RunID:     o.newID(),
		Trigger:   trigger,
		StartedAt: o.now(),
	}
	log := o.log.WithFields(map[string]interface{}{
		"run_id":  summary.RunID,
		"trigger": trigger,
	})
	log.Info("Triage run started")

	o.setState(domain.StateLoadingTaxonomy)
	r, err := o.prepare(ctx, summary.RunID, log)
	if err != nil {
		log.WithError(err).Error("Triage run aborted during setup")
		return nil, err
	}

	if _, err := o.stats.Refresh(ctx, domain.StatsRunning); err != nil {
		log.WithError(err).Warn("Initial stats refresh failed")
	}

	query := fmt.Sprintf("is:unread -%s", domain.LabelQuery(o.cfg.ProcessedLabel))
	threads, err := o.Mailbox.Search(ctx, query, o.cfg.BatchLimit)
	if err != nil {
		err = apperr.Mailbox("search", err)
		log.WithError(err).Error("Triage run aborted: search failed")
		return nil, err
	}
	summary.Eligible = len(threads)
	if len(threads) == 0 {
		log.Info("No eligible threads")
	}

	o.setState(domain.StateProcessing)
	for i, thread := range threads {
		if ctx.Err() != nil {
			log.Warn("Run cancelled after %d of %d threads", i, len(threads))
			break
		}
		rec := o.processThread(ctx, r, thread)
		stored := o.store(ctx, r, rec)

		switch {
		case rec.Status == domain.RecordError || !stored:
			summary.Failed++
		case rec.Outcome.IsApply():
			summary.Applied++
		case rec.Outcome.IsDefer():
			summary.Deferred++
		default:
			summary.Skipped++
		}
		metrics.RecordThread(string(rec.Status), string(rec.Outcome.Action))
	}

	o.setState(domain.StateReporting)
	stats, err := o.stats.Refresh(ctx, domain.StatsIdle)
	if err != nil {
		log.WithError(err).Warn("Final stats refresh failed")
	}
	summary.Stats = stats
	summary.FinishedAt = o.now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	metrics.RecordRun(trigger, summary.Duration)

	log.WithFields(map[string]interface{}{
		"eligible": summary.Eligible,
		"applied":  summary.Applied,
		"deferred": summary.Deferred,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}).WithDuration(summary.Duration).Info("Triage run finished")
	return summary, nil
}

// prepare ensures the processed marker exists and loads the taxonomy.
func (o *Orchestrator) prepare(ctx context.Context, runID string, log *logger.Logger) (*run, error) {
	processed, err := o.ensureLabel(ctx, nil, o.cfg.ProcessedLabel)
	if err != nil {
		return nil, err
	}

	labels, err := o.Mailbox.GetLabels(ctx)
	if err != nil {
		return nil, apperr.Mailbox("list labels", err)
	}
	tax := o.Loader.LoadWithLabels(ctx, labels)
	log.WithField("labels", tax.Names()).Debug("Taxonomy loaded")

	return &run{
		id:          runID,
		taxonomy:    tax,
		labels:      domain.NewLabelIndex(labels),
		processedID: processed,
		log:         log,
	}, nil
}

// ensureLabel returns the id of the named user label, creating it when missing.
// When idx is not nil it is consulted first and updated.
func (o *Orchestrator) ensureLabel(ctx context.Context, idx domain.LabelIndex, name string) (string, error) {
	if id, ok := idx.Lookup(name); ok {
		return id, nil
	}
	label, err := o.Mailbox.GetLabelByName(ctx, name)
	if err != nil {
		return "", apperr.Mailbox("get label "+name, err)
	}
	if label == nil {
		label, err = o.Mailbox.CreateLabel(ctx, name)
		if err != nil {
			return "", apperr.Mailbox("create label "+name, err)
		}
		o.log.Info("Created label %q", name)
	}
	if idx != nil {
		idx[name] = label.ID
	}
	return label.ID, nil
}

func (o *Orchestrator) processThread(ctx context.Context, r *run, thread domain.Thread) *domain.RunRecord {
	start := o.now()
	rec := &domain.RunRecord{
		ID:       o.newID(),
		RunID:    r.id,
		ThreadID: thread.ID,
	}
	log := r.log.WithField("thread_id", thread.ID)

	fail := func(err error) *domain.RunRecord {
		rec.Status = domain.RecordError
		rec.Error = err.Error()
		rec.ProcessedAt = o.now()
		rec.ProcessingTime = rec.ProcessedAt.Sub(start)
		log.WithError(err).Warn("Thread failed, continuing with the batch")
		return rec
	}

	msg, err := o.Mailbox.FirstMessage(ctx, thread.ID)
	if err != nil {
		return fail(apperr.Mailbox("read first message", err))
	}
	rec.MessageID = msg.ID
	rec.Sender = msg.From
	rec.Subject = msg.Subject
	rec.ReceivedAt = msg.Date
	rec.BodySnippet = domain.TruncateRunes(msg.PlainBody, domain.BodySnippetLength)
	rec.HasAttachments = msg.HasAttachments()

	req := domain.NewClassificationRequest(msg.From, msg.Subject, msg.PlainBody, r.taxonomy, o.cfg.BodyMaxChars)
	raw, err := o.Classifier.Classify(ctx, o.Builder.Build(req))
	if err != nil {
		return fail(err)
	}

	result := o.Normalizer.Normalize(raw)
	rec.Result = &result
	outcome := o.Policy.Decide(result, r.taxonomy, r.labels, thread)
	rec.Outcome = outcome

	if err := o.apply(ctx, r, thread, outcome); err != nil {
		return fail(err)
	}
	rec.AppliedLabel = outcome.Label
	rec.Status = domain.RecordSuccess
	rec.ProcessedAt = o.now()
	rec.ProcessingTime = rec.ProcessedAt.Sub(start)

	log.WithFields(map[string]interface{}{
		"action": outcome.Action,
		"label":  outcome.Label,
	}).Info("Thread classified")
	return rec
}

// apply mutates the mailbox for one outcome and adds the processed marker last.
func (o *Orchestrator) apply(ctx context.Context, r *run, thread domain.Thread, outcome domain.DecisionOutcome) error {
	switch outcome.Action {
	case domain.ActionApplyLabel:
		id, ok := r.labels.Lookup(outcome.Label)
		if !ok {
			return apperr.NotFound("label " + outcome.Label)
		}
		if err := o.Mailbox.AddLabel(ctx, thread.ID, id); err != nil {
			return apperr.Mailbox("add label", err)
		}
	case domain.ActionDeferManual:
		id, err := o.ensureLabel(ctx, r.labels, outcome.Label)
		if err != nil {
			return err
		}
		if err := o.Mailbox.AddLabel(ctx, thread.ID, id); err != nil {
			return apperr.Mailbox("add manual label", err)
		}
	}

	if outcome.MarkRead {
		if err := o.Mailbox.MarkRead(ctx, thread.ID); err != nil {
			return apperr.Mailbox("mark read", err)
		}
	}
	if outcome.Archive {
		if err := o.Mailbox.Archive(ctx, thread.ID); err != nil {
			return apperr.Mailbox("archive", err)
		}
	}

	if err := o.Mailbox.AddLabel(ctx, thread.ID, r.processedID); err != nil {
		return apperr.Mailbox("add processed label", err)
	}
	return nil
}

// store appends the record. It reports false when the sink rejected it.
func (o *Orchestrator) store(ctx context.Context, r *run, rec *domain.RunRecord) bool {
	if err := o.Sink.AppendRecord(ctx, rec); err != nil {
		r.log.WithError(apperr.Sink("append record", err)).
			WithField("thread_id", rec.ThreadID).
			Error("Failed to store run record")
		return false
	}
	return true
}

// State returns the current run state.
func (o *Orchestrator) State() domain.RunState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s domain.RunState) {
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
}

// RefreshStats recomputes the stats document outside a run.
func (o *Orchestrator) RefreshStats(ctx context.Context) (*domain.InboxStats, error) {
	status := domain.StatsIdle
	if o.State() != domain.StateIdle {
		status = domain.StatsRunning
	}
	return o.stats.Refresh(ctx, status)
}

// InvalidateExamples drops cached label examples.
func (o *Orchestrator) InvalidateExamples(ctx context.Context) error {
	return o.Loader.Invalidate(ctx)
}

var _ in.TriageService = (*Orchestrator)(nil)
