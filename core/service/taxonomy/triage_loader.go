// Package taxonomy loads the label set offered to the classifier.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/goccy/go-json"
)

const (
	cacheKeyPrefix   = "taxonomy:examples"
	exampleBodyChars = 150
)

type Config struct {
	ProcessedLabel   string
	ManualLabel      string
	ExcludedPrefixes []string
	DefaultLabels    []string
	CacheTTL         time.Duration
}

// Loader builds the per-run taxonomy from mailbox labels and cached examples.
type Loader struct {
	mailbox out.MailboxProvider
	cache   out.ExampleCache
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
}

// NewLoader creates a loader. cache may be nil, in which case examples are
// looked up on every load.
func NewLoader(mailbox out.MailboxProvider, cache out.ExampleCache, cfg Config, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Default()
	}
	return &Loader{
		mailbox: mailbox,
		cache:   cache,
		cfg:     cfg,
		log:     log.WithField("component", "taxonomy"),
		now:     time.Now,
	}
}

// Load lists mailbox labels and builds the taxonomy. Failing to list labels
// is fatal; failing to fetch an example is not.
func (l *Loader) Load(ctx context.Context) (domain.Taxonomy, error) {
	labels, err := l.mailbox.GetLabels(ctx)
	if err != nil {
		return nil, apperr.Mailbox("list labels", err)
	}
	return l.LoadWithLabels(ctx, labels), nil
}

// LoadWithLabels builds the taxonomy from an already fetched label list.
// The result is never empty.
func (l *Loader) LoadWithLabels(ctx context.Context, labels []domain.MailboxLabel) domain.Taxonomy {
	names := l.EligibleNames(labels)
	if len(names) == 0 {
		l.log.Info("No eligible labels in mailbox, using default taxonomy %v", l.cfg.DefaultLabels)
		return domain.TaxonomyFromNames(l.cfg.DefaultLabels)
	}

	examples, hit := l.cachedExamples(ctx)
	metrics.RecordCacheLookup(hit)
	if !hit {
		examples = l.lookupExamples(ctx, names)
		l.storeExamples(ctx, examples)
	}

	taxonomy := make(domain.Taxonomy, 0, len(names))
	for _, name := range names {
		taxonomy = append(taxonomy, domain.TaxonomyEntry{Name: name, Example: examples[name]})
	}
	return taxonomy
}

// EligibleNames filters out system labels, reserved labels and labels with an
// excluded prefix, keeping mailbox order.
func (l *Loader) EligibleNames(labels []domain.MailboxLabel) []string {
	names := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if label.System || label.Name == "" {
			continue
		}
		if label.Name == l.cfg.ProcessedLabel || label.Name == l.cfg.ManualLabel {
			continue
		}
		if l.excluded(label.Name) {
			continue
		}
		if _, dup := seen[label.Name]; dup {
			continue
		}
		seen[label.Name] = struct{}{}
		names = append(names, label.Name)
	}
	return names
}

func (l *Loader) excluded(name string) bool {
	for _, prefix := range l.cfg.ExcludedPrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Invalidate drops cached examples by bumping the cache key version.
func (l *Loader) Invalidate(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	version, err := l.cache.BumpVersion(ctx)
	if err != nil {
		return fmt.Errorf("bump example cache version: %w", err)
	}
	l.log.Info("Label example cache invalidated, now at version %d", version)
	return nil
}

func (l *Loader) cacheKey(ctx context.Context) (string, bool) {
	if l.cache == nil {
		return "", false
	}
	version, err := l.cache.Version(ctx)
	if err != nil {
		l.log.WithError(err).Warn("Failed to read example cache version")
		return "", false
	}
	return fmt.Sprintf("%s:v%d", cacheKeyPrefix, version), true
}

func (l *Loader) cachedExamples(ctx context.Context) (map[string]string, bool) {
	key, ok := l.cacheKey(ctx)
	if !ok {
		return nil, false
	}
	entry, err := l.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, out.ErrCacheMiss) {
			l.log.WithError(err).Warn("Failed to read label examples from cache")
		}
		return nil, false
	}
	if entry.Expired(l.now()) {
		return nil, false
	}

	examples := make(map[string]string)
	if err := json.Unmarshal(entry.Value, &examples); err != nil {
		l.log.WithError(err).Warn("Discarding corrupt label example cache entry")
		return nil, false
	}
	return examples, true
}

func (l *Loader) storeExamples(ctx context.Context, examples map[string]string) {
	key, ok := l.cacheKey(ctx)
	if !ok {
		return
	}
	value, err := json.Marshal(examples)
	if err != nil {
		l.log.WithError(err).Warn("Failed to encode label examples")
		return
	}
	entry := &out.CacheEntry{Key: key, Value: value, ExpiresAt: l.now().Add(l.cfg.CacheTTL)}
	if err := l.cache.Set(ctx, entry); err != nil {
		l.log.WithError(err).Warn("Failed to cache label examples")
	}
}

// lookupExamples fetches one message per label. A failed lookup leaves that
// label without an example.
func (l *Loader) lookupExamples(ctx context.Context, names []string) map[string]string {
	examples := make(map[string]string, len(names))
	for _, name := range names {
		example, err := l.lookupExample(ctx, name)
		if err != nil {
			l.log.WithError(err).WithField("label", name).Warn("Label example lookup failed")
			continue
		}
		if example != "" {
			examples[name] = example
		}
	}
	return examples
}

func (l *Loader) lookupExample(ctx context.Context, name string) (string, error) {
	threads, err := l.mailbox.Search(ctx, domain.LabelQuery(name), 1)
	if err != nil {
		return "", apperr.Lookup(name, err)
	}
	if len(threads) == 0 {
		return "", nil
	}
	msg, err := l.mailbox.FirstMessage(ctx, threads[0].ID)
	if err != nil {
		return "", apperr.Lookup(name, err)
	}
	return Summarize(msg), nil
}

// Summarize renders a one-line example: sender, subject and a body snippet.
func Summarize(msg *domain.Message) string {
	if msg == nil {
		return ""
	}
	body := strings.Join(strings.Fields(msg.PlainBody), " ")
	return fmt.Sprintf("From: %s | Subject: %s | %s",
		msg.From, msg.Subject, domain.TruncateRunes(body, exampleBodyChars))
}
