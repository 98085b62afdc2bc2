// Package testutil provides in-memory implementations of the outbound ports
// for unit tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// ErrNotFound is returned by fakes for unknown ids.
var ErrNotFound = errors.New("not found")

// MailThread is one thread held by FakeMailbox.
type MailThread struct {
	Message  domain.Message
	LabelIDs map[string]bool
	Unread   bool
	InInbox  bool
}

// FakeMailbox is an in-memory MailboxProvider understanding the subset of
// Gmail search syntax the triage core uses.
type FakeMailbox struct {
	mu      sync.Mutex
	labels  []domain.MailboxLabel
	threads map[string]*MailThread
	order   []string
	nextID  int

	// SearchErr fails Search for queries containing the key.
	SearchErr map[string]error
	// MessageErr fails FirstMessage for the thread id.
	MessageErr map[string]error
	// AddLabelErr fails AddLabel for the thread id.
	AddLabelErr  map[string]error
	GetLabelsErr error

	Calls map[string]int
}

func NewFakeMailbox(labelNames ...string) *FakeMailbox {
	m := &FakeMailbox{
		threads:     make(map[string]*MailThread),
		SearchErr:   make(map[string]error),
		MessageErr:  make(map[string]error),
		AddLabelErr: make(map[string]error),
		Calls:       make(map[string]int),
	}
	for _, name := range labelNames {
		m.addLabel(name)
	}
	return m
}

func (m *FakeMailbox) addLabel(name string) domain.MailboxLabel {
	m.nextID++
	l := domain.MailboxLabel{ID: "Label_" + strconv.Itoa(m.nextID), Name: name}
	m.labels = append(m.labels, l)
	return l
}

// AddSystemLabel registers a system label such as INBOX.
func (m *FakeMailbox) AddSystemLabel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels = append(m.labels, domain.MailboxLabel{ID: id, Name: id, System: true})
}

// AddThread stores an unread inbox thread and returns its id.
func (m *FakeMailbox) AddThread(from, subject, body string, labelNames ...string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("thread-%d", len(m.order)+1)
	t := &MailThread{
		Message: domain.Message{
			ID:        "msg-" + id,
			ThreadID:  id,
			From:      from,
			Subject:   subject,
			PlainBody: body,
		},
		LabelIDs: make(map[string]bool),
		Unread:   true,
		InInbox:  true,
	}
	for _, name := range labelNames {
		if l := m.labelByName(name); l != nil {
			t.LabelIDs[l.ID] = true
		}
	}
	m.threads[id] = t
	m.order = append(m.order, id)
	return id
}

// Thread returns the stored thread.
func (m *FakeMailbox) Thread(id string) *MailThread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threads[id]
}

// LabelNames returns the sorted label names of a thread.
func (m *FakeMailbox) LabelNames(threadID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.threads[threadID]
	if t == nil {
		return nil
	}
	var names []string
	for _, l := range m.labels {
		if t.LabelIDs[l.ID] {
			names = append(names, l.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *FakeMailbox) labelByName(name string) *domain.MailboxLabel {
	for i := range m.labels {
		if m.labels[i].Name == name {
			return &m.labels[i]
		}
	}
	return nil
}

func (m *FakeMailbox) count(op string) {
	m.Calls[op]++
}

func (m *FakeMailbox) matches(t *MailThread, query string) bool {
	for _, tok := range tokenize(query) {
		negate := strings.HasPrefix(tok, "-")
		tok = strings.TrimPrefix(tok, "-")

		var ok bool
		switch {
		case tok == "is:unread":
			ok = t.Unread
		case tok == "in:inbox":
			ok = t.InInbox
		case strings.HasPrefix(tok, "label:"):
			name := strings.Trim(strings.TrimPrefix(tok, "label:"), `"`)
			l := m.labelByName(name)
			ok = l != nil && t.LabelIDs[l.ID]
		default:
			ok = true
		}
		if ok == negate {
			return false
		}
	}
	return true
}

// tokenize splits on spaces outside double quotes.
func tokenize(query string) []string {
	var tokens []string
	var cur strings.Builder
	quoted := false
	for _, r := range query {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ' ' && !quoted:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func (m *FakeMailbox) Search(ctx context.Context, query string, limit int) ([]domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("Search")
	for key, err := range m.SearchErr {
		if strings.Contains(query, key) {
			return nil, err
		}
	}

	var result []domain.Thread
	for _, id := range m.order {
		t := m.threads[id]
		if !m.matches(t, query) {
			continue
		}
		ids := make([]string, 0, len(t.LabelIDs))
		for lid := range t.LabelIDs {
			ids = append(ids, lid)
		}
		sort.Strings(ids)
		result = append(result, domain.Thread{ID: id, LabelIDs: ids})
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *FakeMailbox) Count(ctx context.Context, query string) (int, error) {
	threads, err := m.Search(ctx, query, 0)
	if err != nil {
		return 0, err
	}
	return len(threads), nil
}

func (m *FakeMailbox) InboxUnreadCount(ctx context.Context) (int, error) {
	return m.Count(ctx, "is:unread in:inbox")
}

func (m *FakeMailbox) GetLabels(ctx context.Context) ([]domain.MailboxLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("GetLabels")
	if m.GetLabelsErr != nil {
		return nil, m.GetLabelsErr
	}
	labels := make([]domain.MailboxLabel, len(m.labels))
	copy(labels, m.labels)
	return labels, nil
}

func (m *FakeMailbox) GetLabelByName(ctx context.Context, name string) (*domain.MailboxLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.labelByName(name); l != nil && !l.System {
		found := *l
		return &found, nil
	}
	return nil, nil
}

func (m *FakeMailbox) CreateLabel(ctx context.Context, name string) (*domain.MailboxLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("CreateLabel")
	if l := m.labelByName(name); l != nil {
		return nil, fmt.Errorf("label %q already exists", name)
	}
	l := m.addLabel(name)
	return &l, nil
}

func (m *FakeMailbox) FirstMessage(ctx context.Context, threadID string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("FirstMessage")
	if err := m.MessageErr[threadID]; err != nil {
		return nil, err
	}
	t, ok := m.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	msg := t.Message
	return &msg, nil
}

func (m *FakeMailbox) AddLabel(ctx context.Context, threadID, labelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("AddLabel")
	if err := m.AddLabelErr[threadID]; err != nil {
		return err
	}
	t, ok := m.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	t.LabelIDs[labelID] = true
	return nil
}

func (m *FakeMailbox) MarkRead(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("MarkRead")
	t, ok := m.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	t.Unread = false
	return nil
}

func (m *FakeMailbox) Archive(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("Archive")
	t, ok := m.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	t.InInbox = false
	return nil
}

var _ out.MailboxProvider = (*FakeMailbox)(nil)
