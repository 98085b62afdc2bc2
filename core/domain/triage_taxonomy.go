package domain

import "strconv"

// TaxonomyEntry is one label eligible as a classification target.
type TaxonomyEntry struct {
	Name string `json:"name"`
	// Example summarises one existing message carrying the label.
	// Empty when no message carries it or the lookup failed.
	Example string `json:"example,omitempty"`
}

// HasExample reports whether an example summary is attached.
func (e TaxonomyEntry) HasExample() bool {
	return e.Example != ""
}

// Taxonomy is the ordered set of labels offered to the classifier during one run.
type Taxonomy []TaxonomyEntry

// Names returns label names in taxonomy order.
func (t Taxonomy) Names() []string {
	names := make([]string, len(t))
	for i, e := range t {
		names[i] = e.Name
	}
	return names
}

// Has matches by exact, case-sensitive name.
func (t Taxonomy) Has(name string) bool {
	for _, e := range t {
		if e.Name == name {
			return true
		}
	}
	return false
}

// TaxonomyFromNames builds a taxonomy without examples.
func TaxonomyFromNames(names []string) Taxonomy {
	t := make(Taxonomy, 0, len(names))
	for _, n := range names {
		t = append(t, TaxonomyEntry{Name: n})
	}
	return t
}

// MailboxLabel is a label as the mailbox provider reports it.
type MailboxLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// System labels (INBOX, UNREAD, ...) are never classification targets.
	System bool `json:"system"`
}

// LabelIndex maps label name to provider label ID.
type LabelIndex map[string]string

// NewLabelIndex indexes labels by exact name.
func NewLabelIndex(labels []MailboxLabel) LabelIndex {
	idx := make(LabelIndex, len(labels))
	for _, l := range labels {
		idx[l.Name] = l.ID
	}
	return idx
}

// Lookup returns the provider ID for an exact label name.
func (idx LabelIndex) Lookup(name string) (string, bool) {
	id, ok := idx[name]
	return id, ok
}

// LabelQuery is the search term matching threads that carry the label.
func LabelQuery(name string) string {
	return "label:" + strconv.Quote(name)
}
