package domain

import "time"

// Thread is a conversation returned by a mailbox search.
type Thread struct {
	ID       string   `json:"id"`
	Snippet  string   `json:"snippet,omitempty"`
	LabelIDs []string `json:"label_ids,omitempty"`
}

// Message is the first message of a thread, the one the classifier sees.
type Message struct {
	ID              string    `json:"id"`
	ThreadID        string    `json:"thread_id"`
	From            string    `json:"from"`
	Subject         string    `json:"subject"`
	Date            time.Time `json:"date"`
	PlainBody       string    `json:"plain_body"`
	AttachmentCount int       `json:"attachment_count"`
}

// HasAttachments reports whether the message carries at least one attachment.
func (m *Message) HasAttachments() bool {
	return m.AttachmentCount > 0
}
