// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"triage_server/core/domain"
)

// MailboxProvider is the mailbox the orchestrator reads and labels.
// Label addition must be idempotent: adding a label a thread already
// carries is a no-op.
type MailboxProvider interface {
	// Search returns at most limit threads matching a Gmail-style query
	// (is:unread, -label:X, label:X, in:inbox).
	Search(ctx context.Context, query string, limit int) ([]domain.Thread, error)
	// Count returns the number of threads matching query.
	Count(ctx context.Context, query string) (int, error)
	// InboxUnreadCount returns the unread thread count of the inbox.
	InboxUnreadCount(ctx context.Context) (int, error)

	GetLabels(ctx context.Context) ([]domain.MailboxLabel, error)
	// GetLabelByName returns nil, nil when no user label has that exact name.
	GetLabelByName(ctx context.Context, name string) (*domain.MailboxLabel, error)
	CreateLabel(ctx context.Context, name string) (*domain.MailboxLabel, error)

	// FirstMessage returns the first message of a thread.
	FirstMessage(ctx context.Context, threadID string) (*domain.Message, error)

	AddLabel(ctx context.Context, threadID, labelID string) error
	MarkRead(ctx context.Context, threadID string) error
	Archive(ctx context.Context, threadID string) error
}

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError represents a mailbox provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
