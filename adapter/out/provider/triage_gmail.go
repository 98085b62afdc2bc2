// Package provider implements mailbox provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"html"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/httputil"
	"triage_server/pkg/logger"
	"triage_server/pkg/resilience"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	gmailLabelInbox  = "INBOX"
	gmailLabelUnread = "UNREAD"

	// countPageSize and countCap bound how far Count pages through results.
	countPageSize = 500
	countCap      = 5000
)

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// User is the Gmail user id, "me" for the token owner.
	User string

	// Endpoint and HTTPClient override the API base URL and transport.
	Endpoint   string
	HTTPClient *http.Client
}

// GmailMailbox implements out.MailboxProvider on the Gmail API.
type GmailMailbox struct {
	svc     *gmail.Service
	user    string
	breaker *resilience.Breaker
	log     *logger.Logger
}

// NewGmailMailbox builds a Gmail client that refreshes access tokens from a
// stored refresh token.
func NewGmailMailbox(ctx context.Context, cfg GmailConfig) (*GmailMailbox, error) {
	user := cfg.User
	if user == "" {
		user = "me"
	}

	client := cfg.HTTPClient
	if client == nil {
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes: []string{
				gmail.GmailModifyScope,
				gmail.GmailLabelsScope,
			},
			Endpoint: google.Endpoint,
		}
		ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		base := httputil.NewOptimizedClient(httputil.GmailClientConfig())
		client = &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base.Transport},
			Timeout:   base.Timeout,
		}
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrAuth, "failed to create gmail service", err, false)
	}

	return &GmailMailbox{
		svc:     svc,
		user:    user,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig("gmail-api")),
		log:     logger.WithField("provider", "gmail"),
	}, nil
}

// =============================================================================
// Search
// =============================================================================

// Search lists matching threads and loads each thread's label ids.
func (a *GmailMailbox) Search(ctx context.Context, query string, limit int) ([]domain.Thread, error) {
	var resp *gmail.ListThreadsResponse
	err := a.execute("search", func() error {
		var callErr error
		resp, callErr = a.svc.Users.Threads.List(a.user).Q(query).MaxResults(int64(limit)).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to search threads")
	}

	threads := make([]domain.Thread, 0, len(resp.Threads))
	for _, t := range resp.Threads {
		var full *gmail.Thread
		err := a.execute("get_thread", func() error {
			var callErr error
			full, callErr = a.svc.Users.Threads.Get(a.user, t.Id).Format("minimal").Context(ctx).Do()
			return callErr
		})
		if err != nil {
			return nil, a.wrapError(err, "failed to get thread")
		}
		threads = append(threads, domain.Thread{
			ID:       t.Id,
			Snippet:  t.Snippet,
			LabelIDs: threadLabelIDs(full),
		})
	}
	return threads, nil
}

// Count pages through the result set, stopping at countCap.
func (a *GmailMailbox) Count(ctx context.Context, query string) (int, error) {
	total := 0
	pageToken := ""
	for total < countCap {
		var resp *gmail.ListThreadsResponse
		err := a.execute("count", func() error {
			call := a.svc.Users.Threads.List(a.user).Q(query).MaxResults(countPageSize).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var callErr error
			resp, callErr = call.Do()
			return callErr
		})
		if err != nil {
			return 0, a.wrapError(err, "failed to count threads")
		}
		total += len(resp.Threads)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return total, nil
}

func (a *GmailMailbox) InboxUnreadCount(ctx context.Context) (int, error) {
	var label *gmail.Label
	err := a.execute("inbox_unread", func() error {
		var callErr error
		label, callErr = a.svc.Users.Labels.Get(a.user, gmailLabelInbox).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return 0, a.wrapError(err, "failed to get inbox label")
	}
	return int(label.ThreadsUnread), nil
}

// =============================================================================
// Labels
// =============================================================================

func (a *GmailMailbox) GetLabels(ctx context.Context) ([]domain.MailboxLabel, error) {
	var resp *gmail.ListLabelsResponse
	err := a.execute("list_labels", func() error {
		var callErr error
		resp, callErr = a.svc.Users.Labels.List(a.user).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list labels")
	}

	labels := make([]domain.MailboxLabel, len(resp.Labels))
	for i, l := range resp.Labels {
		labels[i] = domain.MailboxLabel{
			ID:     l.Id,
			Name:   l.Name,
			System: l.Type == "system",
		}
	}
	return labels, nil
}

func (a *GmailMailbox) GetLabelByName(ctx context.Context, name string) (*domain.MailboxLabel, error) {
	labels, err := a.GetLabels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range labels {
		if !labels[i].System && labels[i].Name == name {
			return &labels[i], nil
		}
	}
	return nil, nil
}

func (a *GmailMailbox) CreateLabel(ctx context.Context, name string) (*domain.MailboxLabel, error) {
	label := &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}

	var created *gmail.Label
	err := a.execute("create_label", func() error {
		var callErr error
		created, callErr = a.svc.Users.Labels.Create(a.user, label).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to create label")
	}
	return &domain.MailboxLabel{ID: created.Id, Name: created.Name}, nil
}

// =============================================================================
// Messages
// =============================================================================

func (a *GmailMailbox) FirstMessage(ctx context.Context, threadID string) (*domain.Message, error) {
	var thread *gmail.Thread
	err := a.execute("first_message", func() error {
		var callErr error
		thread, callErr = a.svc.Users.Threads.Get(a.user, threadID).Format("full").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get thread")
	}
	if len(thread.Messages) == 0 {
		return nil, out.NewProviderError("gmail", out.ProviderErrNotFound, "thread has no messages", nil, false)
	}
	return a.convertMessage(thread.Messages[0]), nil
}

func (a *GmailMailbox) AddLabel(ctx context.Context, threadID, labelID string) error {
	return a.modifyThread(ctx, threadID, []string{labelID}, nil)
}

func (a *GmailMailbox) MarkRead(ctx context.Context, threadID string) error {
	return a.modifyThread(ctx, threadID, nil, []string{gmailLabelUnread})
}

func (a *GmailMailbox) Archive(ctx context.Context, threadID string) error {
	return a.modifyThread(ctx, threadID, nil, []string{gmailLabelInbox})
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (a *GmailMailbox) modifyThread(ctx context.Context, threadID string, add, remove []string) error {
	req := &gmail.ModifyThreadRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	err := a.execute("modify_thread", func() error {
		_, callErr := a.svc.Users.Threads.Modify(a.user, threadID, req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return a.wrapError(err, "failed to modify thread")
	}
	return nil
}

// execute runs fn behind the breaker. 400, 401, 403 and 404 are returned
// without counting as failures.
func (a *GmailMailbox) execute(operation string, fn func() error) error {
	err := a.breaker.Execute(fn, func(err error) bool {
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) {
			return false
		}
		switch apiErr.Code {
		case 400, 401, 403, 404:
			return true
		}
		return false
	})
	if err != nil && resilience.IsRejected(err) {
		a.log.Warn("Circuit breaker rejected %s: state=%s", operation, a.breaker.State())
	}
	return err
}

func (a *GmailMailbox) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if resilience.IsRejected(err) {
		return out.NewProviderError("gmail", out.ProviderErrServer, "circuit breaker open", err, true)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400:
			return out.NewProviderError("gmail", out.ProviderErrInvalidInput, "Invalid request", err, false)
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrAuth, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "Server error", err, true)
		}
	}
	return out.NewProviderError("gmail", out.ProviderErrNetwork, defaultMsg, err, true)
}

func threadLabelIDs(t *gmail.Thread) []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, m := range t.Messages {
		for _, id := range m.LabelIds {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (a *GmailMailbox) convertMessage(msg *gmail.Message) *domain.Message {
	result := &domain.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.InternalDate > 0 {
		result.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return result
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "From":
			result.From = h.Value
		case "Subject":
			result.Subject = h.Value
		case "Date":
			if result.Date.IsZero() {
				if t, err := mail.ParseDate(h.Value); err == nil {
					result.Date = t.UTC()
				}
			}
		}
	}

	var plain, htmlBody string
	extractBody(msg.Payload, &plain, &htmlBody)
	if plain != "" {
		result.PlainBody = plain
	} else if htmlBody != "" {
		result.PlainBody = stripHTML(htmlBody)
	}
	result.AttachmentCount = countAttachments(msg.Payload)
	return result
}

// extractBody keeps the first text/plain and text/html parts found depth-first.
func extractBody(part *gmail.MessagePart, plain, htmlBody *string) {
	if part == nil {
		return
	}
	if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if *plain == "" {
				*plain = decodeBody(part.Body.Data)
			}
		case "text/html":
			if *htmlBody == "" {
				*htmlBody = decodeBody(part.Body.Data)
			}
		}
	}
	for _, p := range part.Parts {
		extractBody(p, plain, htmlBody)
	}
}

// decodeBody accepts padded and unpadded base64url.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}

func countAttachments(part *gmail.MessagePart) int {
	if part == nil {
		return 0
	}
	n := 0
	if part.Filename != "" {
		n++
	}
	for _, p := range part.Parts {
		n += countAttachments(p)
	}
	return n
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockTagRe    = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n+`)
)

func stripHTML(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, "")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var _ out.MailboxProvider = (*GmailMailbox)(nil)
