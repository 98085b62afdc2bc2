package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"triage_server/core/port/out"

	"github.com/goccy/go-json"
	"google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

type gmailServer struct {
	*httptest.Server
	modified []gmail.ModifyThreadRequest
	created  []string
}

func newGmailServer(t *testing.T) *gmailServer {
	t.Helper()
	gs := &gmailServer{}
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/gmail/v1/users/me/threads", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("q") == "is:unread -label:AIProcessed":
			writeJSON(w, gmail.ListThreadsResponse{Threads: []*gmail.Thread{{Id: "t1", Snippet: "hello"}}})
		case r.URL.Query().Get("pageToken") == "":
			writeJSON(w, gmail.ListThreadsResponse{
				Threads:       []*gmail.Thread{{Id: "a"}, {Id: "b"}},
				NextPageToken: "p2",
			})
		default:
			writeJSON(w, gmail.ListThreadsResponse{Threads: []*gmail.Thread{{Id: "c"}}})
		}
	})
	mux.HandleFunc("/gmail/v1/users/me/threads/t1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, gmail.Thread{
			Id: "t1",
			Messages: []*gmail.Message{{
				Id:           "m1",
				ThreadId:     "t1",
				LabelIds:     []string{"INBOX", "UNREAD"},
				InternalDate: 1700000000000,
				Payload: &gmail.MessagePart{
					MimeType: "multipart/mixed",
					Headers: []*gmail.MessagePartHeader{
						{Name: "From", Value: "Alice <alice@example.com>"},
						{Name: "Subject", Value: "Invoice"},
					},
					Parts: []*gmail.MessagePart{
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html body</p>")}},
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain body")}},
						{MimeType: "application/pdf", Filename: "invoice.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att1"}},
					},
				},
			}, {
				Id:       "m2",
				LabelIds: []string{"INBOX", "Label_7"},
			}},
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/threads/t1/modify", func(w http.ResponseWriter, r *http.Request) {
		var req gmail.ModifyThreadRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		gs.modified = append(gs.modified, req)
		writeJSON(w, gmail.Thread{Id: "t1"})
	})
	mux.HandleFunc("/gmail/v1/users/me/threads/gone", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Requested entity was not found."}}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var l gmail.Label
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &l)
			gs.created = append(gs.created, l.Name)
			writeJSON(w, gmail.Label{Id: "Label_99", Name: l.Name, Type: "user"})
			return
		}
		writeJSON(w, gmail.ListLabelsResponse{Labels: []*gmail.Label{
			{Id: "INBOX", Name: "INBOX", Type: "system"},
			{Id: "Label_1", Name: "Work", Type: "user"},
		}})
	})
	mux.HandleFunc("/gmail/v1/users/me/labels/INBOX", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, gmail.Label{Id: "INBOX", Name: "INBOX", ThreadsUnread: 42})
	})

	gs.Server = httptest.NewServer(mux)
	t.Cleanup(gs.Close)
	return gs
}

func newTestMailbox(t *testing.T, gs *gmailServer) *GmailMailbox {
	t.Helper()
	m, err := NewGmailMailbox(context.Background(), GmailConfig{
		Endpoint:   gs.URL + "/",
		HTTPClient: gs.Client(),
	})
	if err != nil {
		t.Fatalf("NewGmailMailbox() error = %v", err)
	}
	return m
}

func TestGmailSearch(t *testing.T) {
	m := newTestMailbox(t, newGmailServer(t))

	threads, err := m.Search(context.Background(), "is:unread -label:AIProcessed", 25)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(threads) != 1 || threads[0].ID != "t1" || threads[0].Snippet != "hello" {
		t.Fatalf("threads = %+v", threads)
	}
	want := []string{"INBOX", "UNREAD", "Label_7"}
	if strings.Join(threads[0].LabelIDs, ",") != strings.Join(want, ",") {
		t.Errorf("LabelIDs = %v, want %v", threads[0].LabelIDs, want)
	}
}

func TestGmailCountPages(t *testing.T) {
	m := newTestMailbox(t, newGmailServer(t))

	n, err := m.Count(context.Background(), "label:AIProcessed is:unread")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	unread, err := m.InboxUnreadCount(context.Background())
	if err != nil {
		t.Fatalf("InboxUnreadCount() error = %v", err)
	}
	if unread != 42 {
		t.Errorf("InboxUnreadCount() = %d, want 42", unread)
	}
}

func TestGmailFirstMessage(t *testing.T) {
	m := newTestMailbox(t, newGmailServer(t))

	msg, err := m.FirstMessage(context.Background(), "t1")
	if err != nil {
		t.Fatalf("FirstMessage() error = %v", err)
	}
	if msg.From != "Alice <alice@example.com>" || msg.Subject != "Invoice" {
		t.Errorf("headers = %q / %q", msg.From, msg.Subject)
	}
	if msg.PlainBody != "plain body" {
		t.Errorf("PlainBody = %q", msg.PlainBody)
	}
	if msg.AttachmentCount != 1 {
		t.Errorf("AttachmentCount = %d", msg.AttachmentCount)
	}
	if msg.Date.UnixMilli() != 1700000000000 {
		t.Errorf("Date = %v", msg.Date)
	}
}

func TestGmailFirstMessageNotFound(t *testing.T) {
	m := newTestMailbox(t, newGmailServer(t))

	_, err := m.FirstMessage(context.Background(), "gone")
	var perr *out.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Code != out.ProviderErrNotFound || perr.Retryable {
		t.Errorf("Code = %s, Retryable = %v", perr.Code, perr.Retryable)
	}
}

func TestGmailLabels(t *testing.T) {
	gs := newGmailServer(t)
	m := newTestMailbox(t, gs)
	ctx := context.Background()

	labels, err := m.GetLabels(ctx)
	if err != nil {
		t.Fatalf("GetLabels() error = %v", err)
	}
	if len(labels) != 2 || !labels[0].System || labels[1].System {
		t.Errorf("labels = %+v", labels)
	}

	work, err := m.GetLabelByName(ctx, "Work")
	if err != nil || work == nil || work.ID != "Label_1" {
		t.Errorf("GetLabelByName(Work) = %+v, %v", work, err)
	}
	inbox, err := m.GetLabelByName(ctx, "INBOX")
	if err != nil || inbox != nil {
		t.Errorf("system labels must not match by name, got %+v, %v", inbox, err)
	}

	created, err := m.CreateLabel(ctx, "Manual Sort")
	if err != nil {
		t.Fatalf("CreateLabel() error = %v", err)
	}
	if created.ID != "Label_99" || len(gs.created) != 1 || gs.created[0] != "Manual Sort" {
		t.Errorf("created = %+v, server saw %v", created, gs.created)
	}
}

func TestGmailModify(t *testing.T) {
	gs := newGmailServer(t)
	m := newTestMailbox(t, gs)
	ctx := context.Background()

	if err := m.AddLabel(ctx, "t1", "Label_1"); err != nil {
		t.Fatalf("AddLabel() error = %v", err)
	}
	if err := m.MarkRead(ctx, "t1"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if err := m.Archive(ctx, "t1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if len(gs.modified) != 3 {
		t.Fatalf("modify calls = %d", len(gs.modified))
	}
	if gs.modified[0].AddLabelIds[0] != "Label_1" {
		t.Errorf("AddLabel request = %+v", gs.modified[0])
	}
	if gs.modified[1].RemoveLabelIds[0] != "UNREAD" {
		t.Errorf("MarkRead request = %+v", gs.modified[1])
	}
	if gs.modified[2].RemoveLabelIds[0] != "INBOX" {
		t.Errorf("Archive request = %+v", gs.modified[2])
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"entities", "Fish &amp; Chips", "Fish & Chips"},
		{"style dropped", "<style>p{color:red}</style><div>Body</div>", "Body"},
		{"line breaks", "one<br>two", "one\ntwo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHTML(tt.in); got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeBodyUnpadded(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte("ab"))
	if got := decodeBody(raw); got != "ab" {
		t.Errorf("decodeBody(%q) = %q", raw, got)
	}
}
