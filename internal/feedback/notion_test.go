package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"metasolver/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNotion_RecordCreatesPage(t *testing.T) {
	var got pageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pages" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if h := r.Header.Get("Authorization"); h != "Bearer secret_abc" {
			t.Errorf("unexpected auth %q", h)
		}
		if h := r.Header.Get("Notion-Version"); h != "2022-06-28" {
			t.Errorf("unexpected version %q", h)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"object":"page","id":"page-1"}`))
	}))
	defer srv.Close()

	n := NewNotion(NotionConfig{Token: "secret_abc", DatabaseID: "db-1", APIBase: srv.URL, Logger: testLogger()})
	err := n.Record(context.Background(), domain.FeedbackRecord{
		Author:   "U123",
		Message:  "gracias, me ayudó mucho",
		Category: "gratitude",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if got.Parent.DatabaseID != "db-1" {
		t.Errorf("unexpected parent %+v", got.Parent)
	}
	if a := got.Properties["Author"]; len(a.Title) != 1 || a.Title[0].Text.Content != "U123" {
		t.Errorf("unexpected author %+v", a)
	}
	if m := got.Properties["Message"]; len(m.RichText) != 1 || m.RichText[0].Text.Content != "gracias, me ayudó mucho" {
		t.Errorf("unexpected message %+v", m)
	}
	if c := got.Properties["Category"]; c.Select == nil || c.Select.Name != "gratitude" {
		t.Errorf("unexpected category %+v", c)
	}
}

func TestNotion_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"validation_error","message":"Category is not a property"}`))
	}))
	defer srv.Close()

	n := NewNotion(NotionConfig{Token: "t", DatabaseID: "db", APIBase: srv.URL, Logger: testLogger()})
	err := n.Record(context.Background(), domain.FeedbackRecord{Author: "U1", Message: "m", Category: "c"})
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if !strings.Contains(err.Error(), "notion 400") || !strings.Contains(err.Error(), "validation_error") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestText_TruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("ñ", notionTextLimit+50)
	rt := text(long)
	if n := utf8.RuneCountInString(rt[0].Text.Content); n != notionTextLimit {
		t.Fatalf("expected %d runes, got %d", notionTextLimit, n)
	}
}

func TestNotion_UnreadableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := NewNotion(NotionConfig{Token: "t", DatabaseID: "db", APIBase: srv.URL, Logger: logger})
	if err := n.Record(context.Background(), domain.FeedbackRecord{Author: "U1", Message: "m", Category: "c"}); err != nil {
		t.Fatalf("a 200 response is a successful write: %v", err)
	}
	if !strings.Contains(buf.String(), "notion page id unreadable") {
		t.Errorf("expected decode failure to be logged, got:\n%s", buf.String())
	}
}
