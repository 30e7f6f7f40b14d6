package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"metasolver/internal/domain"
	"metasolver/internal/logctx"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type recordingDispatcher struct {
	mu        sync.Mutex
	messages  []domain.MessageEvent
	reactions []domain.ReactionEvent
	ctxs      []context.Context
}

func (d *recordingDispatcher) HandleMessage(ctx context.Context, ev domain.MessageEvent) domain.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, ev)
	d.ctxs = append(d.ctxs, ctx)
	return domain.OutcomeAnswered
}

func (d *recordingDispatcher) HandleReaction(ctx context.Context, ev domain.ReactionEvent) domain.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reactions = append(d.reactions, ev)
	return domain.OutcomeValidated
}

func newTestWebhook() (*Webhook, *recordingDispatcher) {
	d := &recordingDispatcher{}
	return NewWebhook(WebhookConfig{SigningSecret: testSecret, Dispatcher: d, Logger: testLogger()}), d
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("v0:" + ts + ":" + body))

	req := httptest.NewRequest("POST", "/slack/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestWebhook_ChallengeEchoedVerbatim(t *testing.T) {
	w, d := newTestWebhook()
	for _, challenge := range []string{"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", "a b\"c", ""} {
		body := `{"token":"x","type":"url_verification","challenge":` + strconv.Quote(challenge) + `}`
		req := httptest.NewRequest("POST", "/slack/events", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()

		w.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
		if rr.Body.String() != challenge {
			t.Errorf("expected body %q, got %q", challenge, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
			t.Errorf("expected text/plain, got %q", ct)
		}
	}
	if len(d.messages) != 0 {
		t.Fatal("handshake must not dispatch")
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	w, _ := newTestWebhook()
	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("GET", "/slack/events", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestWebhook_InvalidJSON(t *testing.T) {
	w, d := newTestWebhook()
	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/slack/events", bytes.NewBufferString("not json")))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if len(d.messages) != 0 {
		t.Error("malformed body must not dispatch")
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	w, d := newTestWebhook()
	body := `{"type":"event_callback","event":{"type":"message","channel":"C1","user":"U1","text":"hola","ts":"1.1"}}`
	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/slack/events", bytes.NewBufferString(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	if len(d.messages) != 0 {
		t.Error("unsigned request must not dispatch")
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	w, _ := newTestWebhook()
	body := `{"type":"event_callback","event":{"type":"message","channel":"C1","user":"U1","text":"hola","ts":"1.1"}}`
	req := signedRequest(t, body)
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestWebhook_DispatchesMessageEvent(t *testing.T) {
	w, d := newTestWebhook()
	body := `{"token":"x","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":"Ev1","event_time":1,
		"event":{"type":"message","channel":"C1","user":"U1","text":"no puedo conectar mi número a la API",
		"ts":"50.2","thread_ts":"50.0","channel_type":"channel"}}`
	rr := httptest.NewRecorder()

	w.ServeHTTP(rr, signedRequest(t, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(d.messages) != 1 {
		t.Fatalf("expected 1 dispatched message, got %d", len(d.messages))
	}
	got := d.messages[0]
	want := domain.MessageEvent{
		Channel:  "C1",
		ThreadTS: "50.0",
		TS:       "50.2",
		User:     "U1",
		Text:     "no puedo conectar mi número a la API",
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if logctx.From(d.ctxs[0], nil) == nil {
		t.Error("dispatch context should carry the request logger")
	}
}

func TestWebhook_DispatchesSubtypeAndBotFields(t *testing.T) {
	w, d := newTestWebhook()
	body := `{"type":"event_callback","event":{"type":"message","subtype":"bot_message","bot_id":"B1",
		"channel":"C1","text":"auto","ts":"7.1"}}`
	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, signedRequest(t, body))

	if len(d.messages) != 1 {
		t.Fatalf("expected dispatch, got %d", len(d.messages))
	}
	if d.messages[0].SubType != "bot_message" || d.messages[0].BotID != "B1" {
		t.Errorf("subtype/bot id not carried: %+v", d.messages[0])
	}
}

func TestWebhook_DispatchesReactionEvent(t *testing.T) {
	w, d := newTestWebhook()
	body := `{"type":"event_callback","event":{"type":"reaction_added","user":"U2","reaction":"white_check_mark",
		"item_user":"UBOT","item":{"type":"message","channel":"C1","ts":"60.1"},"event_ts":"61.0"}}`
	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, signedRequest(t, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(d.reactions) != 1 {
		t.Fatalf("expected 1 reaction, got %d", len(d.reactions))
	}
	want := domain.ReactionEvent{User: "U2", Reaction: "white_check_mark", Channel: "C1", ItemTS: "60.1", ItemType: "message"}
	if d.reactions[0] != want {
		t.Errorf("got %+v, want %+v", d.reactions[0], want)
	}
}

func TestWebhook_IgnoresUnsupportedEvent(t *testing.T) {
	w, d := newTestWebhook()
	body := `{"type":"event_callback","event":{"type":"some_future_event","user":"U1"}}`
	rr := httptest.NewRecorder()
	w.ServeHTTP(rr, signedRequest(t, body))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if len(d.messages)+len(d.reactions) != 0 {
		t.Error("unsupported events must not dispatch")
	}
}

func TestWebhook_NonStringChallengeIsMalformed(t *testing.T) {
	w, _ := newTestWebhook()
	rr := httptest.NewRecorder()
	body := `{"type":"url_verification","challenge":12345}`
	w.ServeHTTP(rr, httptest.NewRequest("POST", "/slack/events", bytes.NewBufferString(body)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}
