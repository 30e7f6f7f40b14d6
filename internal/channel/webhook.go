package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"metasolver/internal/domain"
	"metasolver/internal/logctx"
	"metasolver/internal/metrics"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const maxBodyBytes = 1 << 20

// Dispatcher handles Slack events once they have been verified and decoded.
type Dispatcher interface {
	HandleMessage(ctx context.Context, ev domain.MessageEvent) domain.Outcome
	HandleReaction(ctx context.Context, ev domain.ReactionEvent) domain.Outcome
}

// WebhookConfig configures the Slack Events API receiver.
type WebhookConfig struct {
	SigningSecret string
	Dispatcher    Dispatcher
	Logger        *slog.Logger
}

// Webhook receives Slack Events API callbacks. It answers the URL
// verification handshake, verifies request signatures and dispatches message
// and reaction events synchronously before acknowledging.
type Webhook struct {
	secret     string
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewWebhook creates a new Events API receiver.
func NewWebhook(cfg WebhookConfig) *Webhook {
	return &Webhook{
		secret:     cfg.SigningSecret,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
	}
}

// handshake is the subset of the envelope needed before signature checks.
type handshake struct {
	Type      string  `json:"type"`
	Challenge *string `json:"challenge"`
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	log := w.logger.With("request_id", uuid.NewString())
	if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
		log = log.With("retry_num", retry, "retry_reason", r.Header.Get("X-Slack-Retry-Reason"))
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var hs handshake
	if err := json.Unmarshal(body, &hs); err != nil {
		log.Warn("rejecting malformed event body", "err", err, "body_len", len(body))
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if hs.Challenge != nil {
		log.Info("responding to URL verification challenge")
		rw.Header().Set("Content-Type", "text/plain")
		rw.WriteHeader(http.StatusOK)
		io.WriteString(rw, *hs.Challenge)
		return
	}

	if err := w.verify(r.Header, body); err != nil {
		log.Warn("invalid Slack signature", "err", err)
		http.Error(rw, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		// Valid JSON of a kind this bot does not subscribe to.
		log.Warn("ignoring unsupported event", "type", hs.Type, "err", err)
		rw.WriteHeader(http.StatusOK)
		return
	}

	if event.Type == slackevents.CallbackEvent {
		// Slack hangs up after three seconds; the handler chain must still finish.
		ctx := logctx.With(context.WithoutCancel(r.Context()), log)
		w.dispatch(ctx, log, event)
	}

	rw.WriteHeader(http.StatusOK)
}

func (w *Webhook) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, w.secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func (w *Webhook) dispatch(ctx context.Context, log *slog.Logger, event slackevents.EventsAPIEvent) {
	metrics.InFlightEvents.Inc()
	defer metrics.InFlightEvents.Dec()

	start := time.Now()
	var outcome domain.Outcome

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		log.Info("slack message received",
			"user", ev.User,
			"channel", ev.Channel,
			"subtype", ev.SubType,
			"content_len", len(ev.Text),
		)
		outcome = w.dispatcher.HandleMessage(ctx, domain.MessageEvent{
			Channel:  ev.Channel,
			ThreadTS: ev.ThreadTimeStamp,
			TS:       ev.TimeStamp,
			User:     ev.User,
			BotID:    ev.BotID,
			Text:     ev.Text,
			SubType:  ev.SubType,
		})

	case *slackevents.ReactionAddedEvent:
		log.Info("slack reaction received",
			"user", ev.User,
			"reaction", ev.Reaction,
			"channel", ev.Item.Channel,
		)
		outcome = w.dispatcher.HandleReaction(ctx, domain.ReactionEvent{
			User:     ev.User,
			Reaction: ev.Reaction,
			Channel:  ev.Item.Channel,
			ItemTS:   ev.Item.Timestamp,
			ItemType: ev.Item.Type,
		})

	default:
		log.Debug("ignoring callback event", "type", event.InnerEvent.Type)
		return
	}

	log.Info("event handled", "outcome", outcome, "duration_ms", time.Since(start).Milliseconds())
}
