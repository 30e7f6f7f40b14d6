// Package responder turns verified Slack events into replies, reactions and
// feedback records.
package responder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"metasolver/internal/domain"
	"metasolver/internal/intent"
	"metasolver/internal/journal"
	"metasolver/internal/logctx"
	"metasolver/internal/metrics"
	"metasolver/internal/prompt"
)

// Answerer produces the answer text for a support question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Journal remembers handled events. Claim must be atomic: of several
// concurrent deliveries of one event, exactly one may win.
type Journal interface {
	Claim(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, e journal.Entry) error
}

// Config holds the responder's collaborators.
type Config struct {
	Publisher  domain.Publisher
	Feedback   domain.FeedbackStore // nil disables feedback capture
	Completion Answerer
	Router     *intent.Router
	Catalog    *prompt.Catalog
	Journal    Journal // optional
	Dedup      bool    // skip events whose key another delivery already claimed
	BotUserID  string
	Logger     *slog.Logger

	Category          string // feedback category for thank-you messages
	ValidatedCategory string // feedback category for validated answers
}

// Responder handles one event at a time; it keeps no per-conversation state.
type Responder struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Responder {
	if cfg.Category == "" {
		cfg.Category = "gratitude"
	}
	if cfg.ValidatedCategory == "" {
		cfg.ValidatedCategory = "validated"
	}
	return &Responder{cfg: cfg, logger: cfg.Logger}
}

// HandleMessage routes a message event to the gratitude or question branch.
func (r *Responder) HandleMessage(ctx context.Context, ev domain.MessageEvent) domain.Outcome {
	log := logctx.From(ctx, r.logger).With("channel", ev.Channel, "ts", ev.TS)

	outcome := r.handleMessage(ctx, log, ev)
	metrics.Events(string(outcome)).Inc()
	if recordable(outcome) {
		r.journal(ctx, log, journal.Entry{
			Key:     ev.Key(),
			Kind:    "message",
			Channel: ev.Channel,
			TS:      ev.TS,
			User:    ev.User,
			Outcome: string(outcome),
		})
	}
	return outcome
}

func (r *Responder) handleMessage(ctx context.Context, log *slog.Logger, ev domain.MessageEvent) domain.Outcome {
	if ev.SubType != "" {
		log.Debug("ignoring message subtype", "subtype", ev.SubType)
		return domain.OutcomeIgnoredSubtype
	}
	if ev.BotID != "" || (r.cfg.BotUserID != "" && ev.User == r.cfg.BotUserID) {
		log.Debug("ignoring bot message", "bot_id", ev.BotID, "user", ev.User)
		return domain.OutcomeIgnoredBot
	}

	kind := r.cfg.Router.Classify(ev.Text)
	if kind == intent.None {
		return domain.OutcomeIgnoredEmpty
	}
	if r.duplicate(ctx, log, ev.Key()) {
		log.Info("skipping already claimed message")
		return domain.OutcomeDuplicate
	}

	thread := ev.ReplyThread()
	if kind == intent.Gratitude {
		r.recordFeedback(ctx, log, domain.FeedbackRecord{
			Author:   ev.User,
			Message:  ev.Text,
			Category: r.cfg.Category,
			Channel:  ev.Channel,
			TS:       ev.TS,
		})
		r.reply(ctx, log, ev.Channel, thread, r.cfg.Catalog.GratitudeReply)
		return domain.OutcomeGratitude
	}

	if r.cfg.Catalog.AckReaction != "" {
		r.bestEffort(log, "reaction", metrics.ReactionFailures,
			r.cfg.Publisher.AddReaction(ctx, ev.Channel, ev.TS, r.cfg.Catalog.AckReaction))
	}

	start := time.Now()
	answer, err := r.cfg.Completion.Answer(ctx, strings.TrimSpace(ev.Text))
	if err != nil {
		log.Error("completion failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		r.reply(ctx, log, ev.Channel, thread, r.cfg.Catalog.ErrorNotice(err))
		return domain.OutcomeErrorNotice
	}
	r.reply(ctx, log, ev.Channel, thread, answer)
	return domain.OutcomeAnswered
}

// HandleReaction records a validated answer when a user marks a message with
// the validation reaction.
func (r *Responder) HandleReaction(ctx context.Context, ev domain.ReactionEvent) domain.Outcome {
	log := logctx.From(ctx, r.logger).With("channel", ev.Channel, "ts", ev.ItemTS, "reaction", ev.Reaction)

	outcome := r.handleReaction(ctx, log, ev)
	metrics.Events(string(outcome)).Inc()
	if recordable(outcome) {
		r.journal(ctx, log, journal.Entry{
			Key:     ev.Key(),
			Kind:    "reaction",
			Channel: ev.Channel,
			TS:      ev.ItemTS,
			User:    ev.User,
			Outcome: string(outcome),
		})
	}
	return outcome
}

func (r *Responder) handleReaction(ctx context.Context, log *slog.Logger, ev domain.ReactionEvent) domain.Outcome {
	if r.cfg.Feedback == nil || r.cfg.Catalog.ValidatedReaction == "" ||
		ev.Reaction != r.cfg.Catalog.ValidatedReaction || ev.ItemType != "message" {
		return domain.OutcomeIgnoredReaction
	}
	if r.cfg.BotUserID != "" && ev.User == r.cfg.BotUserID {
		return domain.OutcomeIgnoredBot
	}
	if r.duplicate(ctx, log, ev.Key()) {
		return domain.OutcomeDuplicate
	}

	text, err := r.cfg.Publisher.MessageText(ctx, ev.Channel, ev.ItemTS)
	if err != nil || text == "" {
		log.Warn("could not read validated message, storing its reference", "err", err)
		text = ev.Channel + ":" + ev.ItemTS
	}
	r.recordFeedback(ctx, log, domain.FeedbackRecord{
		Author:   ev.User,
		Message:  text,
		Category: r.cfg.ValidatedCategory,
		Channel:  ev.Channel,
		TS:       ev.ItemTS,
	})
	return domain.OutcomeValidated
}

func (r *Responder) recordFeedback(ctx context.Context, log *slog.Logger, rec domain.FeedbackRecord) {
	if r.cfg.Feedback == nil {
		return
	}
	err := r.cfg.Feedback.Record(ctx, rec)
	if err == nil {
		metrics.FeedbackWrites.Inc()
	}
	r.bestEffort(log, "feedback", metrics.FeedbackFailures, err)
}

func (r *Responder) reply(ctx context.Context, log *slog.Logger, channel, thread, text string) {
	err := r.cfg.Publisher.PostReply(ctx, channel, thread, text)
	if err == nil {
		metrics.RepliesPosted.Inc()
	}
	r.bestEffort(log, "reply", metrics.ReplyFailures, err)
}

// bestEffort logs a failed side call; the event keeps flowing.
func (r *Responder) bestEffort(log *slog.Logger, call string, failures *metrics.Counter, err error) {
	if err == nil {
		return
	}
	failures.Inc()
	log.Warn("best-effort call failed", "call", call, "err", err)
}

// duplicate claims key before any outbound call, so a redelivery that
// arrives while the first delivery is still running is caught too.
func (r *Responder) duplicate(ctx context.Context, log *slog.Logger, key string) bool {
	if !r.cfg.Dedup || r.cfg.Journal == nil {
		return false
	}
	claimed, err := r.cfg.Journal.Claim(ctx, key)
	if err != nil {
		log.Warn("journal claim failed", "err", err)
		return false
	}
	return !claimed
}

func (r *Responder) journal(ctx context.Context, log *slog.Logger, e journal.Entry) {
	if r.cfg.Journal == nil {
		return
	}
	if err := r.cfg.Journal.Record(ctx, e); err != nil {
		log.Warn("journal write failed", "key", e.Key, "err", err)
	}
}

func recordable(o domain.Outcome) bool {
	switch o {
	case domain.OutcomeGratitude, domain.OutcomeAnswered, domain.OutcomeErrorNotice, domain.OutcomeValidated:
		return true
	}
	return false
}
