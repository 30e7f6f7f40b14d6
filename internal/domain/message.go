package domain

// MessageEvent is a Slack message as delivered by the Events API.
// It is consumed once and never stored.
type MessageEvent struct {
	Channel  string
	ThreadTS string // root of the thread, empty for top-level messages
	TS       string
	User     string
	BotID    string
	Text     string
	SubType  string // non-empty for edits, joins, bot posts and other system messages
}

// ReplyThread returns the timestamp replies must be anchored to: the thread root
// when the message is inside a thread, otherwise the message itself.
func (e MessageEvent) ReplyThread() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// Key identifies the message within the workspace.
func (e MessageEvent) Key() string {
	return e.Channel + ":" + e.TS
}

// ReactionEvent is a reaction_added event on a message.
type ReactionEvent struct {
	User     string
	Reaction string
	Channel  string
	ItemTS   string
	ItemType string // "message", "file", ...
}

func (e ReactionEvent) Key() string {
	return e.Channel + ":" + e.ItemTS + ":" + e.Reaction + ":" + e.User
}

// FeedbackRecord is written to the external knowledge store.
type FeedbackRecord struct {
	Author   string
	Message  string
	Category string
	Channel  string
	TS       string
}

// Outcome describes what the responder did with an event.
type Outcome string

const (
	OutcomeIgnoredSubtype  Outcome = "ignored_subtype"
	OutcomeIgnoredBot      Outcome = "ignored_bot"
	OutcomeIgnoredEmpty    Outcome = "ignored_empty"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeGratitude       Outcome = "gratitude"
	OutcomeAnswered        Outcome = "answered"
	OutcomeErrorNotice     Outcome = "error_notice"
	OutcomeValidated       Outcome = "validated"
	OutcomeIgnoredReaction Outcome = "ignored_reaction"
)
