package domain

import "context"

// Publisher posts into Slack conversations.
type Publisher interface {
	PostReply(ctx context.Context, channel, threadTS, text string) error
	AddReaction(ctx context.Context, channel, ts, name string) error
	MessageText(ctx context.Context, channel, ts string) (string, error)
}

// FeedbackStore persists feedback records. There is no read path.
type FeedbackStore interface {
	Record(ctx context.Context, rec FeedbackRecord) error
}
