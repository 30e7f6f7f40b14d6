package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"
)

const slackMaxMsgLen = 4000

// Slack wraps the Slack Web API calls the bot makes: posting thread replies,
// adding reactions and reading back a message. It implements domain.Publisher.
type Slack struct {
	client *slack.Client
	logger *slog.Logger
	botUID string // the bot's own user ID, to avoid replying to self
}

// SlackConfig configures the Slack Web API client.
type SlackConfig struct {
	BotToken   string
	APIURL     string // optional, must end with "/"
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewSlack creates a long-lived Slack API handle.
func NewSlack(cfg SlackConfig) *Slack {
	var opts []slack.Option
	if cfg.APIURL != "" {
		apiURL := cfg.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}
	return &Slack{
		client: slack.New(cfg.BotToken, opts...),
		logger: cfg.Logger,
	}
}

// Connect verifies the token and resolves the bot's own user ID.
func (s *Slack) Connect(ctx context.Context) (string, error) {
	authResp, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot authenticated", "user", authResp.User, "user_id", authResp.UserID, "team", authResp.Team)
	return authResp.UserID, nil
}

// BotUserID returns the ID resolved by Connect.
func (s *Slack) BotUserID() string { return s.botUID }

// PostReply posts text into the thread rooted at threadTS, split into chunks
// Slack accepts.
func (s *Slack) PostReply(ctx context.Context, channelID, threadTS, text string) error {
	for _, chunk := range splitMessage(text, slackMaxMsgLen) {
		_, _, err := s.client.PostMessageContext(ctx, channelID,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionTS(threadTS),
		)
		if err != nil {
			return fmt.Errorf("slack post: %w", err)
		}
	}
	return nil
}

// AddReaction attaches an emoji to a message. An existing identical reaction is not an error.
func (s *Slack) AddReaction(ctx context.Context, channelID, ts, name string) error {
	err := s.client.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, ts))
	var apiErr slack.SlackErrorResponse
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr) && apiErr.Err == "already_reacted":
		return nil
	case errors.As(err, &apiErr) && apiErr.Err == "missing_scope":
		return fmt.Errorf("slack reaction: %w (the bot token needs the reactions:write scope)", err)
	default:
		return fmt.Errorf("slack reaction: %w", err)
	}
}

// MessageText fetches the text of a single message, looking in the channel
// history first and in thread replies second.
func (s *Slack) MessageText(ctx context.Context, channelID, ts string) (string, error) {
	hist, err := s.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    ts,
		Oldest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return "", fmt.Errorf("slack history: %w", err)
	}
	for _, m := range hist.Messages {
		if m.Timestamp == ts {
			return m.Text, nil
		}
	}

	replies, _, _, err := s.client.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: ts,
		Latest:    ts,
		Oldest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return "", fmt.Errorf("slack replies: %w", err)
	}
	for _, m := range replies {
		if m.Timestamp == ts {
			return m.Text, nil
		}
	}
	return "", fmt.Errorf("message %s not found in %s", ts, channelID)
}

// splitMessage breaks msg into chunks of at most maxLen bytes, preferring
// newline boundaries and never cutting a UTF-8 sequence.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		if idx := strings.LastIndex(msg[:cut], "\n"); idx > cut/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
