// Package intent decides whether a support message is a thank-you or a
// question that needs an answer.
package intent

import (
	"log/slog"
	"strings"
)

// Intent is the branch a message is routed to.
type Intent string

const (
	None      Intent = "none" // blank text, nothing to do
	Gratitude Intent = "gratitude"
	Question  Intent = "question"
)

// Router classifies messages by case-insensitive substring match against a
// fixed gratitude vocabulary. There is no tokenization or negation handling.
type Router struct {
	tokens []string // pre-computed lowercase tokens
	logger *slog.Logger
}

func NewRouter(gratitude []string, logger *slog.Logger) *Router {
	tokens := make([]string, 0, len(gratitude))
	for _, tok := range gratitude {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return &Router{tokens: tokens, logger: logger}
}

// Classify returns the intent for text.
func (r *Router) Classify(text string) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return None
	}
	for _, tok := range r.tokens {
		if strings.Contains(lower, tok) {
			r.logger.Debug("gratitude token matched", "token", tok)
			return Gratitude
		}
	}
	return Question
}
