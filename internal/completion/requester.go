// Package completion turns a support question into a single chat-completion
// call and extracts the reply text.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"metasolver/internal/domain"
	"metasolver/internal/metrics"
	"metasolver/internal/prompt"
)

// ErrEmptyCompletion is returned when the provider answers without a usable candidate.
var ErrEmptyCompletion = errors.New("the model returned no answer")

type RequesterConfig struct {
	Provider    domain.Provider
	Catalog     *prompt.Catalog
	Model       string
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// Requester issues at most one completion call per question. It never retries.
type Requester struct {
	provider    domain.Provider
	catalog     *prompt.Catalog
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

func NewRequester(cfg RequesterConfig) *Requester {
	return &Requester{
		provider:    cfg.Provider,
		catalog:     cfg.Catalog,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Answer returns the trimmed text of the first candidate for question.
func (r *Requester) Answer(ctx context.Context, question string) (string, error) {
	msgs, err := r.catalog.Messages(question)
	if err != nil {
		return "", err
	}

	metrics.CompletionRequests.Inc()
	start := time.Now()
	resp, err := r.provider.Chat(ctx, domain.ChatRequest{
		Messages:    msgs,
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CompletionFailures.Inc()
		return "", fmt.Errorf("%s: %w", r.provider.Name(), err)
	}

	answer := strings.TrimSpace(resp.Content)
	if resp.Candidates == 0 || answer == "" {
		metrics.CompletionFailures.Inc()
		return "", ErrEmptyCompletion
	}

	r.logger.Info("completion received",
		"provider", r.provider.Name(),
		"answer_len", len(answer),
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return answer, nil
}
