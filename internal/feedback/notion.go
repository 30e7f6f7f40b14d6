// Package feedback writes positive-feedback records to a Notion database.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"metasolver/internal/domain"
)

// Notion rejects rich text items longer than this many characters.
const notionTextLimit = 2000

// Notion implements domain.FeedbackStore with the Notion page-creation endpoint.
// Every call creates a new page; there is no idempotency key.
type Notion struct {
	token      string
	databaseID string
	apiBase    string
	version    string
	client     *http.Client
	logger     *slog.Logger
}

type NotionConfig struct {
	Token      string
	DatabaseID string
	APIBase    string
	Version    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewNotion(cfg NotionConfig) *Notion {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.notion.com/v1"
	}
	if cfg.Version == "" {
		cfg.Version = "2022-06-28"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Notion{
		token:      cfg.Token,
		databaseID: cfg.DatabaseID,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		version:    cfg.Version,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

type pageRequest struct {
	Parent     pageParent          `json:"parent"`
	Properties map[string]property `json:"properties"`
}

type pageParent struct {
	DatabaseID string `json:"database_id"`
}

type property struct {
	Title    []richText `json:"title,omitempty"`
	RichText []richText `json:"rich_text,omitempty"`
	Select   *selectOpt `json:"select,omitempty"`
}

type richText struct {
	Text textContent `json:"text"`
}

type textContent struct {
	Content string `json:"content"`
}

type selectOpt struct {
	Name string `json:"name"`
}

func text(s string) []richText {
	if r := []rune(s); len(r) > notionTextLimit {
		s = string(r[:notionTextLimit])
	}
	return []richText{{Text: textContent{Content: s}}}
}

// Record creates one page with the Author, Message and Category properties.
func (n *Notion) Record(ctx context.Context, rec domain.FeedbackRecord) error {
	body := pageRequest{
		Parent: pageParent{DatabaseID: n.databaseID},
		Properties: map[string]property{
			"Author":   {Title: text(rec.Author)},
			"Message":  {RichText: text(rec.Message)},
			"Category": {Select: &selectOpt{Name: rec.Category}},
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.apiBase+"/pages", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Notion-Version", n.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notion %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var page struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		n.logger.Debug("notion page id unreadable", "err", err)
	}
	n.logger.Info("feedback recorded", "page_id", page.ID, "category", rec.Category, "author", rec.Author)
	return nil
}
