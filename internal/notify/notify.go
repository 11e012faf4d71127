// Package notify announces newly stored items. Delivery failures are
// reported to the caller and never affect what was stored.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/models"
)

const DefaultMaxItems = 5

// Notifier delivers a digest of new items.
type Notifier interface {
	Notify(ctx context.Context, title string, items []models.Item) error
}

// LogNotifier writes the digest to the log. It is used when no webhook is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, title string, items []models.Item) error {
	for _, item := range items {
		log.Info().
			Str("title", item.Title).
			Str("url", item.URL).
			Str("source", item.SourceName).
			Strs("tags", item.Tags).
			Msg(title)
	}
	return nil
}

// WebhookNotifier posts Slack-compatible block messages to an incoming webhook.
type WebhookNotifier struct {
	url      string
	channel  string
	maxItems int
	client   *http.Client
}

// NewWebhookNotifier creates a notifier for webhookURL. Channel may be empty.
func NewWebhookNotifier(webhookURL, channel string, maxItems int) *WebhookNotifier {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &WebhookNotifier{
		url:      webhookURL,
		channel:  channel,
		maxItems: maxItems,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type message struct {
	Channel string  `json:"channel,omitempty"`
	Text    string  `json:"text"`
	Blocks  []block `json:"blocks"`
}

type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Fields   []text `json:"fields,omitempty"`
	Elements []text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts at most maxItems items. An empty list sends nothing.
func (n *WebhookNotifier) Notify(ctx context.Context, title string, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > n.maxItems {
		items = items[:n.maxItems]
	}

	body, err := json.Marshal(n.buildMessage(title, items))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	log.Info().Int("items", len(items)).Str("channel", n.channel).Msg("Posted notification")
	return nil
}

func (n *WebhookNotifier) buildMessage(title string, items []models.Item) message {
	blocks := []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: title}},
		{Type: "divider"},
	}
	for _, item := range items {
		summary := item.Summary
		if summary == "" {
			summary = "No summary available"
		}
		section := block{
			Type: "section",
			Text: &text{Type: "mrkdwn", Text: fmt.Sprintf("*<%s|%s>*\n%s", item.URL, item.Title, summary)},
		}
		if meta := itemMeta(item); meta != "" {
			section.Fields = []text{{Type: "mrkdwn", Text: meta}}
		}
		blocks = append(blocks, section)

		if len(item.Tags) > 0 {
			tags := item.Tags
			if len(tags) > 5 {
				tags = tags[:5]
			}
			quoted := make([]string, len(tags))
			for i, t := range tags {
				quoted[i] = "`" + t + "`"
			}
			blocks = append(blocks, block{
				Type:     "context",
				Elements: []text{{Type: "mrkdwn", Text: strings.Join(quoted, " ")}},
			})
		}
		blocks = append(blocks, block{Type: "divider"})
	}
	return message{Channel: n.channel, Text: title, Blocks: blocks}
}

func itemMeta(item models.Item) string {
	var parts []string
	if item.SourceName != "" {
		parts = append(parts, item.SourceName)
	}
	if item.Language != "" {
		parts = append(parts, item.Language)
	}
	if item.PublishedAt != nil {
		parts = append(parts, item.PublishedAt.Format("2006-01-02"))
	}
	return strings.Join(parts, " | ")
}
