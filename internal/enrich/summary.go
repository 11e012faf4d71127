// Package enrich adds summaries and tags to items before they are stored.
// Enrichment never drops an item: every failure has a fallback.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"reddot-watch/collector/internal/models"
)

const (
	DefaultMaxSummaryChars = 300
	maxPromptContent       = 3000
)

// Summarizer produces a short summary of an item.
type Summarizer interface {
	Summarize(ctx context.Context, item models.Item) (string, error)
}

var errEmptySummary = errors.New("empty summary")

// OllamaSummarizer asks a local model for a two to three sentence summary.
type OllamaSummarizer struct {
	client *OllamaClient
}

func NewOllamaSummarizer(client *OllamaClient) *OllamaSummarizer {
	return &OllamaSummarizer{client: client}
}

func (s *OllamaSummarizer) Summarize(ctx context.Context, item models.Item) (string, error) {
	system, template := summaryPrompts(item.Language)
	out, err := s.client.Generate(ctx, system, fmt.Sprintf(template, promptContent(item)))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errEmptySummary
	}
	return out, nil
}

func summaryPrompts(language string) (system, template string) {
	if language == "japanese" {
		return "あなたは技術記事の編集者です。記事を簡潔で分かりやすく要約してください。",
			"以下の記事を2-3文で要約してください：\n\n%s"
	}
	return "You are a technology news editor. Write concise, clear summaries that highlight what matters.",
		"Summarize the following article in 2-3 sentences:\n\n%s"
}

func promptContent(item models.Item) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(item.Title)
	if item.Content != "" {
		b.WriteString("\n\n")
		b.WriteString(truncateRunes(item.Content, maxPromptContent))
	}
	if item.Author != "" {
		b.WriteString("\n\nAuthor: ")
		b.WriteString(item.Author)
	}
	if item.PublishedAt != nil {
		b.WriteString("\nPublished: ")
		b.WriteString(item.PublishedAt.Format("2006-01-02"))
	}
	return b.String()
}

// FallbackSummary returns the first three sentences of the content, cut to
// maxChars runes, or the title when there is no content.
func FallbackSummary(item models.Item, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxSummaryChars
	}
	parts := strings.SplitAfter(item.Content, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	summary := strings.Join(strings.Fields(strings.Join(parts, "")), " ")
	if summary == "" {
		return item.Title
	}
	if utf8.RuneCountInString(summary) > maxChars {
		summary = truncateRunes(summary, maxChars)
	}
	return summary
}

// truncateRunes cuts s to n runes, appending "..." when anything was removed.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}
