package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"reddot-watch/collector/internal/models"
)

// TagSuggester proposes tags for an item. Errors are treated as no tags.
type TagSuggester interface {
	SuggestTags(ctx context.Context, item models.Item, limit int) ([]string, error)
}

// KeywordTagger assigns a tag when any of its keywords occurs in the title
// or content. Matching is case-insensitive.
type KeywordTagger struct {
	mu    sync.RWMutex
	rules map[string][]string
}

// NewKeywordTagger creates a tagger with a copy of rules (tag -> keywords).
func NewKeywordTagger(rules map[string][]string) *KeywordTagger {
	t := &KeywordTagger{rules: make(map[string][]string, len(rules))}
	for tag, keywords := range rules {
		t.AddRule(tag, keywords)
	}
	return t
}

// InferTags returns the matching tags in sorted order.
func (t *KeywordTagger) InferTags(title, content string) []string {
	text := strings.ToLower(title + " " + content)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var tags []string
	for tag, keywords := range t.rules {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}

func (t *KeywordTagger) SuggestTags(_ context.Context, item models.Item, limit int) ([]string, error) {
	tags := t.InferTags(item.Title, item.Content)
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

// AddRule adds or replaces the keywords for tag.
func (t *KeywordTagger) AddRule(tag string, keywords []string) {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules[tag] = lowered
}

// RemoveRule deletes the rule for tag.
func (t *KeywordTagger) RemoveRule(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rules, tag)
}

// GetRules returns a copy of the rules.
func (t *KeywordTagger) GetRules() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]string, len(t.rules))
	for tag, keywords := range t.rules {
		out[tag] = append([]string(nil), keywords...)
	}
	return out
}

// OllamaTagger asks a local model for tags.
type OllamaTagger struct {
	client *OllamaClient
}

func NewOllamaTagger(client *OllamaClient) *OllamaTagger {
	return &OllamaTagger{client: client}
}

func (t *OllamaTagger) SuggestTags(ctx context.Context, item models.Item, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	prompt := fmt.Sprintf("Generate up to %d short, relevant tags for the following article. "+
		"Return only the tags separated by commas.\n\n%s", limit, promptContent(item))
	out, err := t.client.Generate(ctx, "You are a content categorization expert.", prompt)
	if err != nil {
		return nil, err
	}
	tags := ParseTags(out)
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

var tagSeparators = strings.NewReplacer(";", ",", "\n", ",", "|", ",")

// ParseTags splits free-form model output on commas, semicolons, newlines and
// pipes. Tags are lower-cased and kept only when 2 to 29 characters long.
func ParseTags(text string) []string {
	seen := map[string]struct{}{}
	var tags []string
	for _, tag := range strings.Split(tagSeparators.Replace(text), ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		n := len([]rune(tag))
		if n < 2 || n >= 30 {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// FallbackTags derives tags from the item itself when no suggester answered.
func FallbackTags(item models.Item) []string {
	var tags []string
	if item.Language != "" && item.Language != "unknown" {
		tags = append(tags, item.Language)
	}
	if slug := strings.ToLower(strings.Join(strings.Fields(item.SourceName), "-")); slug != "" {
		tags = append(tags, slug)
	}
	return tags
}
