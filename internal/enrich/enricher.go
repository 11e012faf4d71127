package enrich

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/models"
)

const DefaultMaxTags = 5

// Enricher fills in summaries and merges suggested tags into items.
type Enricher struct {
	summarizer      Summarizer
	suggesters      []TagSuggester
	maxSummaryChars int
	maxTags         int
}

// NewEnricher creates an Enricher. A nil summarizer always uses the fallback
// summary.
func NewEnricher(summarizer Summarizer, maxSummaryChars, maxTags int, suggesters ...TagSuggester) *Enricher {
	if maxSummaryChars <= 0 {
		maxSummaryChars = DefaultMaxSummaryChars
	}
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return &Enricher{
		summarizer:      summarizer,
		suggesters:      suggesters,
		maxSummaryChars: maxSummaryChars,
		maxTags:         maxTags,
	}
}

// Enrich returns item with Summary and Tags set. It does not fail.
func (e *Enricher) Enrich(ctx context.Context, item models.Item) models.Item {
	logger := log.With().Str("source", item.SourceName).Str("url", item.URL).Logger()

	if item.Summary == "" {
		item.Summary = e.summarize(ctx, item)
	}

	var suggested []string
	for _, s := range e.suggesters {
		tags, err := s.SuggestTags(ctx, item, e.maxTags)
		if err != nil {
			logger.Warn().Err(err).Msg("Tag suggestion failed")
			continue
		}
		suggested = append(suggested, tags...)
	}
	if len(suggested) == 0 && len(item.Tags) == 0 {
		suggested = FallbackTags(item)
	}
	item.Tags = MergeTags(item.Tags, suggested, e.maxTags)
	return item
}

func (e *Enricher) summarize(ctx context.Context, item models.Item) string {
	if e.summarizer == nil {
		return FallbackSummary(item, e.maxSummaryChars)
	}
	summary, err := e.summarizer.Summarize(ctx, item)
	if err != nil {
		log.Warn().Err(err).Str("url", item.URL).Msg("Summarizer failed, using fallback summary")
		return FallbackSummary(item, e.maxSummaryChars)
	}
	return truncateRunes(summary, e.maxSummaryChars)
}

// MergeTags unions existing and suggested tags. Existing tags win when the
// cap is reached; the result is sorted.
func MergeTags(existing, suggested []string, limit int) models.StringList {
	seen := map[string]struct{}{}
	out := models.StringList{}
	for _, list := range [][]string{existing, suggested} {
		for _, tag := range list {
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}
