package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/collect"
	"reddot-watch/collector/internal/config"
	"reddot-watch/collector/internal/database"
	"reddot-watch/collector/internal/dedup"
	"reddot-watch/collector/internal/enrich"
	"reddot-watch/collector/internal/fetch"
	"reddot-watch/collector/internal/filter"
	"reddot-watch/collector/internal/normalize"
	"reddot-watch/collector/internal/notify"
	"reddot-watch/collector/internal/pipeline"
	"reddot-watch/collector/internal/source"
)

// newCollector wires the collection stack from configuration.
func newCollector(cfg *config.Config, db *database.DB) (*collect.Collector, error) {
	perf := cfg.Performance
	limiter := fetch.NewHostLimiter(perf.RateLimiting.RequestsPerMinute, perf.RateLimiting.BurstLimit)
	fetchOpts := fetch.Options{
		Timeout:   perf.RequestTimeoutDuration(),
		Attempts:  perf.RetryAttempts,
		Delay:     perf.RetryDelayDuration(),
		UserAgent: perf.UserAgent,
	}
	newFetcher := func() pipeline.Fetcher { return fetch.New(fetchOpts, limiter) }

	index := dedup.NewIndex(db, dedup.Windows{
		URL:   time.Duration(cfg.Deduplication.URLWindowHours) * time.Hour,
		Title: time.Duration(cfg.Deduplication.TitleWindowHours) * time.Hour,
	})

	p := pipeline.New(
		source.DefaultRegistry(),
		newFetcher,
		index,
		normalize.New(normalize.WhatlangDetector{}, cfg.Location()),
		filter.Options{
			MinContentLength: cfg.Filtering.MinContentLength,
			MaxAgeDays:       cfg.Filtering.MaxAgeDays,
			BlockedDomains:   cfg.Filtering.BlockedDomains,
			RequiredKeywords: cfg.Filtering.RequiredKeywords,
		},
	)

	return collect.New(db, p, newEnricher(cfg), newNotifier(cfg), perf.MaxConcurrentRequests)
}

func newEnricher(cfg *config.Config) *enrich.Enricher {
	var summarizer enrich.Summarizer
	var suggesters []enrich.TagSuggester

	if len(cfg.Tagging.Rules) > 0 {
		suggesters = append(suggesters, enrich.NewKeywordTagger(cfg.Tagging.Rules))
	}

	if cfg.Summarizer.Endpoint != "" {
		client := enrich.NewOllamaClient(cfg.Summarizer.Endpoint, cfg.Summarizer.Model,
			time.Duration(cfg.Summarizer.Timeout)*time.Second)
		summarizer = enrich.NewOllamaSummarizer(client)
		if cfg.Tagging.UseLLM {
			suggesters = append(suggesters, enrich.NewOllamaTagger(client))
		}
		log.Info().Str("endpoint", cfg.Summarizer.Endpoint).Msg("Summarizer enabled")
	} else {
		log.Info().Msg("No summarizer endpoint configured, using fallback summaries")
	}

	return enrich.NewEnricher(summarizer, cfg.Summarizer.MaxSummaryChars, cfg.Tagging.MaxTags, suggesters...)
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notifier.WebhookURL == "" {
		return notify.LogNotifier{}
	}
	return notify.NewWebhookNotifier(cfg.Notifier.WebhookURL, cfg.Notifier.Channel, cfg.Notifier.MaxItems)
}

// syncConfiguredSources upserts the sources declared in the configuration file.
func syncConfiguredSources(ctx context.Context, db *database.DB, cfg *config.Config) error {
	if len(cfg.Sources) == 0 {
		return nil
	}
	if err := db.SyncSources(ctx, cfg.SourceModels()); err != nil {
		return fmt.Errorf("failed to sync configured sources: %w", err)
	}
	log.Info().Int("count", len(cfg.Sources)).Msg("Configured sources synchronized")
	return nil
}
