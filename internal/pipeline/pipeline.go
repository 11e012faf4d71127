// Package pipeline runs one source through fetch, parse, dedup, normalize
// and filter. It buffers results in memory and never writes items itself.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/dedup"
	"reddot-watch/collector/internal/filter"
	"reddot-watch/collector/internal/models"
	"reddot-watch/collector/internal/normalize"
	"reddot-watch/collector/internal/source"
)

// Fetcher retrieves a payload. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFactory returns the fetcher for a single run. Each run gets its own
// so that no network session is shared between concurrent runs.
type FetcherFactory func() Fetcher

// Stats counts what happened to the entries of a run.
type Stats struct {
	Skipped         int
	DuplicateURLs   int
	DuplicateTitles int
	Rejected        map[filter.Reason]int
	// HistoryDegraded is set when recent history could not be read and the
	// duplicate check ran against an empty snapshot.
	HistoryDegraded bool
}

// Result is everything a run produced.
type Result struct {
	Outcome models.RunOutcome
	Items   []models.Item
	Stats   Stats
	States  []State
}

// State returns the terminal state of the run.
func (r Result) State() State {
	if len(r.States) == 0 {
		return StatePending
	}
	return r.States[len(r.States)-1]
}

// Pipeline is safe for concurrent use; every Run keeps its own state.
type Pipeline struct {
	registry   *source.Registry
	newFetcher FetcherFactory
	index      *dedup.Index
	normalizer *normalize.Normalizer
	filter     filter.Options
	now        func() time.Time
}

// New creates a Pipeline. A nil index disables history-based duplicate checks.
func New(registry *source.Registry, newFetcher FetcherFactory, index *dedup.Index, normalizer *normalize.Normalizer, opts filter.Options) *Pipeline {
	if normalizer == nil {
		normalizer = normalize.New(nil, time.UTC)
	}
	return &Pipeline{
		registry:   registry,
		newFetcher: newFetcher,
		index:      index,
		normalizer: normalizer,
		filter:     opts,
		now:        time.Now,
	}
}

// Run executes a single collection run for src. It never returns an error:
// failures are reported through the outcome status.
func (p *Pipeline) Run(ctx context.Context, src *models.Source) Result {
	started := p.now().UTC()
	outcome := models.RunOutcome{
		ID:         uuid.NewString(),
		SourceID:   src.ID,
		SourceName: src.Name,
		StartedAt:  started,
		Errors:     models.StringList{},
		Status:     models.RunStatusSuccess,
	}
	logger := log.With().Str("source", src.Name).Str("run_id", outcome.ID).Logger()
	sm := newStateMachine()
	stats := Stats{Rejected: map[filter.Reason]int{}}

	fail := func(err error) Result {
		if advErr := sm.advance(StateFailed); advErr != nil {
			logger.Error().Err(advErr).Msg("Run state machine violated")
		}
		outcome.Status = models.RunStatusFailed
		outcome.ItemsFound = 0
		outcome.ItemsAfterFilter = 0
		outcome.Errors = append(outcome.Errors, err.Error())
		outcome.DurationMS = p.now().UTC().Sub(started).Milliseconds()
		logger.Error().Err(err).Str("state", string(sm.history[len(sm.history)-2])).Msg("Run failed")
		return Result{Outcome: outcome, Stats: stats, States: sm.history}
	}

	p.mustAdvance(sm, StateFetching, logger)
	adapter, err := p.registry.Lookup(src.Kind)
	if err != nil {
		return fail(err)
	}

	fetcher := p.newFetcher()
	payload, err := fetcher.Fetch(ctx, src.URL)
	if c, ok := fetcher.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	if err != nil {
		return fail(fmt.Errorf("fetch: %w", err))
	}
	logger.Debug().Int("bytes", len(payload)).Msg("Payload fetched")

	p.mustAdvance(sm, StateParsing, logger)
	parsed, err := adapter.Parse(src, payload)
	if err != nil {
		return fail(err)
	}
	stats.Skipped = parsed.Skipped
	for _, w := range parsed.Warnings {
		logger.Warn().Str("warning", w).Msg("Payload parsed with warnings")
		outcome = outcome.WithError(w)
	}
	outcome.ItemsFound = len(parsed.Items)

	p.mustAdvance(sm, StateFiltering, logger)
	snapshot := p.index.Snapshot(ctx, src)
	stats.HistoryDegraded = snapshot.Degraded

	clock := normalize.NewRunClock(p.now)
	items := make([]models.Item, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		switch verdict := snapshot.Check(raw); verdict {
		case dedup.DuplicateURL:
			stats.DuplicateURLs++
			logger.Debug().Str("url", raw.Link).Msg("Skipping duplicate URL")
			continue
		case dedup.DuplicateTitle:
			stats.DuplicateTitles++
			logger.Debug().Str("title", raw.Title).Msg("Skipping duplicate title")
			continue
		}
		snapshot.Remember(raw)

		item := p.normalizer.Normalize(raw, src, clock.Now())
		if reason := filter.Check(item, p.filter, src.Config.FilterKeywords, clock.Now()); reason != filter.ReasonNone {
			stats.Rejected[reason]++
			logger.Debug().Str("url", item.URL).Str("reason", string(reason)).Msg("Item filtered out")
			continue
		}
		items = append(items, item)
	}
	outcome.ItemsAfterFilter = len(items)

	p.mustAdvance(sm, StateCompleted, logger)
	outcome.DurationMS = p.now().UTC().Sub(started).Milliseconds()

	logger.Info().
		Int("found", outcome.ItemsFound).
		Int("after_filter", outcome.ItemsAfterFilter).
		Int("duplicate_urls", stats.DuplicateURLs).
		Int("duplicate_titles", stats.DuplicateTitles).
		Str("status", string(outcome.Status)).
		Msg("Run completed")

	return Result{Outcome: outcome, Items: items, Stats: stats, States: sm.history}
}

func (p *Pipeline) mustAdvance(sm *stateMachine, next State, logger zerolog.Logger) {
	if err := sm.advance(next); err != nil {
		logger.Error().Err(err).Msg("Run state machine violated")
	}
}

