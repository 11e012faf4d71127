// Package collect drives a collection cycle over all enabled sources and
// persists what the runs produce.
package collect

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"reddot-watch/collector/internal/database"
	"reddot-watch/collector/internal/enrich"
	"reddot-watch/collector/internal/models"
	"reddot-watch/collector/internal/notify"
	"reddot-watch/collector/internal/pipeline"
)

const defaultConcurrency = 4

// Selection narrows a cycle to a language or a single source. Zero values
// select everything.
type Selection struct {
	Language   string
	SourceName string
}

func (s Selection) matches(src models.Source) bool {
	if s.SourceName != "" && src.Name != s.SourceName {
		return false
	}
	if s.Language != "" && !strings.EqualFold(src.Language, s.Language) {
		return false
	}
	return true
}

// Report summarizes one cycle.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []models.RunOutcome
	NewItems  []models.Item
	// NotifyErr is set when the digest could not be delivered.
	NotifyErr error
}

// Failed counts runs that ended in the failed status.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == models.RunStatusFailed {
			n++
		}
	}
	return n
}

// knownItems answers whether an item is already stored under any source.
// It is satisfied by *database.DB.
type knownItems interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	ExistsByTitle(ctx context.Context, title, sourceName string) (bool, error)
}

// Collector runs sources concurrently. Each run is independent: a failing
// source never stops the others.
type Collector struct {
	db          *database.DB
	known       knownItems
	pipeline    *pipeline.Pipeline
	enricher    *enrich.Enricher
	notifier    notify.Notifier
	concurrency int

	stored     atomic.Int64
	duplicates atomic.Int64
}

// New creates a Collector using an existing database connection. A nil
// enricher stores items as normalized and a nil notifier disables digests.
func New(db *database.DB, p *pipeline.Pipeline, enricher *enrich.Enricher, notifier notify.Notifier, concurrency int) (*Collector, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database connection is not valid: %w", err)
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Collector{
		db:          db,
		known:       db,
		pipeline:    p,
		enricher:    enricher,
		notifier:    notifier,
		concurrency: concurrency,
	}, nil
}

// Stats returns the items stored and the duplicates skipped at write time
// since the collector was created.
func (c *Collector) Stats() (stored, duplicates int64) {
	return c.stored.Load(), c.duplicates.Load()
}

// RunCycle runs every enabled source matching sel. It returns an error only
// when the source list cannot be read or the context ends.
func (c *Collector) RunCycle(ctx context.Context, sel Selection) (Report, error) {
	report := Report{StartedAt: time.Now().UTC()}

	all, err := c.db.ListSources(ctx, true)
	if err != nil {
		return report, fmt.Errorf("failed to list sources: %w", err)
	}
	var sources []models.Source
	for _, src := range all {
		if sel.matches(src) {
			sources = append(sources, src)
		}
	}
	if sel.SourceName != "" && len(sources) == 0 {
		return report, fmt.Errorf("source %q not found or disabled", sel.SourceName)
	}

	log.Info().
		Int("sources", len(sources)).
		Int("concurrency", c.concurrency).
		Str("language", sel.Language).
		Msg("Starting collection cycle")

	results := make([]runResult, len(sources))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := range sources {
		src := sources[i]
		g.Go(func() error {
			results[i] = c.runSource(ctx, &src)
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		report.Outcomes = append(report.Outcomes, r.outcome)
		report.NewItems = append(report.NewItems, r.stored...)
	}
	report.Duration = time.Since(report.StartedAt)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if len(report.NewItems) > 0 && c.notifier != nil {
		title := fmt.Sprintf("%d new items collected", len(report.NewItems))
		if err := c.notifier.Notify(ctx, title, report.NewItems); err != nil {
			log.Error().Err(err).Msg("Failed to send notification")
			report.NotifyErr = err
		}
	}

	log.Info().
		Int("runs", len(report.Outcomes)).
		Int("failed", report.Failed()).
		Int("new_items", len(report.NewItems)).
		Dur("duration", report.Duration).
		Msg("Collection cycle finished")
	return report, nil
}

type runResult struct {
	outcome models.RunOutcome
	stored  []models.Item
}

func (c *Collector) runSource(ctx context.Context, src *models.Source) runResult {
	res := c.pipeline.Run(ctx, src)
	outcome := res.Outcome
	logger := log.With().Str("source", src.Name).Str("run_id", outcome.ID).Logger()

	var stored []models.Item
	if outcome.Status != models.RunStatusFailed {
		fresh := c.dropKnown(ctx, res.Items, logger)
		for i := range fresh {
			if c.enricher != nil {
				fresh[i] = c.enricher.Enrich(ctx, fresh[i])
			}
		}

		var err error
		stored, err = c.db.InsertItems(ctx, fresh)
		if err != nil {
			logger.Error().Err(err).Int("items", len(fresh)).Msg("Failed to store items")
			outcome = outcome.WithError(fmt.Sprintf("store: %v", err))
			stored = nil
		}
		c.stored.Add(int64(len(stored)))
		c.duplicates.Add(int64(len(fresh) - len(stored)))
		outcome = outcome.WithNew(len(stored))
	}

	// Bookkeeping must survive cancellation of the cycle.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.db.AppendRunOutcome(bookCtx, outcome); err != nil {
		logger.Error().Err(err).Msg("Failed to record run outcome")
	}
	failed := outcome.Status == models.RunStatusFailed
	if err := c.db.RecordCollection(bookCtx, src.ID, outcome.StartedAt, failed); err != nil {
		logger.Error().Err(err).Msg("Failed to update source counters")
	}

	logger.Info().
		Int("found", outcome.ItemsFound).
		Int("after_filter", outcome.ItemsAfterFilter).
		Int("new", outcome.ItemsNew).
		Str("status", string(outcome.Status)).
		Msg("Source collected")
	return runResult{outcome: outcome, stored: stored}
}

// dropKnown removes items whose URL or title is already stored under any
// source. A failed lookup counts as no duplicate known: the item is kept and
// the run status is untouched.
func (c *Collector) dropKnown(ctx context.Context, items []models.Item, logger zerolog.Logger) []models.Item {
	fresh := make([]models.Item, 0, len(items))
	for _, item := range items {
		exists, err := c.known.ExistsByURL(ctx, item.URL)
		if err == nil && !exists {
			exists, err = c.known.ExistsByTitle(ctx, item.Title, "")
		}
		if err != nil {
			logger.Warn().Err(err).Str("url", item.URL).Msg("Duplicate check failed, keeping item")
			fresh = append(fresh, item)
			continue
		}
		if exists {
			logger.Debug().Str("url", item.URL).Msg("Item already stored")
			c.duplicates.Add(1)
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}

// Purge deletes items older than retentionDays.
func (c *Collector) Purge(ctx context.Context, retentionDays int) (int64, error) {
	return c.db.PurgeOldItems(ctx, retentionDays)
}
