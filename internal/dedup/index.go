// Package dedup rejects raw items already collected from the same source
// within a recent window, before normalization work is spent on them.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/models"
	"reddot-watch/collector/internal/normalize"
)

const (
	DefaultURLWindow   = 24 * time.Hour
	DefaultTitleWindow = 48 * time.Hour
)

// Verdict is the outcome of a duplicate check.
type Verdict int

const (
	Unique Verdict = iota
	DuplicateURL
	DuplicateTitle
)

func (v Verdict) String() string {
	switch v {
	case DuplicateURL:
		return "duplicate_url"
	case DuplicateTitle:
		return "duplicate_title"
	default:
		return "unique"
	}
}

// Lookup reads recent history. It is satisfied by *database.DB.
type Lookup interface {
	FindRecentURLs(ctx context.Context, sourceName string, since time.Time) ([]string, error)
	FindRecentTitles(ctx context.Context, sourceName string, since time.Time) ([]string, error)
}

// Windows are the lookback intervals for URL and title matches.
type Windows struct {
	URL   time.Duration
	Title time.Duration
}

// DefaultWindows returns the 24h URL window and the 48h title window.
func DefaultWindows() Windows {
	return Windows{URL: DefaultURLWindow, Title: DefaultTitleWindow}
}

// Index builds per-run snapshots of recent history. It holds no mutable
// state and is safe for concurrent use.
type Index struct {
	lookup  Lookup
	windows Windows
	now     func() time.Time
}

// NewIndex creates an Index. Non-positive windows fall back to the defaults.
func NewIndex(lookup Lookup, windows Windows) *Index {
	d := DefaultWindows()
	if windows.URL <= 0 {
		windows.URL = d.URL
	}
	if windows.Title <= 0 {
		windows.Title = d.Title
	}
	return &Index{lookup: lookup, windows: windows, now: time.Now}
}

// Snapshot holds the known URLs and normalized titles for one source.
// It belongs to a single run and is not safe for concurrent use.
type Snapshot struct {
	urls   map[string]struct{}
	titles map[string]struct{}
	// Degraded is set when history could not be read; the snapshot then
	// knows no duplicates.
	Degraded bool
}

// Snapshot loads recent history for src. It never fails: lookup errors are
// logged and produce an empty snapshot.
func (i *Index) Snapshot(ctx context.Context, src *models.Source) *Snapshot {
	s := &Snapshot{urls: map[string]struct{}{}, titles: map[string]struct{}{}}
	if i == nil || i.lookup == nil {
		return s
	}
	now := i.now().UTC()
	logger := log.With().Str("source", src.Name).Logger()

	urls, err := i.lookup.FindRecentURLs(ctx, src.Name, now.Add(-i.windows.URL))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load recent URLs, assuming none")
		s.Degraded = true
	}
	for _, u := range urls {
		s.urls[strings.TrimSpace(u)] = struct{}{}
	}

	titles, err := i.lookup.FindRecentTitles(ctx, src.Name, now.Add(-i.windows.Title))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load recent titles, assuming none")
		s.Degraded = true
	}
	for _, t := range titles {
		s.titles[models.TitleKey(t)] = struct{}{}
	}
	return s
}

// Check compares raw against the snapshot. The URL check runs first.
func (s *Snapshot) Check(raw models.RawItem) Verdict {
	if _, ok := s.urls[strings.TrimSpace(raw.Link)]; ok {
		return DuplicateURL
	}
	if key := titleKey(raw); key != "" {
		if _, ok := s.titles[key]; ok {
			return DuplicateTitle
		}
	}
	return Unique
}

// Remember adds raw to the snapshot so later entries of the same run that
// repeat it are caught too.
func (s *Snapshot) Remember(raw models.RawItem) {
	s.urls[strings.TrimSpace(raw.Link)] = struct{}{}
	if key := titleKey(raw); key != "" {
		s.titles[key] = struct{}{}
	}
}

// titleKey derives the key the stored item will carry, so raw titles match
// history regardless of markup, entities or boilerplate.
func titleKey(raw models.RawItem) string {
	return models.TitleKey(normalize.CleanTitle(raw.Title))
}

