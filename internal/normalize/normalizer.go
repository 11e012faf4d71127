// Package normalize converts raw adapter output into canonical items.
package normalize

import (
	"strings"
	"sync"
	"time"

	"reddot-watch/collector/internal/models"
)

// Normalizer produces canonical items. Every step is total: a field that
// cannot be derived falls back to a default instead of failing.
type Normalizer struct {
	detector Detector
	loc      *time.Location
}

// New creates a Normalizer. A nil detector disables detection and a nil
// location means UTC.
func New(detector Detector, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{detector: detector, loc: loc}
}

// Normalize builds the canonical item for raw. collectedAt should come from
// a RunClock so that items of one run never go back in time.
func (n *Normalizer) Normalize(raw models.RawItem, src *models.Source, collectedAt time.Time) models.Item {
	title := CleanTitle(raw.Title)
	content := CleanText(raw.Content)
	if content == "" {
		content = CleanText(raw.Summary)
	}

	item := models.Item{
		Title:       title,
		URL:         strings.TrimSpace(raw.Link),
		Content:     content,
		Author:      CleanText(raw.Author),
		SourceName:  src.Name,
		CollectedAt: collectedAt.UTC(),
		Tags:        append(models.StringList{}, src.Tags...),
		Metadata:    copyMetadata(raw.Metadata),
	}
	if len(raw.Tags) > 0 {
		item.Metadata["categories"] = append([]string{}, raw.Tags...)
	}
	item.Language = detectLanguage(n.detector, title+" "+content, src.Language)

	if ts, ok := n.publishedAt(raw); ok {
		t := ts.Time
		item.PublishedAt = &t
		item.PublishedZoneKnown = ts.ZoneKnown
	}
	return item
}

// CleanTitle is the stored form of a raw title. When cleaning removes
// everything, the title is kept with its whitespace collapsed.
func CleanTitle(raw string) string {
	if title := CleanText(raw); title != "" {
		return title
	}
	return strings.Join(strings.Fields(raw), " ")
}

// publishedAt prefers the adapter's parsed time. A raw string without a zone
// overrides it so that the configured location applies and the zone is
// marked unknown.
func (n *Normalizer) publishedAt(raw models.RawItem) (Timestamp, bool) {
	ts, ok := ParseTimestamp(raw.Published, n.loc)
	if raw.PublishedParsed != nil && (!ok || ts.ZoneKnown) {
		return Timestamp{Time: raw.PublishedParsed.UTC(), ZoneKnown: true}, true
	}
	return ts, ok
}

func copyMetadata(md models.Metadata) models.Metadata {
	out := make(models.Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// RunClock hands out collection times that never decrease, even if the
// wall clock steps backwards during a run.
type RunClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewRunClock returns a clock backed by now, or time.Now when nil.
func NewRunClock(now func() time.Time) *RunClock {
	if now == nil {
		now = time.Now
	}
	return &RunClock{now: now}
}

// Now returns the current UTC time, or the previous value if the clock went back.
func (c *RunClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}
