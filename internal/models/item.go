package models

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// RawItem is an entry as extracted by an adapter, before normalization.
// It never leaves the run that produced it.
type RawItem struct {
	Title   string
	Link    string
	Content string
	Summary string
	Author  string

	// Published is the raw date string as found in the payload.
	Published string
	// PublishedParsed is set when the adapter already parsed the date.
	PublishedParsed *time.Time

	// Tags are the entry's own categories.
	Tags     []string
	Metadata Metadata
}

// Item represents a row in the 'items' table
type Item struct {
	ID                 int64      `db:"id" json:"id"`
	Title              string     `db:"title" json:"title"`
	URL                string     `db:"url" json:"url"`
	Content            string     `db:"content" json:"content"`
	Summary            string     `db:"summary" json:"summary"`
	Language           string     `db:"language" json:"language"`
	SourceName         string     `db:"source_name" json:"source_name"`
	Author             string     `db:"author" json:"author,omitempty"`
	PublishedAt        *time.Time `db:"published_at" json:"published_at,omitempty"`
	PublishedZoneKnown bool       `db:"published_zone_known" json:"published_zone_known"`
	CollectedAt        time.Time  `db:"collected_at" json:"collected_at"`
	Tags               StringList `db:"tags" json:"tags"`
	Metadata           Metadata   `db:"metadata" json:"metadata"`
}

// TitleKey returns the form of a title used for duplicate detection:
// NFC-normalized with surrounding whitespace removed.
func TitleKey(title string) string {
	return strings.TrimSpace(norm.NFC.String(title))
}
