package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SourceKind selects the adapter used to turn a payload into raw items.
type SourceKind string

const (
	SourceKindFeed SourceKind = "feed"
	SourceKindSite SourceKind = "site"
)

// SourceConfig carries the kind-specific settings of a source.
type SourceConfig struct {
	FilterKeywords  []string `json:"filter_keywords,omitempty" yaml:"filter_keywords"`
	Selector        string   `json:"selector,omitempty" yaml:"selector"`
	TitleSelector   string   `json:"title_selector,omitempty" yaml:"title_selector"`
	SummarySelector string   `json:"summary_selector,omitempty" yaml:"summary_selector"`
	MaxItems        int      `json:"max_items,omitempty" yaml:"max_items"`
}

// Value implements driver.Valuer.
func (c SourceConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *SourceConfig) Scan(src any) error {
	raw, err := textBytes(src)
	if err != nil {
		return err
	}
	*c = SourceConfig{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("scan source config: %w", err)
	}
	return nil
}

// Source represents a row in the 'sources' table
type Source struct {
	ID                    int64        `db:"id" json:"id"`
	Name                  string       `db:"name" json:"name"`
	URL                   string       `db:"url" json:"url"`
	Kind                  SourceKind   `db:"kind" json:"kind"`
	Language              string       `db:"language" json:"language"`
	Enabled               bool         `db:"enabled" json:"enabled"`
	Tags                  StringList   `db:"tags" json:"tags"`
	Config                SourceConfig `db:"config" json:"config"`
	LastCollectedAt       *time.Time   `db:"last_collected_at" json:"last_collected_at,omitempty"`
	CollectionCount       int          `db:"collection_count" json:"collection_count"`
	ConsecutiveErrorCount int          `db:"consecutive_error_count" json:"consecutive_error_count"`
	CreatedAt             time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updated_at"`
}

// NewSource creates an enabled feed source with default values
func NewSource(name, url string) *Source {
	now := time.Now().UTC()
	return &Source{
		Name:      name,
		URL:       url,
		Kind:      SourceKindFeed,
		Enabled:   true,
		Tags:      StringList{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
