package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reddot-watch/collector/internal/config"
	"reddot-watch/collector/internal/database"
	"reddot-watch/collector/internal/models"
)

type stubLookup struct {
	urls, titles []string
	err          error
	sinceURL     time.Time
	sinceTitle   time.Time
}

func (s *stubLookup) FindRecentURLs(_ context.Context, _ string, since time.Time) ([]string, error) {
	s.sinceURL = since
	return s.urls, s.err
}

func (s *stubLookup) FindRecentTitles(_ context.Context, _ string, since time.Time) ([]string, error) {
	s.sinceTitle = since
	return s.titles, s.err
}

func TestSnapshotCheck(t *testing.T) {
	lookup := &stubLookup{
		urls:   []string{"https://a/1"},
		titles: []string{" Caf\u00e9 ", "Fish & Chips", ": Model X Released"},
	}
	snap := NewIndex(lookup, DefaultWindows()).Snapshot(context.Background(), models.NewSource("s", "u"))

	tests := []struct {
		name string
		raw  models.RawItem
		want Verdict
	}{
		{"url match", models.RawItem{Title: "New", Link: "https://a/1"}, DuplicateURL},
		{"title match decomposed", models.RawItem{Title: "Cafe\u0301", Link: "https://a/2"}, DuplicateTitle},
		{"title match after cleaning", models.RawItem{Title: "<b>Fish</b>  &amp; Chips", Link: "https://a/4"}, DuplicateTitle},
		{"title match without boilerplate", models.RawItem{Title: "Subscribe: Model  X Released", Link: "https://a/5"}, DuplicateTitle},
		{"unique", models.RawItem{Title: "Other", Link: "https://a/3"}, Unique},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.Check(tt.raw); got != tt.want {
				t.Errorf("Check = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshotWindows(t *testing.T) {
	lookup := &stubLookup{}
	idx := NewIndex(lookup, Windows{})
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	idx.now = func() time.Time { return now }

	idx.Snapshot(context.Background(), models.NewSource("s", "u"))
	if !lookup.sinceURL.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("url since = %v", lookup.sinceURL)
	}
	if !lookup.sinceTitle.Equal(now.Add(-48 * time.Hour)) {
		t.Errorf("title since = %v", lookup.sinceTitle)
	}
}

func TestSnapshotLookupFailureDegrades(t *testing.T) {
	lookup := &stubLookup{urls: nil, err: errors.New("db locked")}
	snap := NewIndex(lookup, DefaultWindows()).Snapshot(context.Background(), models.NewSource("s", "u"))
	if !snap.Degraded {
		t.Error("expected degraded snapshot")
	}
	if got := snap.Check(models.RawItem{Title: "x", Link: "y"}); got != Unique {
		t.Errorf("Check = %v, want unique", got)
	}
}

func TestRemember(t *testing.T) {
	snap := NewIndex(nil, DefaultWindows()).Snapshot(context.Background(), models.NewSource("s", "u"))
	raw := models.RawItem{Title: "Repeat", Link: "https://a/1"}
	if snap.Check(raw) != Unique {
		t.Fatal("fresh snapshot should be empty")
	}
	snap.Remember(raw)
	if snap.Check(models.RawItem{Title: "Other", Link: "https://a/1"}) != DuplicateURL {
		t.Error("remembered url not found")
	}
	if snap.Check(models.RawItem{Title: "Repeat", Link: "https://a/2"}) != DuplicateTitle {
		t.Error("remembered title not found")
	}
}

func TestWindowBoundariesAgainstStore(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "dedup.db")}, false)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	items := []models.Item{
		{Title: "URL 23h", URL: "https://a/23h", SourceName: "s", CollectedAt: now.Add(-23 * time.Hour)},
		{Title: "URL 25h", URL: "https://a/25h", SourceName: "s", CollectedAt: now.Add(-25 * time.Hour)},
		{Title: "Title 47h", URL: "https://a/47h", SourceName: "s", CollectedAt: now.Add(-47 * time.Hour)},
		{Title: "Title 49h", URL: "https://a/49h", SourceName: "s", CollectedAt: now.Add(-49 * time.Hour)},
		{Title: "Elsewhere", URL: "https://a/other", SourceName: "other", CollectedAt: now},
	}
	if _, err := db.InsertItems(ctx, items); err != nil {
		t.Fatal(err)
	}

	snap := NewIndex(db, DefaultWindows()).Snapshot(ctx, models.NewSource("s", "u"))

	tests := []struct {
		name string
		raw  models.RawItem
		want Verdict
	}{
		{"url 23h rejected", models.RawItem{Title: "fresh 1", Link: "https://a/23h"}, DuplicateURL},
		{"url 25h accepted", models.RawItem{Title: "fresh 2", Link: "https://a/25h"}, Unique},
		{"title 47h rejected", models.RawItem{Title: "Title 47h", Link: "https://a/new1"}, DuplicateTitle},
		{"title 49h accepted", models.RawItem{Title: "Title 49h", Link: "https://a/new2"}, Unique},
		{"other source ignored", models.RawItem{Title: "Elsewhere", Link: "https://a/other"}, Unique},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.Check(tt.raw); got != tt.want {
				t.Errorf("Check = %v, want %v", got, tt.want)
			}
		})
	}
}
