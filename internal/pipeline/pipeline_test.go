package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"reddot-watch/collector/internal/dedup"
	"reddot-watch/collector/internal/filter"
	"reddot-watch/collector/internal/models"
	"reddot-watch/collector/internal/normalize"
	"reddot-watch/collector/internal/source"
)

type stubFetcher struct {
	payload []byte
	err     error
	calls   int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.payload, f.err
}

type stubLookup struct{ urls, titles []string }

func (s stubLookup) FindRecentURLs(context.Context, string, time.Time) ([]string, error) {
	return s.urls, nil
}

func (s stubLookup) FindRecentTitles(context.Context, string, time.Time) ([]string, error) {
	return s.titles, nil
}

var longBody = strings.Repeat("Detailed reporting on the topic. ", 6)

func rss(items ...string) []byte {
	return []byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>` +
		strings.Join(items, "") + `</channel></rss>`)
}

func rssItem(title, link, desc string) string {
	return fmt.Sprintf("<item><title>%s</title><link>%s</link><description>%s</description>"+
		"<pubDate>Mon, 10 Mar 2025 09:00:00 GMT</pubDate></item>", title, link, desc)
}

func newPipeline(f Fetcher, lookup dedup.Lookup) *Pipeline {
	var idx *dedup.Index
	if lookup != nil {
		idx = dedup.NewIndex(lookup, dedup.DefaultWindows())
	}
	p := New(source.DefaultRegistry(), func() Fetcher { return f }, idx, normalize.New(nil, time.UTC),
		filter.Options{MinContentLength: 100, MaxAgeDays: 7})
	p.now = func() time.Time { return time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC) }
	return p
}

func testSource(kind models.SourceKind) *models.Source {
	src := models.NewSource("Example", "https://example.com/feed")
	src.ID = 7
	src.Kind = kind
	src.Language = "english"
	return src
}

func TestRunTwoEntryScenario(t *testing.T) {
	f := &stubFetcher{payload: rss(
		rssItem("Long one", "https://example.com/a", longBody),
		rssItem("Short one", "https://example.com/b", "tiny"),
	)}
	res := newPipeline(f, nil).Run(context.Background(), testSource(models.SourceKindFeed))

	o := res.Outcome
	if o.Status != models.RunStatusSuccess {
		t.Fatalf("status = %s, errors = %v", o.Status, o.Errors)
	}
	if o.ItemsFound != 2 || o.ItemsAfterFilter != 1 {
		t.Errorf("found/after = %d/%d, want 2/1", o.ItemsFound, o.ItemsAfterFilter)
	}
	if len(res.Items) != 1 || res.Items[0].URL != "https://example.com/a" {
		t.Errorf("items = %+v", res.Items)
	}
	if res.Stats.Rejected[filter.ReasonTooShort] != 1 {
		t.Errorf("rejected = %v", res.Stats.Rejected)
	}
	if o.ID == "" || o.SourceID != 7 {
		t.Errorf("outcome identity = %q/%d", o.ID, o.SourceID)
	}
	if res.State() != StateCompleted {
		t.Errorf("state = %s", res.State())
	}
}

func TestRunFetchFailure(t *testing.T) {
	f := &stubFetcher{err: errors.New("connection refused")}
	res := newPipeline(f, nil).Run(context.Background(), testSource(models.SourceKindFeed))

	if res.Outcome.Status != models.RunStatusFailed {
		t.Fatalf("status = %s", res.Outcome.Status)
	}
	if res.Outcome.ItemsFound != 0 || res.Outcome.ItemsAfterFilter != 0 || len(res.Items) != 0 {
		t.Errorf("failed run must have zero counts: %+v", res.Outcome)
	}
	if len(res.Outcome.Errors) != 1 || !strings.Contains(res.Outcome.Errors[0], "connection refused") {
		t.Errorf("errors = %v", res.Outcome.Errors)
	}
	want := []State{StatePending, StateFetching, StateFailed}
	if fmt.Sprint(res.States) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", res.States, want)
	}
}

func TestRunUnsupportedKind(t *testing.T) {
	f := &stubFetcher{}
	res := newPipeline(f, nil).Run(context.Background(), testSource("newsletter"))

	if res.Outcome.Status != models.RunStatusFailed {
		t.Fatalf("status = %s", res.Outcome.Status)
	}
	if f.calls != 0 {
		t.Errorf("fetch called %d times for unsupported kind", f.calls)
	}
	if !strings.Contains(res.Outcome.Errors[0], "unsupported source kind") {
		t.Errorf("errors = %v", res.Outcome.Errors)
	}
}

func TestRunStructuralParseFailure(t *testing.T) {
	f := &stubFetcher{payload: []byte("this is not a feed")}
	res := newPipeline(f, nil).Run(context.Background(), testSource(models.SourceKindFeed))

	if res.Outcome.Status != models.RunStatusFailed {
		t.Fatalf("status = %s", res.Outcome.Status)
	}
	want := []State{StatePending, StateFetching, StateParsing, StateFailed}
	if fmt.Sprint(res.States) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", res.States, want)
	}
}

func TestRunWarningsMarkPartial(t *testing.T) {
	payload := rss(rssItem("Broken\x01 title", "https://example.com/a", longBody))
	res := newPipeline(&stubFetcher{payload: payload}, nil).Run(context.Background(), testSource(models.SourceKindFeed))

	if res.Outcome.Status != models.RunStatusPartial {
		t.Fatalf("status = %s", res.Outcome.Status)
	}
	if len(res.Items) != 1 {
		t.Errorf("items = %d, want 1", len(res.Items))
	}
	if len(res.Outcome.Errors) == 0 {
		t.Error("expected a warning in errors")
	}
}

func TestRunDuplicates(t *testing.T) {
	payload := rss(
		rssItem("Seen before", "https://example.com/old", longBody),
		rssItem("Known title", "https://example.com/new", longBody),
		rssItem("Fresh", "https://example.com/fresh", longBody),
		rssItem("Fresh again", "https://example.com/fresh", longBody),
	)
	lookup := stubLookup{urls: []string{"https://example.com/old"}, titles: []string{"Known title"}}
	res := newPipeline(&stubFetcher{payload: payload}, lookup).Run(context.Background(), testSource(models.SourceKindFeed))

	if res.Outcome.ItemsFound != 4 || res.Outcome.ItemsAfterFilter != 1 {
		t.Errorf("found/after = %d/%d, want 4/1", res.Outcome.ItemsFound, res.Outcome.ItemsAfterFilter)
	}
	if res.Stats.DuplicateURLs != 2 || res.Stats.DuplicateTitles != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestRunTitleWindowMatchesCleanedTitles(t *testing.T) {
	first := rss(
		rssItem("Subscribe: Model  X Released", "https://example.com/x1", longBody),
		rssItem("Model   Y    Launch", "https://example.com/y1", longBody),
	)
	prev := newPipeline(&stubFetcher{payload: first}, nil).Run(context.Background(), testSource(models.SourceKindFeed))
	if len(prev.Items) != 2 {
		t.Fatalf("first run items = %d, want 2", len(prev.Items))
	}
	var stored []string
	for _, it := range prev.Items {
		stored = append(stored, models.TitleKey(it.Title))
	}

	again := rss(
		rssItem("Subscribe: Model  X Released", "https://example.com/x2", longBody),
		rssItem("Model   Y    Launch", "https://example.com/y2", longBody),
	)
	res := newPipeline(&stubFetcher{payload: again}, stubLookup{titles: stored}).
		Run(context.Background(), testSource(models.SourceKindFeed))

	if res.Stats.DuplicateTitles != 2 || len(res.Items) != 0 {
		t.Errorf("duplicate titles = %d, items = %d, want 2 and 0", res.Stats.DuplicateTitles, len(res.Items))
	}
}

func TestRunSourceKeywords(t *testing.T) {
	payload := rss(
		rssItem("Golang release", "https://example.com/a", longBody),
		rssItem("Weather", "https://example.com/b", longBody),
	)
	src := testSource(models.SourceKindFeed)
	src.Config.FilterKeywords = []string{"golang"}
	res := newPipeline(&stubFetcher{payload: payload}, nil).Run(context.Background(), src)

	if len(res.Items) != 1 || res.Items[0].Title != "Golang release" {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestCollectedAtNonDecreasing(t *testing.T) {
	payload := rss(
		rssItem("One", "https://example.com/1", longBody),
		rssItem("Two", "https://example.com/2", longBody),
		rssItem("Three", "https://example.com/3", longBody),
	)
	p := newPipeline(&stubFetcher{payload: payload}, nil)
	base := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	calls := 0
	p.now = func() time.Time {
		calls++
		// step back on every other call
		if calls%2 == 0 {
			return base.Add(-time.Minute)
		}
		return base.Add(time.Duration(calls) * time.Second)
	}
	res := p.Run(context.Background(), testSource(models.SourceKindFeed))
	for i := 1; i < len(res.Items); i++ {
		if res.Items[i].CollectedAt.Before(res.Items[i-1].CollectedAt) {
			t.Fatalf("collected_at went back at %d", i)
		}
	}
}

func TestEachRunGetsItsOwnFetcher(t *testing.T) {
	payload := rss(rssItem("One", "https://example.com/1", longBody))
	var made []*stubFetcher
	p := newPipeline(nil, nil)
	p.newFetcher = func() Fetcher {
		f := &stubFetcher{payload: payload}
		made = append(made, f)
		return f
	}

	p.Run(context.Background(), testSource(models.SourceKindFeed))
	p.Run(context.Background(), testSource(models.SourceKindFeed))

	if len(made) != 2 {
		t.Fatalf("fetchers created = %d, want 2", len(made))
	}
	if made[0] == made[1] {
		t.Error("runs shared a fetcher")
	}
	for i, f := range made {
		if f.calls != 1 {
			t.Errorf("fetcher %d calls = %d, want 1", i, f.calls)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StatePending, StateFetching, true},
		{StatePending, StateParsing, false},
		{StateFetching, StateFailed, true},
		{StateParsing, StateFailed, true},
		{StateFiltering, StateFailed, false},
		{StateFiltering, StateCompleted, true},
		{StateCompleted, StatePending, false},
		{StateFailed, StateFetching, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	sm := newStateMachine()
	if err := sm.advance(StateCompleted); err == nil {
		t.Error("expected error skipping straight to completed")
	}
}
