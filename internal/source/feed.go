package source

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/models"
)

// FeedAdapter parses RSS, Atom and JSON feeds.
type FeedAdapter struct{}

// NewFeedAdapter creates a feed adapter.
func NewFeedAdapter() *FeedAdapter { return &FeedAdapter{} }

func (a *FeedAdapter) Kind() models.SourceKind { return models.SourceKindFeed }

// Parse extracts entries from a feed payload. A malformed payload is retried
// once after cleanup and then salvaged leniently; both cases add a warning.
func (a *FeedAdapter) Parse(src *models.Source, payload []byte) (Parsed, error) {
	feed, err := parseFeed(payload)
	if err == nil {
		return capItems(absoluteLinks(fromFeed(feed), feed.Link, src.URL), src.Config.MaxItems), nil
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return Parsed{}, &ParseError{Source: src.Name, Err: err}
	}

	logger := log.With().Str("source", src.Name).Logger()
	logger.Warn().Err(err).Msg("Feed payload malformed, retrying after cleanup")

	feed, cleanErr := parseFeed(cleanPayload(payload))
	if cleanErr == nil {
		p := absoluteLinks(fromFeed(feed), feed.Link, src.URL)
		p.Warnings = append(p.Warnings, fmt.Sprintf("payload required cleanup: %v", err))
		return capItems(p, src.Config.MaxItems), nil
	}

	p, salvageErr := salvageFeed(payload)
	if salvageErr != nil {
		return Parsed{}, &ParseError{Source: src.Name, Err: fmt.Errorf("%v; salvage: %w", err, salvageErr)}
	}
	p = absoluteLinks(p, src.URL)
	logger.Warn().Int("items", len(p.Items)).Msg("Feed payload salvaged leniently")
	p.Warnings = append(p.Warnings, fmt.Sprintf("payload salvaged after parse error: %v", err))
	return capItems(p, src.Config.MaxItems), nil
}

// parseFeed uses a fresh parser per call; gofeed parsers keep state.
func parseFeed(payload []byte) (*gofeed.Feed, error) {
	return gofeed.NewParser().Parse(bytes.NewReader(payload))
}

func fromFeed(feed *gofeed.Feed) Parsed {
	p := Parsed{Items: make([]models.RawItem, 0, len(feed.Items))}
	for _, it := range feed.Items {
		raw, ok := rawFromFeedItem(it)
		if !ok {
			p.Skipped++
			log.Debug().Str("guid", it.GUID).Msg("Skipping feed entry without title or link")
			continue
		}
		p.Items = append(p.Items, raw)
	}
	return p
}

// absoluteLinks resolves entry links against the first usable base, which is
// normally the feed's own link followed by the source URL. Entries whose link
// cannot be made absolute are skipped.
func absoluteLinks(p Parsed, bases ...string) Parsed {
	var base *url.URL
	for _, b := range bases {
		if u, err := url.Parse(strings.TrimSpace(b)); err == nil && u.IsAbs() && u.Host != "" {
			base = u
			break
		}
	}

	items := p.Items[:0]
	for _, raw := range p.Items {
		link := resolve(base, raw.Link)
		if u, err := url.Parse(link); err != nil || !u.IsAbs() || u.Host == "" {
			p.Skipped++
			log.Debug().Str("link", raw.Link).Msg("Skipping feed entry with a relative link")
			continue
		}
		raw.Link = link
		items = append(items, raw)
	}
	p.Items = items
	return p
}

func rawFromFeedItem(it *gofeed.Item) (models.RawItem, bool) {
	title := strings.TrimSpace(it.Title)
	link := strings.TrimSpace(it.Link)
	if link == "" && len(it.Links) > 0 {
		link = strings.TrimSpace(it.Links[0])
	}
	if title == "" || link == "" {
		return models.RawItem{}, false
	}

	raw := models.RawItem{
		Title:    title,
		Link:     link,
		Content:  entryContent(it),
		Summary:  it.Description,
		Author:   entryAuthor(it),
		Tags:     append([]string{}, it.Categories...),
		Metadata: entryMetadata(it),
	}

	raw.Published = firstNonEmpty(it.Published, it.Updated)
	if raw.Published == "" && it.DublinCoreExt != nil && len(it.DublinCoreExt.Date) > 0 {
		raw.Published = it.DublinCoreExt.Date[0]
	}
	if it.PublishedParsed != nil {
		raw.PublishedParsed = it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		raw.PublishedParsed = it.UpdatedParsed
	}
	return raw, true
}

// entryContent prefers full content, then the summary, then extension summaries.
func entryContent(it *gofeed.Item) string {
	if c := strings.TrimSpace(it.Content); c != "" {
		return c
	}
	if d := strings.TrimSpace(it.Description); d != "" {
		return d
	}
	if it.ITunesExt != nil && strings.TrimSpace(it.ITunesExt.Summary) != "" {
		return it.ITunesExt.Summary
	}
	return mediaDescription(it.Extensions)
}

func entryAuthor(it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return it.Author.Name
	}
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if it.DublinCoreExt != nil && len(it.DublinCoreExt.Creator) > 0 {
		return it.DublinCoreExt.Creator[0]
	}
	if it.ITunesExt != nil {
		return it.ITunesExt.Author
	}
	return ""
}

func entryMetadata(it *gofeed.Item) models.Metadata {
	md := models.Metadata{}
	if it.GUID != "" {
		md["guid"] = it.GUID
	}
	if len(it.Enclosures) > 0 {
		encs := make([]map[string]string, 0, len(it.Enclosures))
		for _, e := range it.Enclosures {
			if e == nil || e.URL == "" {
				continue
			}
			encs = append(encs, map[string]string{"url": e.URL, "type": e.Type, "length": e.Length})
		}
		if len(encs) > 0 {
			md["enclosures"] = encs
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		md["image"] = it.Image.URL
	}
	if media := mediaURLs(it.Extensions); len(media) > 0 {
		md["media"] = media
	}
	return md
}

// mediaDescription reads media:description, directly or inside media:group.
func mediaDescription(exts ext.Extensions) string {
	media, ok := exts["media"]
	if !ok {
		return ""
	}
	if d := firstExtValue(media["description"]); d != "" {
		return d
	}
	for _, g := range media["group"] {
		if d := firstExtValue(g.Children["description"]); d != "" {
			return d
		}
	}
	return ""
}

func mediaURLs(exts ext.Extensions) []string {
	media, ok := exts["media"]
	if !ok {
		return nil
	}
	var urls []string
	for _, name := range []string{"content", "thumbnail"} {
		for _, e := range media[name] {
			if u := e.Attrs["url"]; u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

func firstExtValue(list []ext.Extension) string {
	for _, e := range list {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
