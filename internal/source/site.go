package source

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/models"
)

var errNoSelector = errors.New("site source requires config.selector")

// SiteAdapter scrapes entries from an HTML page using CSS selectors
// from the source config.
type SiteAdapter struct{}

// NewSiteAdapter creates a site adapter.
func NewSiteAdapter() *SiteAdapter { return &SiteAdapter{} }

func (a *SiteAdapter) Kind() models.SourceKind { return models.SourceKindSite }

func (a *SiteAdapter) Parse(src *models.Source, payload []byte) (Parsed, error) {
	if src.Config.Selector == "" {
		return Parsed{}, &ParseError{Source: src.Name, Err: errNoSelector}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return Parsed{}, &ParseError{Source: src.Name, Err: err}
	}
	base, _ := url.Parse(src.URL)

	var p Parsed
	doc.Find(src.Config.Selector).Each(func(_ int, s *goquery.Selection) {
		link := entryLink(s, base)
		title := selectText(s, src.Config.TitleSelector)
		if title == "" {
			title = firstNonEmpty(s.Find("h1, h2, h3").First().Text(), s.Find("a[href]").First().Text())
		}
		title = strings.Join(strings.Fields(title), " ")
		if title == "" || link == "" {
			p.Skipped++
			log.Debug().Str("source", src.Name).Msg("Skipping site entry without title or link")
			return
		}

		summary := selectText(s, src.Config.SummarySelector)
		if summary == "" {
			summary = strings.TrimSpace(s.Find("p").First().Text())
		}
		content, _ := s.Html()

		raw := models.RawItem{
			Title:    title,
			Link:     link,
			Content:  content,
			Summary:  summary,
			Metadata: models.Metadata{},
		}
		if t := s.Find("time").First(); t.Length() > 0 {
			raw.Published = strings.TrimSpace(t.AttrOr("datetime", t.Text()))
		}
		if img, ok := s.Find("img[src]").First().Attr("src"); ok {
			raw.Metadata["image"] = resolve(base, img)
		}
		p.Items = append(p.Items, raw)
	})

	return capItems(p, src.Config.MaxItems), nil
}

func selectText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func entryLink(s *goquery.Selection, base *url.URL) string {
	href, ok := s.Attr("href")
	if !ok || goquery.NodeName(s) != "a" {
		href, ok = s.Find("a[href]").First().Attr("href")
	}
	if !ok {
		return ""
	}
	return resolve(base, strings.TrimSpace(href))
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
