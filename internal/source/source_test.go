package source

import (
	"errors"
	"strings"
	"testing"

	"reddot-watch/collector/internal/models"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
  <title>Example</title>
  <link>https://example.com</link>
  <item>
    <title>First post</title>
    <link>https://example.com/first</link>
    <description>Short summary</description>
    <content:encoded><![CDATA[<p>Full <b>content</b></p>]]></content:encoded>
    <dc:creator>Jordan</dc:creator>
    <pubDate>Mon, 03 Mar 2025 10:00:00 +0000</pubDate>
    <guid>first-guid</guid>
    <category>go</category>
    <enclosure url="https://example.com/a.mp3" type="audio/mpeg" length="123"/>
  </item>
  <item>
    <title>Only description</title>
    <link>https://example.com/second</link>
    <description>Just the description</description>
  </item>
  <item>
    <title>Media only</title>
    <link>https://example.com/third</link>
    <media:group><media:description>From media</media:description></media:group>
    <media:content url="https://example.com/v.mp4"/>
  </item>
  <item>
    <title></title>
    <link>https://example.com/untitled</link>
  </item>
  <item>
    <title>No link</title>
  </item>
</channel>
</rss>`

func feedSource() *models.Source {
	return models.NewSource("example", "https://example.com/feed")
}

func TestFeedAdapterExtractsEntries(t *testing.T) {
	p, err := NewFeedAdapter().Parse(feedSource(), []byte(rssFeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(p.Items))
	}
	if p.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", p.Skipped)
	}
	if len(p.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", p.Warnings)
	}

	first := p.Items[0]
	if !strings.Contains(first.Content, "Full") {
		t.Errorf("content should prefer content:encoded, got %q", first.Content)
	}
	if first.Summary != "Short summary" {
		t.Errorf("summary = %q", first.Summary)
	}
	if first.Author != "Jordan" {
		t.Errorf("author = %q", first.Author)
	}
	if first.Published == "" || first.PublishedParsed == nil {
		t.Errorf("published = %q / %v", first.Published, first.PublishedParsed)
	}
	if first.Metadata["guid"] != "first-guid" {
		t.Errorf("guid = %v", first.Metadata["guid"])
	}
	if len(first.Tags) != 1 || first.Tags[0] != "go" {
		t.Errorf("tags = %v", first.Tags)
	}
	if _, ok := first.Metadata["enclosures"]; !ok {
		t.Error("enclosures missing")
	}

	if p.Items[1].Content != "Just the description" {
		t.Errorf("second content = %q", p.Items[1].Content)
	}
	if p.Items[2].Content != "From media" {
		t.Errorf("third content = %q", p.Items[2].Content)
	}
	if media, ok := p.Items[2].Metadata["media"].([]string); !ok || media[0] != "https://example.com/v.mp4" {
		t.Errorf("media = %v", p.Items[2].Metadata["media"])
	}
}

func TestFeedAdapterAtom(t *testing.T) {
	atom := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://example.com/atom/1"/>
    <updated>2025-03-03T10:00:00Z</updated>
    <author><name>Sam</name></author>
    <summary>Atom summary</summary>
  </entry>
</feed>`
	p, err := NewFeedAdapter().Parse(feedSource(), []byte(atom))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 1 {
		t.Fatalf("got %d items", len(p.Items))
	}
	it := p.Items[0]
	if it.Link != "https://example.com/atom/1" || it.Author != "Sam" || it.Content != "Atom summary" {
		t.Errorf("atom item = %+v", it)
	}
	if it.Published != "2025-03-03T10:00:00Z" {
		t.Errorf("published = %q", it.Published)
	}
}

func TestFeedAdapterMaxItems(t *testing.T) {
	src := feedSource()
	src.Config.MaxItems = 1
	p, err := NewFeedAdapter().Parse(src, []byte(rssFeed))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 1 {
		t.Errorf("got %d items, want 1", len(p.Items))
	}
}

func TestFeedAdapterCleansControlCharacters(t *testing.T) {
	payload := `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>
<item><title>Broken` + "\x01" + ` title</title><link>https://example.com/a</link><description>ok</description></item>
</channel></rss>`

	p, err := NewFeedAdapter().Parse(feedSource(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].Title != "Broken title" {
		t.Fatalf("items = %+v", p.Items)
	}
	if len(p.Warnings) == 0 {
		t.Error("expected a cleanup warning")
	}
}

func TestFeedAdapterSalvagesTruncatedPayload(t *testing.T) {
	payload := `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>
<item><title>Kept</title><link>https://example.com/kept</link><description>Body</description><pubDate>Mon, 03 Mar 2025 10:00:00 GMT</pubDate></item>
<item><title>Cut off`

	p, err := NewFeedAdapter().Parse(feedSource(), []byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(p.Items))
	}
	it := p.Items[0]
	if it.Title != "Kept" || it.Link != "https://example.com/kept" || it.Content != "Body" {
		t.Errorf("salvaged item = %+v", it)
	}
	if it.Published == "" {
		t.Error("salvaged date missing")
	}
	if len(p.Warnings) == 0 {
		t.Error("expected a salvage warning")
	}
}

func relativeFeed(channelLink string) []byte {
	return []byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>` + channelLink + `
<item><title>Rooted</title><link>/posts/1</link></item>
<item><title>Relative</title><link>posts/2</link></item>
<item><title>Absolute</title><link>https://other.example/3</link></item>
</channel></rss>`)
}

func TestFeedAdapterResolvesRelativeLinks(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		srcURL  string
		want    []string
		skipped int
	}{
		{
			name:    "feed link",
			channel: "<link>https://blog.example/news/</link>",
			srcURL:  "https://feeds.example/rss",
			want:    []string{"https://blog.example/posts/1", "https://blog.example/news/posts/2", "https://other.example/3"},
		},
		{
			name:   "source url fallback",
			srcURL: "https://feeds.example/rss/main",
			want:   []string{"https://feeds.example/posts/1", "https://feeds.example/rss/posts/2", "https://other.example/3"},
		},
		{
			name:    "no usable base",
			srcURL:  "feeds/local",
			want:    []string{"https://other.example/3"},
			skipped: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := models.NewSource("example", tt.srcURL)
			p, err := NewFeedAdapter().Parse(src, relativeFeed(tt.channel))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			var got []string
			for _, it := range p.Items {
				got = append(got, it.Link)
			}
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("links = %v, want %v", got, tt.want)
			}
			if p.Skipped != tt.skipped {
				t.Errorf("skipped = %d, want %d", p.Skipped, tt.skipped)
			}
		})
	}
}

func TestFeedAdapterStructuralFailure(t *testing.T) {
	_, err := NewFeedAdapter().Parse(feedSource(), []byte("this is not a feed"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestCleanPayload(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a & b", "a &amp; b"},
		{"a &amp; b", "a &amp; b"},
		{"&#169; &#x00A9; &copy;", "&#169; &#x00A9; &copy;"},
		{"bad\x00char", "badchar"},
		{"tab\tkept", "tab\tkept"},
		{"inv\xffalid", "invalid"},
	}
	for _, tt := range tests {
		if got := string(cleanPayload([]byte(tt.in))); got != tt.want {
			t.Errorf("cleanPayload(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

const sitePage = `<html><body>
<article class="post">
  <h2><a href="/posts/1">Post one</a></h2>
  <p class="lead">Lead one</p>
  <time datetime="2025-03-03T09:00:00Z">March 3</time>
  <img src="/img/1.png">
</article>
<article class="post">
  <h2>Post without link</h2>
</article>
<article class="post">
  <a href="https://other.example/two"><span class="t">Post two</span></a>
</article>
</body></html>`

func TestSiteAdapter(t *testing.T) {
	src := models.NewSource("site", "https://example.com/blog/")
	src.Kind = models.SourceKindSite
	src.Config.Selector = "article.post"
	src.Config.SummarySelector = "p.lead"

	p, err := NewSiteAdapter().Parse(src, []byte(sitePage))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 2 || p.Skipped != 1 {
		t.Fatalf("items = %d, skipped = %d", len(p.Items), p.Skipped)
	}
	one := p.Items[0]
	if one.Title != "Post one" || one.Link != "https://example.com/posts/1" {
		t.Errorf("first = %+v", one)
	}
	if one.Summary != "Lead one" || one.Published != "2025-03-03T09:00:00Z" {
		t.Errorf("first summary/date = %q / %q", one.Summary, one.Published)
	}
	if one.Metadata["image"] != "https://example.com/img/1.png" {
		t.Errorf("image = %v", one.Metadata["image"])
	}
	if p.Items[1].Link != "https://other.example/two" || p.Items[1].Title != "Post two" {
		t.Errorf("second = %+v", p.Items[1])
	}
}

func TestSiteAdapterRequiresSelector(t *testing.T) {
	src := models.NewSource("site", "https://example.com/")
	src.Kind = models.SourceKindSite
	_, err := NewSiteAdapter().Parse(src, []byte(sitePage))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()
	if a, err := r.Lookup(models.SourceKindFeed); err != nil || a.Kind() != models.SourceKindFeed {
		t.Fatalf("feed lookup = %v, %v", a, err)
	}
	_, err := r.Lookup("podcast")
	var ue *UnsupportedKindError
	if !errors.As(err, &ue) || ue.Kind != "podcast" {
		t.Fatalf("error = %v, want UnsupportedKindError", err)
	}
	if kinds := r.Kinds(); len(kinds) != 2 || kinds[0] != models.SourceKindFeed {
		t.Errorf("kinds = %v", kinds)
	}
}
