package source

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"reddot-watch/collector/internal/models"
)

var entityRe = regexp.MustCompile(`^&(#[0-9]+|#[xX][0-9a-fA-F]+|[A-Za-z][A-Za-z0-9]{1,31});`)

// cleanPayload repairs encoding problems that make XML parsers bail out:
// invalid UTF-8, control characters and bare ampersands.
func cleanPayload(payload []byte) []byte {
	s := strings.ToValidUTF8(string(payload), "")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '&':
			end := i + 40
			if end > len(s) {
				end = len(s)
			}
			if entityRe.MatchString(s[i:end]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		case !isXMLChar(r):
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return []byte(b.String())
}

func isXMLChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

// The HTML parser treats <link> as void and <title> specially, so feed element
// names are renamed before the lenient pass.
var salvageReplacer = strings.NewReplacer(
	"<![CDATA[", "", "]]>", "",
	"<link", "<x-link", "</link>", "</x-link>",
	"<title", "<x-title", "</title>", "</x-title>",
	"<content:encoded", "<x-content", "</content:encoded>", "</x-content>",
	"<dc:creator", "<x-creator", "</dc:creator>", "</x-creator>",
	"<pubDate", "<x-pubdate", "</pubDate>", "</x-pubdate>",
)

var errNoEntries = errors.New("no entries found")

// salvageFeed extracts item and entry elements from a payload that no
// feed parser accepts.
func salvageFeed(payload []byte) (Parsed, error) {
	cleaned := salvageReplacer.Replace(string(cleanPayload(payload)))
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(cleaned)))
	if err != nil {
		return Parsed{}, err
	}

	var p Parsed
	doc.Find("item, entry").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("x-title").First().Text())
		link := strings.TrimSpace(s.Find("x-link").First().Text())
		if link == "" {
			link, _ = s.Find("x-link[href]").First().Attr("href")
			link = strings.TrimSpace(link)
		}
		if title == "" || link == "" {
			p.Skipped++
			return
		}

		content := strings.TrimSpace(s.Find("x-content").First().Text())
		summary := strings.TrimSpace(s.Find("description, summary").First().Text())
		if content == "" {
			content = firstNonEmpty(summary, s.Find("content").First().Text())
		}

		raw := models.RawItem{
			Title:     title,
			Link:      link,
			Content:   content,
			Summary:   summary,
			Author:    firstNonEmpty(s.Find("x-creator").First().Text(), s.Find("author name").First().Text(), s.Find("author").First().Text()),
			Published: firstNonEmpty(s.Find("x-pubdate").First().Text(), s.Find("published").First().Text(), s.Find("updated").First().Text()),
			Metadata:  models.Metadata{"salvaged": true},
		}
		if guid := strings.TrimSpace(s.Find("guid, id").First().Text()); guid != "" {
			raw.Metadata["guid"] = guid
		}
		p.Items = append(p.Items, raw)
	})

	if len(p.Items) == 0 {
		return Parsed{}, errNoEntries
	}
	return p, nil
}
