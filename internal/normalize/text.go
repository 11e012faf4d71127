package normalize

import (
	"html"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// boilerplate phrases removed from every cleaned text
var boilerplate = []string{
	"Read more",
	"Continue reading",
	"Click here",
	"Subscribe",
	"Advertisement",
}

const blockElements = "p, div, li, tr, td, th, h1, h2, h3, h4, h5, h6, blockquote, section, article, header, footer, pre"

// CleanText turns markup or plain text into a single line of readable text.
// It never fails: unparseable markup is treated as plain text.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	if strings.Contains(s, "<") && strings.Contains(s, ">") {
		s = htmlText(s)
	} else {
		s = html.UnescapeString(s)
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	for _, phrase := range boilerplate {
		s = strings.ReplaceAll(s, phrase, "")
	}
	return strings.Join(strings.Fields(s), " ")
}

func htmlText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find(blockElements).AppendHtml(" ")
	return doc.Text()
}
