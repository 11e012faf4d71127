// Package filter decides whether a normalized item is kept.
package filter

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"reddot-watch/collector/internal/models"
)

// Reason explains why an item was rejected. Accepted items get ReasonNone.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonTooShort        Reason = "content_too_short"
	ReasonTooOld          Reason = "too_old"
	ReasonBlockedDomain   Reason = "blocked_domain"
	ReasonMissingKeywords Reason = "missing_required_keywords"
	ReasonSourceKeywords  Reason = "missing_source_keywords"
)

// Options are the global filter rules.
type Options struct {
	MinContentLength int
	// MaxAgeDays of zero or less disables the age rule.
	MaxAgeDays       int
	BlockedDomains   []string
	RequiredKeywords []string
}

// Accept reports whether item passes every rule. It is pure: the same
// inputs always give the same answer.
func Accept(item models.Item, opts Options, sourceKeywords []string, now time.Time) bool {
	return Check(item, opts, sourceKeywords, now) == ReasonNone
}

// Check returns the first rule item violates, or ReasonNone.
func Check(item models.Item, opts Options, sourceKeywords []string, now time.Time) Reason {
	if utf8.RuneCountInString(item.Content) < opts.MinContentLength {
		return ReasonTooShort
	}

	if opts.MaxAgeDays > 0 && item.PublishedAt != nil {
		maxAge := time.Duration(opts.MaxAgeDays) * 24 * time.Hour
		if now.UTC().Sub(item.PublishedAt.UTC()) > maxAge {
			return ReasonTooOld
		}
	}

	if len(opts.BlockedDomains) > 0 && blocked(item.URL, opts.BlockedDomains) {
		return ReasonBlockedDomain
	}

	text := strings.ToLower(item.Title + " " + item.Content)
	if len(opts.RequiredKeywords) > 0 && !containsAny(text, opts.RequiredKeywords) {
		return ReasonMissingKeywords
	}
	if len(sourceKeywords) > 0 && !containsAny(text, sourceKeywords) {
		return ReasonSourceKeywords
	}
	return ReasonNone
}

func blocked(rawURL string, domains []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
