package normalize

import (
	"strings"
	"time"
)

// Layouts that carry zone information.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	time.RFC822Z,
	time.RFC822,
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
}

// Layouts without a zone. Values are interpreted in the configured location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"January 2, 2006",
	"2006-01-02",
}

// zoneAbbreviations holds the offsets, in seconds east of UTC, of the
// abbreviations feeds commonly use. time.Parse gives any other abbreviation
// a zero offset.
var zoneAbbreviations = map[string]int{
	"UT":   0,
	"UTC":  0,
	"GMT":  0,
	"WET":  0,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"JST":  9 * 3600,
	"KST":  9 * 3600,
}

// Timestamp is a parsed publication time, always in UTC.
type Timestamp struct {
	Time time.Time
	// ZoneKnown is false when the input carried no zone and loc was assumed.
	ZoneKnown bool
}

// ParseTimestamp tries a fixed, ordered list of layouts. Zone-less values are
// interpreted in loc (UTC when nil). It reports false if nothing matches.
func ParseTimestamp(raw string, loc *time.Location) (Timestamp, bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return Timestamp{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range zonedLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if abbreviationOnly(layout) {
			return fromAbbreviation(t, loc), true
		}
		return Timestamp{Time: t.UTC(), ZoneKnown: true}, true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return Timestamp{Time: t.UTC(), ZoneKnown: false}, true
		}
	}
	return Timestamp{}, false
}

func abbreviationOnly(layout string) bool {
	return strings.HasSuffix(layout, "MST") && !strings.Contains(layout, "-0700")
}

// fromAbbreviation fixes the offset of a time parsed from a zone
// abbreviation. Unknown abbreviations are treated like a missing zone.
func fromAbbreviation(t time.Time, loc *time.Location) Timestamp {
	name, offset := t.Zone()
	if offset != 0 {
		return Timestamp{Time: t.UTC(), ZoneKnown: true}
	}
	zone := loc
	known, ok := zoneAbbreviations[strings.ToUpper(name)]
	if ok {
		zone = time.FixedZone(name, known)
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
	return Timestamp{Time: wall.UTC(), ZoneKnown: ok}
}
