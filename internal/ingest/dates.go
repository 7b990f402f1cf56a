package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// UK sources write deadlines as prose: "14 May 2026 4:00pm UK time",
// "Friday 20 March 2026", "31/01/2026". ParseUKDate normalizes the noise
// away and tries layouts from most to least specific.

var weekdayPrefixRegex = regexp.MustCompile(`(?i)^(monday|tuesday|wednesday|thursday|friday|saturday|sunday),?\s+`)

var ordinalSuffixRegex = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)

var (
	amRegex = regexp.MustCompile(`(?i)(\d)\s*a\.?m\.?\b`)
	pmRegex = regexp.MustCompile(`(?i)(\d)\s*p\.?m\.?\b`)
)

var ukDateLayouts = []string{
	"2 January 2006 3:04PM",
	"2 January 2006 3PM",
	"2 January 2006",
	"2 Jan 2006 3:04PM",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006", // day first
	"2006-01-02",
}

// ParseUKDate parses a natural-language UK date string into a calendar date.
// Date-only layouts resolve to end of day UTC so a deadline stays open for
// the whole of its closing day.
func ParseUKDate(text string) (time.Time, error) {
	s := cleanDateText(text)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	for _, layout := range ukDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "PM") {
			return t.UTC(), nil
		}
		return endOfDay(t), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %q", text)
}

// ParseDeadline extracts a deadline from source text, treating a date in the
// past as absent: a past date means the source has already rolled the
// listing forward, or our parse is stale. Either way it is not a real
// closing date for an open listing.
func ParseDeadline(text string, now time.Time) *time.Time {
	t, err := ParseUKDate(text)
	if err != nil {
		return nil
	}
	if t.Before(now) {
		return nil
	}
	return &t
}

var deadlineInTextRegex = regexp.MustCompile(`(?i)\b(\d{1,2}(?:st|nd|rd|th)?\s+(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+20\d{2}|\d{1,2}/\d{1,2}/20\d{2}|20\d{2}-\d{2}-\d{2})\b`)

// FindDeadlineInText scans a block of prose for date tokens and returns the
// earliest future one, or nil. Used when a source has no dedicated deadline
// field and buries the closing date mid-paragraph.
func FindDeadlineInText(text string, now time.Time) *time.Time {
	var best *time.Time
	for _, token := range deadlineInTextRegex.FindAllString(text, -1) {
		d := ParseDeadline(token, now)
		if d == nil {
			continue
		}
		if best == nil || d.Before(*best) {
			best = d
		}
	}
	return best
}

var rollingKeywords = []string{
	"rolling basis", "rolling deadline", "rolling programme", "no deadline",
	"no closing date", "apply at any time", "applications accepted year round",
	"open all year", "ongoing", "always open",
}

// DetectRolling reports whether source text describes a continuously open
// programme.
func DetectRolling(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range rollingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func cleanDateText(s string) string {
	prefixes := []string{
		"closing date:", "deadline:", "closes:", "closes on", "apply by",
		"applications close", "due date:",
	}
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(lower, p); idx != -1 {
			s = s[idx+len(p):]
			lower = lower[idx+len(p):]
		}
	}

	s = strings.TrimSpace(s)
	s = weekdayPrefixRegex.ReplaceAllString(s, "")
	s = ordinalSuffixRegex.ReplaceAllString(s, "$1")

	// Timezone noise like "4:00pm UK time", "BST", "GMT" carries no
	// information we keep; deadlines are date-granular.
	for _, noise := range []string{"uk time", "(uk time)", "bst", "gmt", "at "} {
		s = removeFold(s, noise)
	}
	s = strings.ReplaceAll(s, "midday", "12:00PM")
	s = strings.ReplaceAll(s, "noon", "12:00PM")
	s = strings.ReplaceAll(s, "midnight", "")

	// Normalize am/pm casing for time.Parse.
	s = amRegex.ReplaceAllString(s, "${1}AM")
	s = pmRegex.ReplaceAllString(s, "${1}PM")

	return strings.Join(strings.Fields(s), " ")
}

func removeFold(s, sub string) string {
	lower := strings.ToLower(s)
	for {
		idx := strings.Index(lower, sub)
		if idx == -1 {
			return s
		}
		s = s[:idx] + s[idx+len(sub):]
		lower = lower[:idx] + lower[idx+len(sub):]
	}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
