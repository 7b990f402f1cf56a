package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// cleanText collapses runs of whitespace and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// htmlToText strips all markup and collapses whitespace.
func htmlToText(html string) string {
	return cleanText(strictPolicy.Sanitize(html))
}

// splitAndCleanList turns a block of newline/bullet-separated text into
// distinct clauses, as eligibility sections are usually authored.
func splitAndCleanList(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	block = strings.ReplaceAll(block, "\r", "\n")

	var out []string
	for _, raw := range strings.Split(block, "\n") {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		s = strings.TrimLeft(s, " \t-*•–—")
		s = cleanText(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}

	return mergeUniqueFold(nil, out)
}

// mergeUniqueFold appends items to dst, skipping case-insensitive duplicates.
func mergeUniqueFold(dst []string, items []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		k := strings.ToLower(strings.TrimSpace(v))
		if k != "" {
			seen[k] = struct{}{}
		}
	}

	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		dst = append(dst, v)
		seen[k] = struct{}{}
	}

	return dst
}

// labelMatchesFold reports whether heading text contains any of the labels,
// case-insensitively. Sources word their section headings loosely
// ("Open funds", "Funds currently open"), so containment beats equality.
func labelMatchesFold(heading string, labels []string) bool {
	h := strings.ToLower(cleanText(heading))
	for _, label := range labels {
		if strings.Contains(h, strings.ToLower(label)) {
			return true
		}
	}
	return false
}

// truncateText cuts a string to at most maxLen bytes, appending an ellipsis
// when truncated. The cut never lands mid-rune.
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	if maxLen > 3 {
		cut = maxLen - 3
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if maxLen > 3 {
		return text[:cut] + "..."
	}
	return text[:cut]
}
