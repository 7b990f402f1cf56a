package ingest

import (
	"net/url"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify reduces a title or path fragment to a stable lowercase slug.
// Deterministic: the same input always yields the same slug, which is what
// makes re-crawls upsert instead of duplicate.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugFromURL prefers the last meaningful path segment of a detail page,
// since source paths are more stable than display titles. Falls back to the
// supplied title when the URL has no usable path.
func SlugFromURL(rawURL, fallbackTitle string) string {
	if u, err := url.Parse(rawURL); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := len(segments) - 1; i >= 0; i-- {
			slug := Slugify(segments[i])
			if slug == "" || slug == "index" || strings.HasPrefix(slug, "index-") {
				continue
			}
			return slug
		}
	}
	return Slugify(fallbackTitle)
}

// ExternalID builds the source-prefixed dedup key for a grant.
func ExternalID(source, slug string) string {
	return source + "_" + slug
}
