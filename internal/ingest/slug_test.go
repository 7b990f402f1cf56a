package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Community Buildings Fund", "community-buildings-fund"},
		{"  Youth & Play Grants!  ", "youth-play-grants"},
		{"already-a-slug", "already-a-slug"},
		{"£10k Awards (2026)", "10k-awards-2026"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input %q", tt.in)
	}
}

func TestSlugFromURL(t *testing.T) {
	t.Run("last path segment", func(t *testing.T) {
		got := SlugFromURL("https://example.org/funding/community-fund/", "ignored")
		assert.Equal(t, "community-fund", got)
	})

	t.Run("query and fragment ignored", func(t *testing.T) {
		got := SlugFromURL("https://example.org/grants/small-grants?utm_source=x#apply", "ignored")
		assert.Equal(t, "small-grants", got)
	})

	t.Run("index segment skipped", func(t *testing.T) {
		got := SlugFromURL("https://example.org/youth-fund/index.html", "ignored")
		assert.Equal(t, "youth-fund", got)
	})

	t.Run("bare host falls back to title", func(t *testing.T) {
		got := SlugFromURL("https://example.org/", "Main Grants Programme")
		assert.Equal(t, "main-grants-programme", got)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := SlugFromURL("https://example.org/funding/hardship-fund", "t")
		b := SlugFromURL("https://example.org/funding/hardship-fund", "t")
		assert.Equal(t, a, b)
	})
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "gmcvo_community-fund", ExternalID("gmcvo", "community-fund"))
}
