package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubFetcher serves canned bodies keyed by URL substring.
type stubFetcher struct {
	responses map[string]string
	errs      map[string]error
	requests  []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*FetchedDocument, error) {
	s.requests = append(s.requests, url)
	for key, err := range s.errs {
		if strings.Contains(url, key) {
			return nil, err
		}
	}
	for key, body := range s.responses {
		if strings.Contains(url, key) {
			return &FetchedDocument{
				URL:       url,
				Body:      io.NopCloser(strings.NewReader(body)),
				FetchedAt: time.Now().UTC(),
			}, nil
		}
	}
	return nil, fmt.Errorf("unexpected status code: 404")
}

func wpSource() SourceConfig {
	return SourceConfig{
		ID:         "forever_manchester",
		Name:       "Forever Manchester",
		Funder:     "Forever Manchester",
		FunderType: "trust",
		Strategy:   "wordpress",
		BaseURL:    "https://forevermanchester.com",
		Local:      true,
		Sectors:    []string{"community"},
	}
}

func TestWordPressAdapterFetch(t *testing.T) {
	page1 := `[
	  {
	    "id": 101,
	    "date": "2026-01-10T09:00:00",
	    "link": "https://forevermanchester.com/captain-fund-open/",
	    "title": {"rendered": "Captain Manchester&#8217;s Magical Fund Open"},
	    "content": {"rendered": "<p>Grants of £500 to £1,000. Applications close 30 June 2030.</p>"},
	    "excerpt": {"rendered": "<p>Small grants for community groups.</p>"}
	  }
	]`

	fetcher := &stubFetcher{responses: map[string]string{
		"?page=1&": page1,
		"?page=2&": `[]`,
	}}

	a := newWordPressAdapter(wpSource(), fetcher, zap.NewNop())
	grants, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, grants, 1)

	g := grants[0]
	assert.Equal(t, "forever_manchester_captain-fund-open", g.ExternalID)
	assert.Equal(t, "forever_manchester", g.Source)
	assert.True(t, g.IsLocal)
	assert.Contains(t, g.Description, "Small grants for community groups.")

	require.NotNil(t, g.AmountMin)
	require.NotNil(t, g.AmountMax)
	assert.Equal(t, 500.0, *g.AmountMin)
	assert.Equal(t, 1000.0, *g.AmountMax)

	require.NotNil(t, g.Deadline)
	assert.Equal(t, time.Date(2030, 6, 30, 23, 59, 59, 0, time.UTC), g.Deadline.UTC())

	// The wp-json path is derived from the site base URL.
	require.NotEmpty(t, fetcher.requests)
	assert.Contains(t, fetcher.requests[0], "/wp-json/wp/v2/posts")
}

func TestWordPressAdapterEndOfPaginationAfterFirstPage(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string]string{
			"page=1": `[{"id": 1, "link": "https://forevermanchester.com/fund-a/", "title": {"rendered": "Fund A"}, "content": {"rendered": "Apply at any time."}, "excerpt": {"rendered": ""}}]`,
		},
	}

	a := newWordPressAdapter(wpSource(), fetcher, zap.NewNop())
	grants, err := a.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].IsRolling)
	assert.Nil(t, grants[0].Deadline)
}

func TestWordPressAdapterTransportFailure(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{"page=1": errors.New("dial tcp: timeout")}}

	a := newWordPressAdapter(wpSource(), fetcher, zap.NewNop())
	_, err := a.Fetch(context.Background())
	require.Error(t, err)

	var ce *CrawlError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrKindTransport, ce.Kind)
}

func TestWordPressAdapterEmptyFeed(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{"page=1": `[]`}}

	a := newWordPressAdapter(wpSource(), fetcher, zap.NewNop())
	_, err := a.Fetch(context.Background())

	var ce *CrawlError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrKindEmpty, ce.Kind)
}
