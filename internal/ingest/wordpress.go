package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hbarker/grant-radar/internal/models"
)

// wordPressAdapter reads a funder's WordPress REST feed. Several smaller
// community funders publish their open rounds as plain blog posts, so the
// posts endpoint is the whole integration.
type wordPressAdapter struct {
	src     SourceConfig
	fetcher Fetcher
	log     *zap.Logger
}

func newWordPressAdapter(src SourceConfig, fetcher Fetcher, log *zap.Logger) *wordPressAdapter {
	return &wordPressAdapter{
		src:     src,
		fetcher: fetcher,
		log:     log.With(zap.String("source", src.ID)),
	}
}

func (a *wordPressAdapter) Source() string { return a.src.ID }

type wpPost struct {
	ID    int    `json:"id"`
	Date  string `json:"date"`
	Link  string `json:"link"`
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Content struct {
		Rendered string `json:"rendered"`
	} `json:"content"`
	Excerpt struct {
		Rendered string `json:"rendered"`
	} `json:"excerpt"`
}

const wpPerPage = 20

func (a *wordPressAdapter) Fetch(ctx context.Context) ([]models.NormalizedGrant, error) {
	apiURL := a.src.BaseURL
	if !strings.Contains(apiURL, "wp-json") {
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, parseError(a.src.ID, fmt.Errorf("invalid base URL: %w", err))
		}
		apiURL = strings.TrimRight(u.String(), "/") + "/wp-json/wp/v2/posts"
	}

	maxPages := a.src.MaxPages
	if maxPages == 0 {
		maxPages = 5
	}

	var grants []models.NormalizedGrant
	now := time.Now().UTC()
	fetchedAny := false

	for page := 1; page <= maxPages; page++ {
		pagedURL := fmt.Sprintf("%s?page=%d&per_page=%d", apiURL, page, wpPerPage)

		doc, err := a.fetcher.Fetch(ctx, pagedURL)
		if err != nil {
			// WordPress answers a page past the end with a 400, which the
			// fetcher surfaces as a status error. That is normal termination
			// once at least one page succeeded.
			if fetchedAny {
				break
			}
			return nil, transportError(a.src.ID, err)
		}

		body, err := io.ReadAll(doc.Body)
		doc.Body.Close()
		if err != nil {
			return nil, transportError(a.src.ID, fmt.Errorf("reading page %d: %w", page, err))
		}
		fetchedAny = true

		var posts []wpPost
		if err := json.Unmarshal(body, &posts); err != nil {
			return nil, parseError(a.src.ID, fmt.Errorf("decoding page %d: %w", page, err))
		}
		if len(posts) == 0 {
			break
		}

		for _, post := range posts {
			grants = append(grants, a.grantFromPost(post, now))
		}
	}

	if len(grants) == 0 {
		return nil, emptyResultError(a.src.ID)
	}
	return grants, nil
}

func (a *wordPressAdapter) grantFromPost(post wpPost, now time.Time) models.NormalizedGrant {
	title := htmlToText(post.Title.Rendered)
	body := htmlToText(post.Content.Rendered)
	excerpt := htmlToText(post.Excerpt.Rendered)

	description := body
	if excerpt != "" && !strings.Contains(body, excerpt) {
		description = excerpt + " " + body
	}

	g := models.NormalizedGrant{
		ExternalID:  ExternalID(a.src.ID, SlugFromURL(post.Link, title)),
		Source:      a.src.ID,
		Title:       title,
		Funder:      a.src.Funder,
		FunderType:  models.FunderType(a.src.FunderType),
		Description: description,
		IsLocal:     a.src.Local,
		Sectors:     append([]string(nil), a.src.Sectors...),
		ApplyURL:    post.Link,
		RawPayload: map[string]interface{}{
			"wp_post_id": post.ID,
			"posted_at":  post.Date,
		},
	}

	text := combinedText(title, description, nil)
	g.IsRolling = DetectRolling(text)
	if !g.IsRolling {
		g.Deadline = FindDeadlineInText(text, now)
	}
	g.AmountMin, g.AmountMax = ParseAmountRange(text)

	finalizeGrant(&g)
	return g
}
