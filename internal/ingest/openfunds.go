package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hbarker/grant-radar/internal/models"
)

// openFundsAdapter reads a 360Giving-shaped JSON register. Unlike the scraped
// sources the feed carries structured amounts and deadlines, so almost no
// text parsing is needed.
type openFundsAdapter struct {
	src     SourceConfig
	fetcher Fetcher
	log     *zap.Logger
}

func newOpenFundsAdapter(src SourceConfig, fetcher Fetcher, log *zap.Logger) *openFundsAdapter {
	return &openFundsAdapter{
		src:     src,
		fetcher: fetcher,
		log:     log.With(zap.String("source", src.ID)),
	}
}

func (a *openFundsAdapter) Source() string { return a.src.ID }

type openFundsResponse struct {
	Grants []openFundsRecord `json:"grants"`
	Meta   struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
}

type openFundsRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Funder      string   `json:"funder"`
	FunderType  string   `json:"funder_type"`
	Description string   `json:"description"`
	AmountMin   *float64 `json:"amount_min"`
	AmountMax   *float64 `json:"amount_max"`
	Deadline    string   `json:"deadline"` // RFC 3339, empty when rolling
	IsRolling   bool     `json:"is_rolling"`
	Regional    bool     `json:"regional"`
	Themes      []string `json:"themes"`
	Eligibility []string `json:"eligibility"`
	URL         string   `json:"url"`
}

const openFundsPerPage = 50

func (a *openFundsAdapter) Fetch(ctx context.Context) ([]models.NormalizedGrant, error) {
	maxPages := a.src.MaxPages
	if maxPages == 0 {
		maxPages = 1
	}

	var grants []models.NormalizedGrant
	now := time.Now().UTC()

	for page := 1; page <= maxPages; page++ {
		resp, err := a.fetchPage(ctx, page)
		if err != nil {
			if page > 1 {
				// Keep what earlier pages yielded; the orchestrator still
				// sees a partial success as a success.
				a.log.Warn("register page fetch failed, keeping earlier pages",
					zap.Int("page", page), zap.Error(err))
				break
			}
			return nil, err
		}

		for _, rec := range resp.Grants {
			g, err := a.grantFromRecord(rec, now)
			if err != nil {
				a.log.Warn("skipping malformed register record",
					zap.String("record_id", rec.ID), zap.Error(err))
				continue
			}
			grants = append(grants, g)
		}

		if resp.Meta.TotalPages != 0 && page >= resp.Meta.TotalPages {
			break
		}
		if len(resp.Grants) == 0 {
			break
		}
	}

	if len(grants) == 0 {
		return nil, emptyResultError(a.src.ID)
	}
	return grants, nil
}

func (a *openFundsAdapter) fetchPage(ctx context.Context, page int) (*openFundsResponse, error) {
	u, err := url.Parse(a.src.BaseURL)
	if err != nil {
		return nil, parseError(a.src.ID, fmt.Errorf("invalid base URL: %w", err))
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(openFundsPerPage))
	q.Set("status", "open")
	u.RawQuery = q.Encode()

	doc, err := a.fetcher.Fetch(ctx, u.String())
	if err != nil {
		return nil, transportError(a.src.ID, err)
	}
	defer doc.Body.Close()

	var resp openFundsResponse
	if err := json.NewDecoder(doc.Body).Decode(&resp); err != nil {
		return nil, parseError(a.src.ID, fmt.Errorf("decoding page %d: %w", page, err))
	}
	return &resp, nil
}

func (a *openFundsAdapter) grantFromRecord(rec openFundsRecord, now time.Time) (models.NormalizedGrant, error) {
	if rec.ID == "" || rec.Title == "" {
		return models.NormalizedGrant{}, fmt.Errorf("record missing id or title")
	}

	funderType := models.FunderType(rec.FunderType)
	switch funderType {
	case models.FunderTrust, models.FunderLocalAuthority, models.FunderHousingAssociation,
		models.FunderCorporate, models.FunderLottery, models.FunderGovernment:
	default:
		funderType = models.FunderType(a.src.FunderType)
	}

	g := models.NormalizedGrant{
		ExternalID:          ExternalID(a.src.ID, Slugify(rec.ID)),
		Source:              a.src.ID,
		Title:               rec.Title,
		Funder:              rec.Funder,
		FunderType:          funderType,
		Description:         rec.Description,
		AmountMin:           rec.AmountMin,
		AmountMax:           rec.AmountMax,
		IsRolling:           rec.IsRolling,
		IsLocal:             rec.Regional || a.src.Local,
		Sectors:             mergeUniqueFold(append([]string(nil), a.src.Sectors...), rec.Themes),
		EligibilityCriteria: rec.Eligibility,
		ApplyURL:            rec.URL,
		RawPayload: map[string]interface{}{
			"register_id": rec.ID,
		},
	}

	if !rec.IsRolling && rec.Deadline != "" {
		t, err := time.Parse(time.RFC3339, rec.Deadline)
		if err != nil {
			return models.NormalizedGrant{}, fmt.Errorf("bad deadline %q: %w", rec.Deadline, err)
		}
		if t.After(now) {
			utc := t.UTC()
			g.Deadline = &utc
		}
	}

	finalizeGrant(&g)
	return g, nil
}
