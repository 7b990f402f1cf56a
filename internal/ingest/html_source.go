package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/hbarker/grant-radar/internal/models"
)

// htmlListAdapter is the generic selector-driven strategy. One instance per
// configured source; the selector table in SourceConfig carries everything
// site-specific, so the same code crawls a council grants page and a trust's
// programme list.
type htmlListAdapter struct {
	src     SourceConfig
	fetcher Fetcher
	timeout time.Duration
	log     *zap.Logger
}

func newHTMLListAdapter(src SourceConfig, fetcher Fetcher, timeout time.Duration, log *zap.Logger) *htmlListAdapter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &htmlListAdapter{
		src:     src,
		fetcher: fetcher,
		timeout: timeout,
		log:     log.With(zap.String("source", src.ID)),
	}
}

func (a *htmlListAdapter) Source() string { return a.src.ID }

// listItem is what list-page extraction yields before detail enrichment.
type listItem struct {
	title    string
	link     string
	summary  string
	deadline string
	amount   string
}

func (a *htmlListAdapter) Fetch(ctx context.Context) ([]models.NormalizedGrant, error) {
	sel := a.src.Selectors
	if sel.Container == "" {
		return nil, parseError(a.src.ID, fmt.Errorf("selector 'container' is required"))
	}

	parsedBase, err := url.Parse(a.src.BaseURL)
	if err != nil {
		return nil, parseError(a.src.ID, fmt.Errorf("invalid base URL: %w", err))
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsedBase.Host),
		colly.UserAgent(defaultUserAgent),
		colly.DetectCharset(),
	)
	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       500 * time.Millisecond,
		RandomDelay: 250 * time.Millisecond,
	})
	collector.SetRequestTimeout(a.timeout)
	collector.Context = ctx

	var (
		items       []listItem
		nextPageURL string
		fetchErr    error
		pagesOK     int
	)

	extract := func(e *colly.HTMLElement) {
		item := extractListItem(e.DOM, sel)
		if item.title == "" || item.link == "" {
			return
		}
		item.link = e.Request.AbsoluteURL(item.link)
		items = append(items, item)
	}

	if sel.Section != "" {
		// Sources that mix "open" and "closed" lists on one page publish them
		// as parallel sections; only the one whose heading matches an open
		// label contributes items.
		collector.OnHTML(sel.Section, func(e *colly.HTMLElement) {
			heading := e.DOM.Find(sel.SectionHeading).First().Text()
			if len(sel.OpenLabels) > 0 && !labelMatchesFold(heading, sel.OpenLabels) {
				return
			}
			e.DOM.Find(sel.Container).Each(func(_ int, s *goquery.Selection) {
				item := extractListItem(s, sel)
				if item.title == "" || item.link == "" {
					return
				}
				item.link = e.Request.AbsoluteURL(item.link)
				items = append(items, item)
			})
		})
	} else {
		collector.OnHTML(sel.Container, extract)
	}

	if a.src.Pagination.Next != "" {
		collector.OnHTML(a.src.Pagination.Next, func(e *colly.HTMLElement) {
			nextPageURL = e.Request.AbsoluteURL(e.Attr("href"))
		})
	}

	collector.OnResponse(func(_ *colly.Response) { pagesOK++ })
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetching %s: %w", r.Request.URL, err)
	})

	maxPages := a.src.MaxPages
	if maxPages == 0 {
		maxPages = 1
	}

	visited := make(map[string]bool, maxPages)
	currentURL := a.src.BaseURL
	for page := 0; page < maxPages; page++ {
		if visited[currentURL] {
			a.log.Warn("pagination cycle detected, stopping", zap.String("url", currentURL))
			break
		}
		visited[currentURL] = true
		nextPageURL = ""

		a.log.Debug("fetching list page", zap.Int("page", page+1), zap.String("url", currentURL))
		if err := collector.Visit(currentURL); err != nil {
			fetchErr = fmt.Errorf("visiting %s: %w", currentURL, err)
			break
		}
		collector.Wait()

		if nextPageURL == "" {
			break
		}
		currentURL = nextPageURL
	}

	if pagesOK == 0 {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("no pages fetched")
		}
		return nil, transportError(a.src.ID, fetchErr)
	}
	if len(items) == 0 {
		return nil, emptyResultError(a.src.ID)
	}

	grants := make([]models.NormalizedGrant, 0, len(items))
	now := time.Now().UTC()
	for _, item := range items {
		g := a.buildGrant(ctx, item, now)
		grants = append(grants, g)
	}
	return grants, nil
}

// extractListItem reads one container element via the selector table.
func extractListItem(s *goquery.Selection, sel SelectorConfig) listItem {
	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}

	var link string
	if sel.Link == "" || sel.Link == "." {
		link = strings.TrimSpace(s.AttrOr(linkAttr, ""))
	} else {
		link = strings.TrimSpace(s.Find(sel.Link).First().AttrOr(linkAttr, ""))
	}

	item := listItem{
		title: cleanText(s.Find(sel.Title).First().Text()),
		link:  link,
	}
	if sel.Summary != "" {
		item.summary = cleanText(s.Find(sel.Summary).First().Text())
	}
	if sel.Deadline != "" {
		item.deadline = cleanText(s.Find(sel.Deadline).First().Text())
	}
	if sel.Amount != "" {
		item.amount = cleanText(s.Find(sel.Amount).First().Text())
	}
	return item
}

// buildGrant maps a list item to the normalized record, fetching the detail
// page when the source config enables it. Detail failures degrade to the
// list-level data rather than failing the source.
func (a *htmlListAdapter) buildGrant(ctx context.Context, item listItem, now time.Time) models.NormalizedGrant {
	g := models.NormalizedGrant{
		Source:      a.src.ID,
		Title:       item.title,
		Funder:      a.src.Funder,
		FunderType:  models.FunderType(a.src.FunderType),
		Description: item.summary,
		IsLocal:     a.src.Local,
		Sectors:     append([]string(nil), a.src.Sectors...),
		ApplyURL:    item.link,
	}
	g.ExternalID = ExternalID(a.src.ID, SlugFromURL(item.link, item.title))

	if item.amount != "" {
		g.AmountMin, g.AmountMax = ParseAmountRange(item.amount)
	}
	if item.deadline != "" {
		g.Deadline = ParseDeadline(item.deadline, now)
	}

	if a.src.Detail.Enabled {
		if err := a.enrichFromDetail(ctx, &g, now); err != nil {
			a.log.Warn("detail enrichment failed",
				zap.String("url", item.link), zap.Error(err))
		}
	}

	text := combinedText(g.Title, g.Description, g.EligibilityCriteria)
	if DetectRolling(text) {
		g.IsRolling = true
	}
	if g.Deadline == nil && !g.IsRolling {
		if d := FindDeadlineInText(text, now); d != nil {
			g.Deadline = d
		}
	}
	if g.AmountMin == nil && g.AmountMax == nil {
		g.AmountMin, g.AmountMax = ParseAmountRange(text)
	}

	finalizeGrant(&g)
	return g
}

// enrichFromDetail fetches the item's own page and overlays richer fields.
func (a *htmlListAdapter) enrichFromDetail(ctx context.Context, g *models.NormalizedGrant, now time.Time) error {
	doc, err := a.fetcher.Fetch(ctx, g.ApplyURL)
	if err != nil {
		return err
	}
	defer doc.Body.Close()

	htmlDoc, err := goquery.NewDocumentFromReader(doc.Body)
	if err != nil {
		return fmt.Errorf("parsing detail page: %w", err)
	}

	sel := a.src.Detail.Selectors

	if sel.Description != "" {
		if desc := cleanText(htmlDoc.Find(sel.Description).First().Text()); desc != "" {
			g.Description = desc
		}
	}
	if sel.Deadline != "" {
		if text := cleanText(htmlDoc.Find(sel.Deadline).First().Text()); text != "" {
			if d := ParseDeadline(text, now); d != nil {
				g.Deadline = d
			}
		}
	}
	if sel.Amount != "" {
		if text := cleanText(htmlDoc.Find(sel.Amount).First().Text()); text != "" {
			lo, hi := ParseAmountRange(text)
			if lo != nil || hi != nil {
				g.AmountMin, g.AmountMax = lo, hi
			}
		}
	}
	if sel.Eligibility != "" {
		if text := strings.TrimSpace(htmlDoc.Find(sel.Eligibility).First().Text()); text != "" {
			g.EligibilityCriteria = mergeUniqueFold(g.EligibilityCriteria, splitAndCleanList(text))
		}
	}
	if sel.Locations != "" {
		if text := cleanText(htmlDoc.Find(sel.Locations).First().Text()); text != "" {
			g.IsLocal = true
			g.Description = g.Description + " Areas covered: " + text
		}
	}

	if a.src.Detail.GuidancePDF && g.Deadline == nil {
		a.enrichFromGuidancePDF(ctx, g, htmlDoc, now)
	}
	return nil
}

// enrichFromGuidancePDF scans linked guidance documents for a deadline when
// the pages themselves never state one. Best effort only.
func (a *htmlListAdapter) enrichFromGuidancePDF(ctx context.Context, g *models.NormalizedGrant, htmlDoc *goquery.Document, now time.Time) {
	var pdfURL string
	htmlDoc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := s.AttrOr("href", "")
		if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(href)), ".pdf") {
			return true
		}
		base, err := url.Parse(g.ApplyURL)
		if err != nil {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		pdfURL = base.ResolveReference(ref).String()
		return false
	})
	if pdfURL == "" {
		return
	}

	deadline, err := ExtractPDFDeadline(ctx, a.fetcher, pdfURL, now)
	if err != nil {
		a.log.Debug("guidance pdf scan failed", zap.String("url", pdfURL), zap.Error(err))
		return
	}
	if deadline != nil {
		g.Deadline = deadline
	}
}
