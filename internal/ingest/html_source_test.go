package ingest

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listPageHTML = `
<html><body>
  <section class="funds">
    <h2>Open funds</h2>
    <article class="fund">
      <h3>Community Buildings Fund</h3>
      <a class="fund__link" href="/funds/community-buildings/">More</a>
      <p>Capital grants of £2,000 to £25,000 for village halls.</p>
      <span class="fund__deadline">Closing date: 14 May 2026</span>
    </article>
    <article class="fund">
      <h3>Green Spaces Fund</h3>
      <a class="fund__link" href="/funds/green-spaces/">More</a>
      <p>Apply at any time.</p>
    </article>
  </section>
  <section class="funds">
    <h2>Recently closed</h2>
    <article class="fund">
      <h3>Winter Hardship Fund</h3>
      <a class="fund__link" href="/funds/winter-hardship/">More</a>
    </article>
  </section>
</body></html>`

func testSelectors() SelectorConfig {
	return SelectorConfig{
		Section:        "section.funds",
		SectionHeading: "h2",
		OpenLabels:     []string{"Open funds"},
		Container:      "article.fund",
		Title:          "h3",
		Link:           "a.fund__link",
		Summary:        "p",
		Deadline:       "span.fund__deadline",
	}
}

func TestExtractListItem(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listPageHTML))
	require.NoError(t, err)

	sel := testSelectors()
	var items []listItem
	doc.Find(sel.Container).Each(func(_ int, s *goquery.Selection) {
		items = append(items, extractListItem(s, sel))
	})

	require.Len(t, items, 3)
	assert.Equal(t, "Community Buildings Fund", items[0].title)
	assert.Equal(t, "/funds/community-buildings/", items[0].link)
	assert.Equal(t, "Capital grants of £2,000 to £25,000 for village halls.", items[0].summary)
	assert.Equal(t, "Closing date: 14 May 2026", items[0].deadline)

	assert.Equal(t, "Green Spaces Fund", items[1].title)
	assert.Empty(t, items[1].deadline)
}

func TestSectionFilteringKeepsOnlyOpenFunds(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listPageHTML))
	require.NoError(t, err)

	sel := testSelectors()
	var titles []string
	doc.Find(sel.Section).Each(func(_ int, section *goquery.Selection) {
		heading := section.Find(sel.SectionHeading).First().Text()
		if !labelMatchesFold(heading, sel.OpenLabels) {
			return
		}
		section.Find(sel.Container).Each(func(_ int, s *goquery.Selection) {
			titles = append(titles, extractListItem(s, sel).title)
		})
	})

	assert.Equal(t, []string{"Community Buildings Fund", "Green Spaces Fund"}, titles)
}

func TestExtractListItemLinkOnContainer(t *testing.T) {
	html := `<li class="grant-listing" href="/g/one"><a href="/grants/one">One Grant</a></li>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	sel := SelectorConfig{Container: "li.grant-listing", Title: "a", Link: "a"}
	item := extractListItem(doc.Find(sel.Container).First(), sel)
	assert.Equal(t, "One Grant", item.title)
	assert.Equal(t, "/grants/one", item.link)
}

func TestLabelMatchesFold(t *testing.T) {
	labels := []string{"Open funds", "Currently open"}
	assert.True(t, labelMatchesFold("Open Funds", labels))
	assert.True(t, labelMatchesFold("Funds currently open for applications", labels))
	assert.False(t, labelMatchesFold("Recently closed", labels))
	assert.False(t, labelMatchesFold("", labels))
}
