package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/hbarker/grant-radar/internal/models"
)

// finalizeGrant applies the invariants every adapter output must satisfy
// before it reaches the store: plain-text fields, ordered amounts, deduped
// sectors, and a non-empty external ID. Adapters call this as their last step
// so the guarantees live in one place.
func finalizeGrant(g *models.NormalizedGrant) {
	g.Title = cleanText(g.Title)
	g.Funder = cleanText(g.Funder)
	g.Description = htmlToText(g.Description)

	if !utf8.ValidString(g.Description) {
		g.Description = strings.ToValidUTF8(g.Description, "")
	}

	if g.AmountMin != nil && g.AmountMax != nil && *g.AmountMin > *g.AmountMax {
		g.AmountMin, g.AmountMax = g.AmountMax, g.AmountMin
	}

	g.Sectors = mergeUniqueFold(nil, g.Sectors)
	g.EligibilityCriteria = mergeUniqueFold(nil, g.EligibilityCriteria)

	if g.IsRolling {
		g.Deadline = nil
	}

	if g.ExternalID == "" {
		g.ExternalID = ExternalID(g.Source, SlugFromURL(g.ApplyURL, g.Title))
	}

	if g.FunderType == "" {
		g.FunderType = models.FunderOther
	}
}
