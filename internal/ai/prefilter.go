package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hbarker/grant-radar/internal/models"
)

// CandidateGrant is the compact grant view handed to the oracle.
type CandidateGrant struct {
	GrantID     string   `json:"grantId"`
	Title       string   `json:"title"`
	Funder      string   `json:"funder"`
	Description string   `json:"description"`
	Sectors     []string `json:"sectors,omitempty"`
	IsLocal     bool     `json:"isLocal"`
}

const (
	maxCandidateDescription = 400
	defaultPrefilterTopN    = 20
)

// Prefilter narrows stored grants to the candidates worth sending to the
// oracle: cheap keyword scoring against the query plus a small bonus for
// local grants matching the organisation's location. Deterministic order:
// score descending, external ID ascending.
func Prefilter(grants []models.StoredGrant, query string, profile models.OrganisationProfile, topN int) []CandidateGrant {
	if topN <= 0 {
		topN = defaultPrefilterTopN
	}

	queryWords := keywordSet(query)

	type scored struct {
		grant models.StoredGrant
		score int
	}

	var candidates []scored
	for _, g := range grants {
		text := strings.ToLower(g.Title + " " + g.Description + " " + strings.Join(g.Sectors, " "))

		score := 0
		for word := range queryWords {
			if strings.Contains(text, word) {
				score += 2
			}
		}
		if g.IsLocal && locationMatches(text, profile.PrimaryLocation) {
			score++
		}

		if score == 0 && len(queryWords) > 0 {
			continue
		}
		candidates = append(candidates, scored{grant: g, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].grant.ExternalID < candidates[j].grant.ExternalID
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	out := make([]CandidateGrant, len(candidates))
	for i, c := range candidates {
		desc := c.grant.Description
		if len(desc) > maxCandidateDescription {
			desc = desc[:maxCandidateDescription]
		}
		out[i] = CandidateGrant{
			GrantID:     c.grant.ExternalID,
			Title:       c.grant.Title,
			Funder:      c.grant.Funder,
			Description: desc,
			Sectors:     c.grant.Sectors,
			IsLocal:     c.grant.IsLocal,
		}
	}
	return out
}

func keywordSet(query string) map[string]bool {
	words := map[string]bool{}
	for _, raw := range strings.Fields(strings.ToLower(query)) {
		word := strings.Trim(raw, ".,;:()'\"!?")
		if len(word) >= 3 {
			words[word] = true
		}
	}
	return words
}

func locationMatches(text, location string) bool {
	for _, part := range strings.Split(strings.ToLower(location), ",") {
		token := strings.TrimSpace(part)
		if len(token) >= 3 && strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// BuildOrgContext serializes a profile into the short plain-text block the
// oracle prompt embeds.
func BuildOrgContext(p models.OrganisationProfile) string {
	var b strings.Builder
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	write("Location", p.PrimaryLocation)
	write("Type", p.OrgType)
	write("Annual income band", p.AnnualIncomeBand)
	write("Themes", strings.Join(p.Themes, ", "))
	write("Areas of work", strings.Join(p.AreasOfWork, ", "))
	write("Beneficiaries", strings.Join(p.Beneficiaries, ", "))
	write("Mission", p.Mission)
	write("Key outcomes", p.KeyOutcomes)
	return strings.TrimSpace(b.String())
}
