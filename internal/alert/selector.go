package alert

import (
	"sort"

	"github.com/hbarker/grant-radar/internal/match"
	"github.com/hbarker/grant-radar/internal/models"
)

// Candidate pairs a grant with its match result for a digest.
type Candidate struct {
	Grant  models.StoredGrant `json:"grant"`
	Result models.MatchResult `json:"result"`
}

// Selector picks the grants worth alerting an organisation about: unseen,
// above the score threshold, best first, bounded to a digest-sized list.
type Selector struct {
	scorer   *match.Scorer
	minScore int
	topN     int
}

func NewSelector(scorer *match.Scorer, minScore, topN int) *Selector {
	if topN <= 0 {
		topN = 8
	}
	return &Selector{scorer: scorer, minScore: minScore, topN: topN}
}

// Select scores every grant against the profile and returns the top
// candidates. Grants already notified to the organisation are skipped before
// scoring. Ordering is deterministic: score descending, then external ID.
func (s *Selector) Select(grants []models.StoredGrant, profile models.OrganisationProfile, signals models.FeedbackSignals, notified map[string]bool) []Candidate {
	var candidates []Candidate
	for _, g := range grants {
		if notified[g.ExternalID] {
			continue
		}
		result := s.scorer.Score(g.NormalizedGrant, profile, signals)
		if result.Score < s.minScore {
			continue
		}
		candidates = append(candidates, Candidate{Grant: g, Result: result})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Result.Score != candidates[j].Result.Score {
			return candidates[i].Result.Score > candidates[j].Result.Score
		}
		return candidates[i].Grant.ExternalID < candidates[j].Grant.ExternalID
	})

	if len(candidates) > s.topN {
		candidates = candidates[:s.topN]
	}
	return candidates
}

// ExternalIDs lists the selected grants' identifiers, in digest order, for
// the caller to record once the notification is confirmed sent.
func ExternalIDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Grant.ExternalID
	}
	return ids
}
