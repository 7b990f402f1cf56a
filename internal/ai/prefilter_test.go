package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbarker/grant-radar/internal/models"
)

func candidateFixture(id, title, description string, local bool) models.StoredGrant {
	return models.StoredGrant{
		NormalizedGrant: models.NormalizedGrant{
			ExternalID:  id,
			Title:       title,
			Description: description,
			IsLocal:     local,
		},
	}
}

func TestPrefilterKeywordScoring(t *testing.T) {
	grants := []models.StoredGrant{
		candidateFixture("a_roof", "Roof Repair Fund", "Capital grants for roof repairs.", false),
		candidateFixture("b_youth", "Youth Fund", "Youth counselling and wellbeing projects.", false),
		candidateFixture("c_both", "Youth Buildings Fund", "Roof repairs for youth clubs.", false),
	}

	got := Prefilter(grants, "youth roof", models.OrganisationProfile{}, 10)

	require.Len(t, got, 3)
	assert.Equal(t, "c_both", got[0].GrantID, "two keyword hits outrank one")
}

func TestPrefilterDropsNonMatching(t *testing.T) {
	grants := []models.StoredGrant{
		candidateFixture("a_art", "Arts Fund", "Grants for galleries.", false),
	}
	got := Prefilter(grants, "football pitches", models.OrganisationProfile{}, 10)
	assert.Empty(t, got)
}

func TestPrefilterLocalBonusBreaksTies(t *testing.T) {
	profile := models.OrganisationProfile{PrimaryLocation: "Manchester, England"}
	grants := []models.StoredGrant{
		candidateFixture("a_national", "Youth Fund", "Youth projects nationwide.", false),
		candidateFixture("b_local", "Youth Fund Manchester", "Youth projects in Manchester.", true),
	}

	got := Prefilter(grants, "youth", profile, 10)

	require.Len(t, got, 2)
	assert.Equal(t, "b_local", got[0].GrantID)
}

func TestPrefilterTopNAndTruncation(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	grants := []models.StoredGrant{
		candidateFixture("a", "Youth One", string(long), false),
		candidateFixture("b", "Youth Two", "short", false),
		candidateFixture("c", "Youth Three", "short", false),
	}

	got := Prefilter(grants, "youth", models.OrganisationProfile{}, 2)

	require.Len(t, got, 2)
	assert.LessOrEqual(t, len(got[0].Description), maxCandidateDescription)
}

func TestParseRankingFiltersUnknownIDs(t *testing.T) {
	candidates := []CandidateGrant{{GrantID: "real_1"}, {GrantID: "real_2"}}

	raw := `{"results": [
		{"grantId": "real_2", "score": 140, "reason": "strong fit"},
		{"grantId": "hallucinated", "score": 90, "reason": "made up"},
		{"grantId": "real_1", "score": -5, "reason": "weak"}
	]}`

	got, err := parseRanking(raw, candidates)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "real_2", got[0].GrantID)
	assert.Equal(t, 100, got[0].Score, "scores clamp to 0-100")
	assert.Equal(t, 0, got[1].Score)
}

func TestParseRankingAcceptsBareArray(t *testing.T) {
	candidates := []CandidateGrant{{GrantID: "real_1"}}
	got, err := parseRanking(`[{"grantId": "real_1", "score": 80, "reason": "fits"}]`, candidates)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 80, got[0].Score)
}

func TestBuildOrgContext(t *testing.T) {
	p := models.OrganisationProfile{
		PrimaryLocation: "Manchester, England",
		OrgType:         "charity",
		Themes:          []string{"youth", "mental health"},
	}
	ctx := BuildOrgContext(p)
	assert.Contains(t, ctx, "Location: Manchester, England")
	assert.Contains(t, ctx, "Themes: youth, mental health")
	assert.NotContains(t, ctx, "Mission:")
}
