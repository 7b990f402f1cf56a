package models

import (
	"time"
)

// FunderType classifies who is giving the money.
type FunderType string

const (
	FunderTrust              FunderType = "trust"
	FunderLocalAuthority     FunderType = "local_authority"
	FunderHousingAssociation FunderType = "housing_association"
	FunderCorporate          FunderType = "corporate"
	FunderLottery            FunderType = "lottery"
	FunderGovernment         FunderType = "government"
	FunderOther              FunderType = "other"
)

// NormalizedGrant is the canonical record every source adapter maps into.
// ExternalID is "{source}_{slug}" and is the dedup key: re-crawling the same
// live listing must always produce the same ID.
type NormalizedGrant struct {
	ExternalID          string                 `json:"external_id"`
	Source              string                 `json:"source"`
	Title               string                 `json:"title"`
	Funder              string                 `json:"funder"`
	FunderType          FunderType             `json:"funder_type"`
	Description         string                 `json:"description"`
	AmountMin           *float64               `json:"amount_min"`
	AmountMax           *float64               `json:"amount_max"`
	Deadline            *time.Time             `json:"deadline"`
	IsRolling           bool                   `json:"is_rolling"`
	IsLocal             bool                   `json:"is_local"`
	Sectors             []string               `json:"sectors"`
	EligibilityCriteria []string               `json:"eligibility_criteria"`
	ApplyURL            string                 `json:"apply_url"`
	RawPayload          map[string]interface{} `json:"raw_payload,omitempty"`
}

// StoredGrant is a NormalizedGrant plus lifecycle metadata owned by the store.
type StoredGrant struct {
	NormalizedGrant
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	IsActive    bool      `json:"is_active"`
}

// OrganisationProfile describes the applicant. It is an input to scoring,
// never mutated by the core.
type OrganisationProfile struct {
	PrimaryLocation       string       `json:"primary_location"` // "Town, Region, Nation"
	OrgType               string       `json:"org_type"`         // charity, cic, social_enterprise, other
	AnnualIncomeBand      string       `json:"annual_income_band"`
	Themes                []string     `json:"themes"`
	AreasOfWork           []string     `json:"areas_of_work"`
	Beneficiaries         []string     `json:"beneficiaries"`
	Mission               string       `json:"mission"`
	KeyOutcomes           string       `json:"key_outcomes"`
	MinGrantTarget        *float64     `json:"min_grant_target"`
	MaxGrantTarget        *float64     `json:"max_grant_target"`
	FunderTypePreferences []FunderType `json:"funder_type_preferences"`
}

// ScoreBreakdown holds the per-dimension components of a match score.
// Each dimension has its own cap; the caps sum to 100.
type ScoreBreakdown struct {
	Location    int `json:"location"`
	Themes      int `json:"themes"`
	GrantSize   int `json:"grant_size"`
	FunderType  int `json:"funder_type"`
	Eligibility int `json:"eligibility"`
}

// MatchResult is the scorer's output. Ephemeral: computed on demand and
// never persisted by the core.
type MatchResult struct {
	Score           int            `json:"score"` // 0-100
	Reason          string         `json:"reason"`
	Breakdown       ScoreBreakdown `json:"breakdown"`
	FeedbackApplied bool           `json:"feedback_applied"`
	FeedbackDelta   int            `json:"feedback_delta"`
}

// FeedbackVerdict is an organisation's reaction to a specific grant.
type FeedbackVerdict string

const (
	VerdictLiked    FeedbackVerdict = "liked"
	VerdictDisliked FeedbackVerdict = "disliked"
)

// FeedbackEvent records one approve/reject action against a grant.
type FeedbackEvent struct {
	OrgID      string          `json:"org_id"`
	ExternalID string          `json:"external_id"`
	Sectors    []string        `json:"sectors"`
	Verdict    FeedbackVerdict `json:"verdict"`
	CreatedAt  time.Time       `json:"created_at"`
}

// FeedbackSignals are aggregated per-sector weights derived from an
// organisation's FeedbackEvents, passed into the scorer as an optional input.
type FeedbackSignals struct {
	SectorBoosts    map[string]float64 `json:"sector_boosts"`
	SectorPenalties map[string]float64 `json:"sector_penalties"`
}

// Empty reports whether the signals carry no weight at all.
func (f FeedbackSignals) Empty() bool {
	return len(f.SectorBoosts) == 0 && len(f.SectorPenalties) == 0
}
