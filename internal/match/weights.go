package match

// Weights holds every tunable constant of the scoring policy. The dimension
// caps sum to 100. Kept as one struct so tests can pin a policy and ops can
// tune it without touching scorer structure.
type Weights struct {
	// Location (cap 25).
	LocationCap            int
	LocationNationalBase   int
	LocationLocalMatched   int
	LocationLocalUnmatched int

	// Themes and work (cap 25).
	ThemeCap                int
	ThemeNeutral            int     // score when the profile declares no themes at all
	ThemeExplicitWeight     float64 // declared themes, areas of work, beneficiaries
	ThemeDerivedWeight      float64 // words mined from mission and outcomes text
	ThemeTermMinWordLen     int     // shortest word that can count as a fuzzy hit
	ThemeMaxDerivedTerms    int
	ThemeSectorOverlapBoost float64 // per exact sector-tag intersection

	// Grant size fit (cap 20).
	SizeCap           int
	SizeTargetOverlap int // grant range overlaps the stated target range
	SizeBelowTarget   int // grant strictly smaller than the target floor
	SizeAboveTarget   int // grant strictly larger than the target ceiling
	SizeUnknown       int // no target and no usable income band

	// Ratio bands comparing grant maximum to income-band midpoint.
	SizeRatioTiny     float64
	SizeRatioIdealMax float64
	SizeRatioGoodMax  float64
	SizeRatioRiskyMax float64
	SizeTinyScore     int
	SizeIdealScore    int
	SizeGoodScore     int
	SizeRiskyScore    int
	SizeMismatchScore int

	// Funder-type preference (cap 15).
	FunderCap       int
	FunderNeutral   int
	FunderPreferred int
	FunderExcluded  int

	// Eligibility / org-type fit (cap 15).
	EligibilityCap           int
	EligCharityBase          int
	EligCICBase              int
	EligSocialEnterpriseBase int
	EligOtherBase            int
	EligNamedBoost           int // legal form or location named in eligibility text
	EligWrongNationPenalty   int
	EligCharityOnlyPenalty   int

	// Post-hoc feedback adjustment, outside the dimension breakdown.
	FeedbackBoostCap       int
	FeedbackPenaltyCap     int
	FeedbackLikedWeight    float64
	FeedbackDislikedWeight float64
}

// DefaultWeights is the production scoring policy.
func DefaultWeights() Weights {
	return Weights{
		LocationCap:            25,
		LocationNationalBase:   10,
		LocationLocalMatched:   25,
		LocationLocalUnmatched: 18,

		ThemeCap:                25,
		ThemeNeutral:            8,
		ThemeExplicitWeight:     1.5,
		ThemeDerivedWeight:      0.8,
		ThemeTermMinWordLen:     4,
		ThemeMaxDerivedTerms:    10,
		ThemeSectorOverlapBoost: 4,

		SizeCap:           20,
		SizeTargetOverlap: 20,
		SizeBelowTarget:   3,
		SizeAboveTarget:   8,
		SizeUnknown:       15,

		SizeRatioTiny:     0.05,
		SizeRatioIdealMax: 0.6,
		SizeRatioGoodMax:  1.2,
		SizeRatioRiskyMax: 3.0,
		SizeTinyScore:     15,
		SizeIdealScore:    20,
		SizeGoodScore:     14,
		SizeRiskyScore:    8,
		SizeMismatchScore: 3,

		FunderCap:       15,
		FunderNeutral:   8,
		FunderPreferred: 15,
		FunderExcluded:  3,

		EligibilityCap:           15,
		EligCharityBase:          10,
		EligCICBase:              8,
		EligSocialEnterpriseBase: 7,
		EligOtherBase:            5,
		EligNamedBoost:           5,
		EligWrongNationPenalty:   4,
		EligCharityOnlyPenalty:   5,

		FeedbackBoostCap:       12,
		FeedbackPenaltyCap:     20,
		FeedbackLikedWeight:    3,
		FeedbackDislikedWeight: 2,
	}
}
