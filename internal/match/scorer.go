package match

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hbarker/grant-radar/internal/models"
)

// Scorer computes match scores under one weights policy. It is pure: no
// network, no clock, no mutation of its inputs, so identical inputs always
// produce identical results.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

// Score rates one grant against one organisation profile. FeedbackSignals
// may be zero-valued when the organisation has no history.
func (s *Scorer) Score(g models.NormalizedGrant, p models.OrganisationProfile, signals models.FeedbackSignals) models.MatchResult {
	text := grantText(g)
	var reasons []string

	location := s.scoreLocation(g, p, text, &reasons)
	themes := s.scoreThemes(g, p, text, &reasons)
	size := s.scoreSize(g, p, &reasons)
	funder := s.scoreFunderType(g, p, &reasons)
	eligibility := s.scoreEligibility(g, p, &reasons)

	total := location + themes + size + funder + eligibility

	delta := s.feedbackDelta(g, signals)
	total += delta
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return models.MatchResult{
		Score: total,
		Breakdown: models.ScoreBreakdown{
			Location:    location,
			Themes:      themes,
			GrantSize:   size,
			FunderType:  funder,
			Eligibility: eligibility,
		},
		Reason:          buildReason(reasons, total),
		FeedbackApplied: delta != 0,
		FeedbackDelta:   delta,
	}
}

// grantText is the lowercased haystack the text heuristics search.
func grantText(g models.NormalizedGrant) string {
	parts := []string{g.Title, g.Description}
	parts = append(parts, g.EligibilityCriteria...)
	return strings.ToLower(strings.Join(parts, " "))
}

func (s *Scorer) scoreLocation(g models.NormalizedGrant, p models.OrganisationProfile, text string, reasons *[]string) int {
	if !g.IsLocal {
		return s.w.LocationNationalBase
	}

	for _, token := range locationTokens(p.PrimaryLocation) {
		if strings.Contains(text, token) {
			*reasons = append(*reasons, "Local match for "+titleToken(token))
			return s.w.LocationLocalMatched
		}
	}
	return s.w.LocationLocalUnmatched
}

// locationTokens splits "Town, Region, Nation" into lowercase search tokens.
func locationTokens(location string) []string {
	var tokens []string
	for _, part := range strings.Split(location, ",") {
		t := strings.ToLower(strings.TrimSpace(part))
		if len(t) >= 3 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func titleToken(token string) string {
	words := strings.Fields(token)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// themeTerm is one weighted needle for the fuzzy containment test.
type themeTerm struct {
	term   string
	weight float64
}

func (s *Scorer) scoreThemes(g models.NormalizedGrant, p models.OrganisationProfile, text string, reasons *[]string) int {
	terms := s.buildTermSet(p)
	if len(terms) == 0 {
		return s.w.ThemeNeutral
	}

	var totalWeight, hitWeight float64
	for _, t := range terms {
		totalWeight += t.weight
		if s.termHits(t.term, text) {
			hitWeight += t.weight
		}
	}

	score := hitWeight / totalWeight * float64(s.w.ThemeCap)

	overlap := sectorOverlap(g.Sectors, p)
	score += float64(overlap) * s.w.ThemeSectorOverlapBoost

	result := int(math.Round(score))
	if result > s.w.ThemeCap {
		result = s.w.ThemeCap
	}

	if totalWeight > 0 && hitWeight/totalWeight >= 0.5 {
		*reasons = append(*reasons, "Strong theme match")
	} else if overlap > 0 {
		*reasons = append(*reasons, "Covers sectors you work in")
	}
	return result
}

// buildTermSet collects the organisation's declared themes at full weight and
// a bounded number of significant mission/outcome words at reduced weight.
// Order is deterministic: declared order first, then text order.
func (s *Scorer) buildTermSet(p models.OrganisationProfile) []themeTerm {
	var terms []themeTerm
	seen := map[string]bool{}

	addExplicit := func(items []string) {
		for _, item := range items {
			t := strings.ToLower(strings.TrimSpace(item))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			terms = append(terms, themeTerm{term: t, weight: s.w.ThemeExplicitWeight})
		}
	}
	addExplicit(p.Themes)
	addExplicit(p.AreasOfWork)
	addExplicit(p.Beneficiaries)

	derived := 0
	for _, word := range significantWords(p.Mission + " " + p.KeyOutcomes) {
		if derived >= s.w.ThemeMaxDerivedTerms {
			break
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, themeTerm{term: word, weight: s.w.ThemeDerivedWeight})
		derived++
	}

	return terms
}

var themeStopWords = map[string]bool{
	"about": true, "across": true, "after": true, "against": true,
	"their": true, "there": true, "these": true, "those": true, "through": true,
	"which": true, "while": true, "would": true, "could": true, "should": true,
	"being": true, "between": true, "every": true, "other": true, "where": true,
	"people": true, "support": true, "provide": true, "deliver": true,
	"working": true, "services": true, "organisation": true,
}

// significantWords extracts candidate theme words from free text: length 5
// or more, not a stop word, in order of first appearance.
func significantWords(text string) []string {
	var words []string
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,;:()'\"!?-")
		if len(word) < 5 || themeStopWords[word] {
			continue
		}
		words = append(words, word)
	}
	return words
}

// termHits applies the fuzzy containment test: a term hits when any of its
// words at or above the minimum length appears as a substring of the text.
func (s *Scorer) termHits(term, text string) bool {
	for _, word := range strings.Fields(term) {
		if len(word) >= s.w.ThemeTermMinWordLen && strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func sectorOverlap(sectors []string, p models.OrganisationProfile) int {
	profileTags := map[string]bool{}
	for _, t := range p.Themes {
		profileTags[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, t := range p.AreasOfWork {
		profileTags[strings.ToLower(strings.TrimSpace(t))] = true
	}

	overlap := 0
	for _, sector := range sectors {
		if profileTags[strings.ToLower(strings.TrimSpace(sector))] {
			overlap++
		}
	}
	return overlap
}

func (s *Scorer) scoreSize(g models.NormalizedGrant, p models.OrganisationProfile, reasons *[]string) int {
	grantMax := g.AmountMax
	if grantMax == nil {
		grantMax = g.AmountMin
	}

	if p.MinGrantTarget != nil || p.MaxGrantTarget != nil {
		return s.scoreSizeAgainstTarget(g, p, grantMax, reasons)
	}

	if grantMax == nil {
		return s.w.SizeUnknown
	}

	midpoint := incomeBandMidpoint(p.AnnualIncomeBand)
	if midpoint <= 0 {
		return s.w.SizeUnknown
	}

	ratio := *grantMax / midpoint
	switch {
	case ratio < s.w.SizeRatioTiny:
		return s.w.SizeTinyScore
	case ratio <= s.w.SizeRatioIdealMax:
		*reasons = append(*reasons, "Grant size suits your income level")
		return s.w.SizeIdealScore
	case ratio <= s.w.SizeRatioGoodMax:
		return s.w.SizeGoodScore
	case ratio <= s.w.SizeRatioRiskyMax:
		return s.w.SizeRiskyScore
	default:
		return s.w.SizeMismatchScore
	}
}

func (s *Scorer) scoreSizeAgainstTarget(g models.NormalizedGrant, p models.OrganisationProfile, grantMax *float64, reasons *[]string) int {
	grantMin := g.AmountMin
	if grantMin == nil {
		grantMin = g.AmountMax
	}
	if grantMin == nil || grantMax == nil {
		return s.w.SizeUnknown
	}

	floor := 0.0
	if p.MinGrantTarget != nil {
		floor = *p.MinGrantTarget
	}
	ceiling := math.Inf(1)
	if p.MaxGrantTarget != nil {
		ceiling = *p.MaxGrantTarget
	}

	switch {
	case *grantMax < floor:
		return s.w.SizeBelowTarget
	case *grantMin > ceiling:
		return s.w.SizeAboveTarget
	default:
		*reasons = append(*reasons, "Within your target grant size")
		return s.w.SizeTargetOverlap
	}
}

// incomeBandMidpoint maps an income band label to a representative figure.
// Bands are stored as canonical tokens but older profiles carry prose like
// "£100,000 - £500,000", so both forms parse.
func incomeBandMidpoint(band string) float64 {
	switch strings.ToLower(strings.TrimSpace(band)) {
	case "under_10k":
		return 5000
	case "10k_100k":
		return 55000
	case "100k_500k":
		return 300000
	case "500k_1m":
		return 750000
	case "over_1m":
		return 2000000
	}

	nums := poundFigures(band)
	switch len(nums) {
	case 0:
		return 0
	case 1:
		return nums[0]
	default:
		return (nums[0] + nums[1]) / 2
	}
}

func poundFigures(text string) []float64 {
	var nums []float64
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != ',' && r != '.'
	})
	for _, f := range fields {
		f = strings.ReplaceAll(f, ",", "")
		f = strings.Trim(f, ".")
		if f == "" {
			continue
		}
		var v float64
		if _, err := fmt.Sscanf(f, "%f", &v); err == nil && v > 0 {
			nums = append(nums, v)
			if len(nums) == 2 {
				break
			}
		}
	}
	return nums
}

func (s *Scorer) scoreFunderType(g models.NormalizedGrant, p models.OrganisationProfile, reasons *[]string) int {
	if len(p.FunderTypePreferences) == 0 {
		return s.w.FunderNeutral
	}
	for _, pref := range p.FunderTypePreferences {
		if pref == g.FunderType {
			*reasons = append(*reasons, "From a funder type you prefer")
			return s.w.FunderPreferred
		}
	}
	return s.w.FunderExcluded
}

var ukNations = []string{"england", "scotland", "wales", "northern ireland"}

var charityOnlyPhrases = []string{
	"registered charities only", "charities only",
	"must be a registered charity", "open only to registered charities",
}

func (s *Scorer) scoreEligibility(g models.NormalizedGrant, p models.OrganisationProfile, reasons *[]string) int {
	var score int
	switch strings.ToLower(p.OrgType) {
	case "charity":
		score = s.w.EligCharityBase
	case "cic":
		score = s.w.EligCICBase
	case "social_enterprise":
		score = s.w.EligSocialEnterpriseBase
	default:
		score = s.w.EligOtherBase
	}

	eligText := strings.ToLower(strings.Join(g.EligibilityCriteria, " "))
	if eligText != "" {
		if s.eligibilityNamesOrg(eligText, p) {
			score += s.w.EligNamedBoost
			*reasons = append(*reasons, "Eligibility criteria fit your organisation")
		}
		if nation := restrictedNation(eligText); nation != "" &&
			!strings.Contains(strings.ToLower(p.PrimaryLocation), nation) {
			score -= s.w.EligWrongNationPenalty
		}
		if s.charityOnly(eligText) && strings.ToLower(p.OrgType) != "charity" {
			score -= s.w.EligCharityOnlyPenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > s.w.EligibilityCap {
		score = s.w.EligibilityCap
	}
	return score
}

// eligibilityNamesOrg reports whether the eligibility text explicitly names
// the organisation's legal form or its location.
func (s *Scorer) eligibilityNamesOrg(eligText string, p models.OrganisationProfile) bool {
	var formHints []string
	switch strings.ToLower(p.OrgType) {
	case "charity":
		formHints = []string{"registered charit", "charitable"}
	case "cic":
		formHints = []string{"community interest compan", "cic"}
	case "social_enterprise":
		formHints = []string{"social enterprise"}
	}
	for _, hint := range formHints {
		if strings.Contains(eligText, hint) {
			return true
		}
	}
	for _, token := range locationTokens(p.PrimaryLocation) {
		if strings.Contains(eligText, token) {
			return true
		}
	}
	return false
}

// restrictedNation returns the nation the eligibility text restricts to, or
// empty when zero or several nations are named. Several named nations reads
// as a wide programme, not a restriction.
func restrictedNation(eligText string) string {
	var found string
	for _, nation := range ukNations {
		if strings.Contains(eligText, nation) {
			if found != "" {
				return ""
			}
			found = nation
		}
	}
	return found
}

func (s *Scorer) charityOnly(eligText string) bool {
	for _, phrase := range charityOnlyPhrases {
		if strings.Contains(eligText, phrase) {
			return true
		}
	}
	return false
}

// feedbackDelta turns accumulated per-sector boosts and penalties into one
// bounded post-hoc adjustment.
func (s *Scorer) feedbackDelta(g models.NormalizedGrant, signals models.FeedbackSignals) int {
	if signals.Empty() {
		return 0
	}

	var delta float64
	for _, sector := range g.Sectors {
		key := strings.ToLower(strings.TrimSpace(sector))
		delta += signals.SectorBoosts[key]
		delta -= signals.SectorPenalties[key]
	}

	result := int(math.Round(delta))
	if result > s.w.FeedbackBoostCap {
		result = s.w.FeedbackBoostCap
	}
	if result < -s.w.FeedbackPenaltyCap {
		result = -s.w.FeedbackPenaltyCap
	}
	return result
}

// buildReason joins the accumulated clauses, falling back to a score-banded
// sentence when no dimension had anything specific to say.
func buildReason(reasons []string, score int) string {
	if len(reasons) > 0 {
		return strings.Join(reasons, ". ") + "."
	}
	switch {
	case score >= 75:
		return "Excellent overall fit for your organisation."
	case score >= 55:
		return "Good potential fit worth reviewing."
	case score >= 35:
		return "Partial fit; check the criteria carefully."
	default:
		return "Weak fit for your organisation."
	}
}
