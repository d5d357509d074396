// Package rules holds the business-rule tables that drive validation,
// scoring, assignment and workflow. Tables are immutable once built; every
// lookup lower-cases its key and falls back to a documented default.
package rules

import (
	"slices"
	"strings"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
)

// SystemAssignment is returned when no underwriter pool can take a
// submission.
const SystemAssignment = "System Assignment"

// Underwriter tiers.
const (
	TierSenior   = "senior"
	TierStandard = "standard"
	TierJunior   = "junior"
)

// Required-field levels.
const (
	LevelBasic    = "basic"
	LevelStandard = "standard"
	LevelComplete = "complete"
)

const defaultIndustry = "other"

// TierRule routes an industry and coverage band to an underwriter pool.
type TierRule struct {
	Name        string   `yaml:"name" json:"name"`
	Industries  []string `yaml:"industries" json:"industries"`
	MinCoverage float64  `yaml:"min_coverage" json:"min_coverage"`
}

// Covers reports whether the tier handles industry (already lower-cased).
func (t TierRule) Covers(industry string) bool {
	return slices.Contains(t.Industries, industry)
}

// Tables is the full rule set. Build one with Default or Load; the zero
// value is not usable.
type Tables struct {
	coverageLimits  map[string]int64
	riskMultipliers map[string]float64
	sizeFactors     map[string]float64

	tiers []TierRule
	pools map[string][]string

	transitions map[model.Status][]model.Status

	requiredFields map[string][]string
	policyTypes    []string

	minCoverage        float64
	maxCoverage        float64
	highRiskIndustries []string
	blacklistedDomains []string

	priorityLow    float64
	priorityMedium float64

	templates map[string]MessageTemplate
}

// Option customizes a Tables value built by Default.
type Option func(*Tables)

// Default returns the built-in rule tables with opts applied.
func Default(opts ...Option) *Tables {
	t := &Tables{
		coverageLimits: map[string]int64{
			"healthcare":         25,
			"financial_services": 50,
			"banking":            50,
			"insurance":          40,
			"technology":         30,
			"manufacturing":      20,
			"retail":             15,
			"education":          10,
			"government":         35,
			"energy":             30,
			"telecommunications": 25,
			"legal":              20,
			"consulting":         10,
			"real_estate":        15,
			"transportation":     20,
			"hospitality":        15,
			"media":              15,
			"nonprofit":          5,
			"other":              10,
		},
		riskMultipliers: map[string]float64{
			"healthcare":         1.8,
			"financial_services": 1.9,
			"banking":            1.9,
			"insurance":          1.7,
			"technology":         1.6,
			"government":         1.8,
			"energy":             1.7,
			"telecommunications": 1.6,
			"legal":              1.5,
			"manufacturing":      1.3,
			"retail":             1.4,
			"education":          1.2,
			"consulting":         1.1,
			"real_estate":        1.0,
			"transportation":     1.2,
			"hospitality":        1.1,
			"media":              1.2,
			"nonprofit":          0.9,
			"other":              1.0,
		},
		sizeFactors: map[string]float64{
			"small":      0.8,
			"medium":     1.0,
			"large":      1.3,
			"enterprise": 1.6,
		},
		tiers: []TierRule{
			{
				Name:        TierSenior,
				Industries:  []string{"healthcare", "financial_services", "banking", "government"},
				MinCoverage: 20_000_000,
			},
			{
				Name:        TierStandard,
				Industries:  []string{"technology", "insurance", "energy", "telecommunications", "legal"},
				MinCoverage: 5_000_000,
			},
			{
				Name: TierJunior,
				Industries: []string{
					"manufacturing", "retail", "education", "consulting", "real_estate",
					"transportation", "hospitality", "media", "nonprofit", "other",
				},
			},
		},
		pools: map[string][]string{
			TierSenior:   {"Sarah Mitchell", "Robert Chen", "Maria Rodriguez"},
			TierStandard: {"James Wilson", "Lisa Thompson", "David Park", "Jennifer Lee"},
			TierJunior:   {"Michael Brown", "Ashley Davis", "Kevin Zhang", "Rachel Green", "Alex Johnson"},
		},
		transitions: map[model.Status][]model.Status{
			model.StatusPending:      {model.StatusAssigned, model.StatusRejected, model.StatusUnderReview},
			model.StatusAssigned:     {model.StatusUnderReview, model.StatusPendingInfo, model.StatusRejected},
			model.StatusUnderReview:  {model.StatusPendingInfo, model.StatusQuoteReady, model.StatusRejected, model.StatusAssigned},
			model.StatusPendingInfo:  {model.StatusUnderReview, model.StatusRejected},
			model.StatusQuoteReady:   {model.StatusApproved, model.StatusRejected, model.StatusUnderReview},
			model.StatusApproved:     {model.StatusPolicyIssued, model.StatusRejected},
			model.StatusRejected:     {},
			model.StatusPolicyIssued: {},
		},
		requiredFields: map[string][]string{
			LevelBasic: {"company_name", "industry", "contact_email"},
			LevelStandard: {
				"company_name", "industry", "contact_email", "company_size",
				"coverage_amount", "policy_type",
			},
			LevelComplete: {
				"company_name", "industry", "contact_email", "company_size",
				"coverage_amount", "policy_type", "revenue", "employee_count",
				"data_types", "security_measures",
			},
		},
		policyTypes: []string{
			"Cyber Liability",
			"Privacy Liability",
			"Data Breach Response",
			"Technology E&O",
			"Cyber Security",
			"First Party Cyber",
			"Third Party Cyber",
			"cyber",
			"Cyber",
			"CYBER",
		},
		minCoverage:        100_000,
		maxCoverage:        100_000_000,
		blacklistedDomains: []string{"spam.com", "test.com", "fake.com"},
		priorityLow:        0.3,
		priorityMedium:     0.6,
		templates:          defaultTemplates(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CoverageLimitMillions returns the per-industry coverage ceiling in
// millions of dollars. Unknown industries get the "other" limit.
func (t *Tables) CoverageLimitMillions(industry any) int64 {
	if v, ok := t.coverageLimits[normalize.ToLowerSafe(industry)]; ok {
		return v
	}
	return t.coverageLimits[defaultIndustry]
}

// CoverageLimit returns the per-industry coverage ceiling in dollars.
func (t *Tables) CoverageLimit(industry any) int64 {
	return t.CoverageLimitMillions(industry) * 1_000_000
}

// RiskMultiplier returns the premium multiplier for an industry, 1.0 when
// unknown.
func (t *Tables) RiskMultiplier(industry any) float64 {
	if v, ok := t.riskMultipliers[normalize.ToLowerSafe(industry)]; ok {
		return v
	}
	return 1.0
}

// SizeFactor returns the company-size risk factor, 1.0 when unknown.
func (t *Tables) SizeFactor(size any) float64 {
	if v, ok := t.sizeFactors[normalize.ToLowerSafe(size)]; ok {
		return v
	}
	return 1.0
}

// Tiers returns the assignment tiers in evaluation order.
func (t *Tables) Tiers() []TierRule {
	out := make([]TierRule, len(t.tiers))
	for i, tier := range t.tiers {
		tier.Industries = slices.Clone(tier.Industries)
		out[i] = tier
	}
	return out
}

// Underwriters returns the pool for a tier. Unknown tiers have no pool.
func (t *Tables) Underwriters(tier string) []string {
	return slices.Clone(t.pools[strings.ToLower(tier)])
}

// Roster flattens every pool into underwriter records, ordered by tier.
func (t *Tables) Roster() []model.Underwriter {
	var out []model.Underwriter
	for _, tier := range t.tiers {
		for _, name := range t.pools[tier.Name] {
			out = append(out, model.Underwriter{Name: name, Tier: tier.Name, Active: true})
		}
	}
	return out
}

// IsValidTransition reports whether to is reachable from from in one step.
func (t *Tables) IsValidTransition(from, to any) bool {
	next := model.Status(normalize.ToLowerSafe(to))
	return slices.Contains(t.transitions[model.Status(normalize.ToLowerSafe(from))], next)
}

// AllowedTransitions lists the states reachable from from. Terminal and
// unknown states yield an empty slice.
func (t *Tables) AllowedTransitions(from any) []model.Status {
	out := slices.Clone(t.transitions[model.Status(normalize.ToLowerSafe(from))])
	if out == nil {
		out = []model.Status{}
	}
	return out
}

// RequiredFields returns the field list for a validation level; unknown
// levels get the standard list.
func (t *Tables) RequiredFields(level string) []string {
	if v, ok := t.requiredFields[strings.ToLower(level)]; ok {
		return slices.Clone(v)
	}
	return slices.Clone(t.requiredFields[LevelStandard])
}

// PolicyTypes returns the accepted policy types. Matching against this
// list is case-sensitive.
func (t *Tables) PolicyTypes() []string {
	return slices.Clone(t.policyTypes)
}

// HighRiskIndustries returns industries that must supply revenue, head
// count and data types.
func (t *Tables) HighRiskIndustries() []string {
	return slices.Clone(t.highRiskIndustries)
}

// PriorityForRiskScore maps a score on the [0,1] scale to a priority.
func (t *Tables) PriorityForRiskScore(score float64) model.Priority {
	switch {
	case score < t.priorityLow:
		return model.PriorityLow
	case score < t.priorityMedium:
		return model.PriorityMedium
	default:
		return model.PriorityHigh
	}
}
