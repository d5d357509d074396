package rules

import (
	"maps"
	"slices"
	"strings"
)

// WithCoverageLimit sets the coverage ceiling, in millions, for an industry.
func WithCoverageLimit(industry string, millions int64) Option {
	return func(t *Tables) {
		t.coverageLimits = maps.Clone(t.coverageLimits)
		t.coverageLimits[strings.ToLower(industry)] = millions
	}
}

// WithRiskMultiplier sets the premium multiplier for an industry.
func WithRiskMultiplier(industry string, m float64) Option {
	return func(t *Tables) {
		t.riskMultipliers = maps.Clone(t.riskMultipliers)
		t.riskMultipliers[strings.ToLower(industry)] = m
	}
}

// WithUnderwriters replaces the pool for a tier. An empty list empties it.
func WithUnderwriters(tier string, names ...string) Option {
	return func(t *Tables) {
		t.pools = maps.Clone(t.pools)
		t.pools[strings.ToLower(tier)] = slices.Clone(names)
	}
}

// WithTiers replaces the assignment tiers.
func WithTiers(tiers ...TierRule) Option {
	return func(t *Tables) {
		t.tiers = slices.Clone(tiers)
	}
}

// WithHighRiskIndustries sets the industries that require supplemental
// fields. Matching is against the trimmed industry as supplied.
func WithHighRiskIndustries(industries ...string) Option {
	return func(t *Tables) {
		t.highRiskIndustries = slices.Clone(industries)
	}
}

// WithBlacklistedDomains replaces the rejected email domains.
func WithBlacklistedDomains(domains ...string) Option {
	return func(t *Tables) {
		t.blacklistedDomains = make([]string, 0, len(domains))
		for _, d := range domains {
			t.blacklistedDomains = append(t.blacklistedDomains, strings.ToLower(d))
		}
	}
}

// WithCoverageBounds sets the auto-reject floor and ceiling in dollars.
func WithCoverageBounds(minimum, maximum float64) Option {
	return func(t *Tables) {
		t.minCoverage = minimum
		t.maxCoverage = maximum
	}
}

// WithPriorityThresholds sets the low and medium priority cut-offs.
func WithPriorityThresholds(low, medium float64) Option {
	return func(t *Tables) {
		t.priorityLow = low
		t.priorityMedium = medium
	}
}

// WithPolicyTypes replaces the accepted policy types.
func WithPolicyTypes(types ...string) Option {
	return func(t *Tables) {
		t.policyTypes = slices.Clone(types)
	}
}

// WithTemplate adds or replaces a message template.
func WithTemplate(name string, tmpl MessageTemplate) Option {
	return func(t *Tables) {
		t.templates = maps.Clone(t.templates)
		t.templates[name] = tmpl
	}
}
