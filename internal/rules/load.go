package rules

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// File is the YAML override document. Every section is optional; present
// map entries are merged over the defaults and present lists replace them.
type File struct {
	CoverageLimits     map[string]int64           `yaml:"coverage_limits"`
	RiskMultipliers    map[string]float64         `yaml:"risk_multipliers"`
	SizeFactors        map[string]float64         `yaml:"size_factors"`
	Tiers              []TierRule                 `yaml:"tiers"`
	Underwriters       map[string][]string        `yaml:"underwriters"`
	PolicyTypes        []string                   `yaml:"policy_types"`
	HighRiskIndustries []string                   `yaml:"high_risk_industries"`
	BlacklistedDomains []string                   `yaml:"blacklisted_domains"`
	MinCoverage        *float64                   `yaml:"min_coverage"`
	MaxCoverage        *float64                   `yaml:"max_coverage"`
	Priority           *PriorityThresholds        `yaml:"priority"`
	Templates          map[string]MessageTemplate `yaml:"templates"`
}

// PriorityThresholds are the low and medium priority cut-offs.
type PriorityThresholds struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
}

// Load builds the default tables and overlays the YAML file at path. An
// empty path returns the defaults.
func Load(path string, opts ...Option) (*Tables, error) {
	if path == "" {
		return Default(opts...), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	return Parse(data, opts...)
}

// Parse overlays a YAML override document on the defaults. opts are applied
// after the document.
func Parse(data []byte, opts ...Option) (*Tables, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "rules: parse overrides")
	}
	if f.Priority != nil && f.Priority.Low > f.Priority.Medium {
		return nil, eris.Errorf("rules: priority low threshold %.2f exceeds medium %.2f", f.Priority.Low, f.Priority.Medium)
	}
	return Default(append(f.options(), opts...)...), nil
}

func (f File) options() []Option {
	var opts []Option
	for k, v := range f.CoverageLimits {
		opts = append(opts, WithCoverageLimit(k, v))
	}
	for k, v := range f.RiskMultipliers {
		opts = append(opts, WithRiskMultiplier(k, v))
	}
	if len(f.SizeFactors) > 0 {
		sizes := f.SizeFactors
		opts = append(opts, func(t *Tables) {
			merged := make(map[string]float64, len(t.sizeFactors)+len(sizes))
			for k, v := range t.sizeFactors {
				merged[k] = v
			}
			for k, v := range sizes {
				merged[strings.ToLower(k)] = v
			}
			t.sizeFactors = merged
		})
	}
	if len(f.Tiers) > 0 {
		tiers := make([]TierRule, 0, len(f.Tiers))
		for _, tier := range f.Tiers {
			tier.Name = strings.ToLower(tier.Name)
			for i, ind := range tier.Industries {
				tier.Industries[i] = strings.ToLower(ind)
			}
			tiers = append(tiers, tier)
		}
		opts = append(opts, WithTiers(tiers...))
	}
	for tier, names := range f.Underwriters {
		opts = append(opts, WithUnderwriters(tier, names...))
	}
	if f.PolicyTypes != nil {
		opts = append(opts, WithPolicyTypes(f.PolicyTypes...))
	}
	if f.HighRiskIndustries != nil {
		opts = append(opts, WithHighRiskIndustries(f.HighRiskIndustries...))
	}
	if f.BlacklistedDomains != nil {
		opts = append(opts, WithBlacklistedDomains(f.BlacklistedDomains...))
	}
	if f.MinCoverage != nil || f.MaxCoverage != nil {
		minimum, maximum := f.MinCoverage, f.MaxCoverage
		opts = append(opts, func(t *Tables) {
			if minimum != nil {
				t.minCoverage = *minimum
			}
			if maximum != nil {
				t.maxCoverage = *maximum
			}
		})
	}
	if f.Priority != nil {
		opts = append(opts, WithPriorityThresholds(f.Priority.Low, f.Priority.Medium))
	}
	for name, tmpl := range f.Templates {
		opts = append(opts, WithTemplate(name, tmpl))
	}
	return opts
}
