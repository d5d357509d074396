package risk

import (
	"strings"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
)

var baselineBenchmarks = map[string]float64{
	"healthcare":         65,
	"financial services": 70,
	"technology":         55,
	"manufacturing":      45,
	"retail":             50,
	"education":          40,
}

// Baseline is the categorical scorer: every category starts at 50 and is
// moved by fixed industry, data-type and security deltas.
type Baseline struct{}

// NewBaseline returns the baseline scorer.
func NewBaseline() *Baseline { return &Baseline{} }

// Name implements Scorer.
func (b *Baseline) Name() string { return KindBaseline }

// Score implements Scorer. Claims history only affects confidence.
func (b *Baseline) Score(fields model.Fields, hist *model.HistoricalData) model.RiskAssessment {
	sub := normalize.Submission(fields)
	cats := BaselineCategories(fields)
	overall := model.Clamp(cats.Mean())

	bench, ok := baselineBenchmarks[profileKey(sub.Industry)]
	if !ok {
		bench = 50
	}

	return model.RiskAssessment{
		OverallScore:      overall,
		Categories:        cats,
		RiskFactors:       baselineFactors(sub),
		RiskLevel:         BaselineLevel(overall),
		ConfidenceScore:   Confidence(fields, hist),
		IndustryBenchmark: bench,
		Scorer:            KindBaseline,
	}
}

// BaselineCategories computes the four category scores, each clamped to
// [0,100].
func BaselineCategories(fields model.Fields) model.RiskCategories {
	sub := normalize.Submission(fields)
	c := model.RiskCategories{Technical: 50, Operational: 50, Financial: 50, Compliance: 50}

	switch profileKey(sub.Industry) {
	case "healthcare":
		c.Compliance += 20
		c.Technical += 15
	case "financial services":
		c.Compliance += 25
		c.Financial += 20
	case "technology":
		c.Technical += 25
		c.Operational += 10
	}

	data := sub.DataTypes
	if strings.Contains(data, "pii") || strings.Contains(data, "personal") {
		c.Compliance += 15
	}
	if strings.Contains(data, "payment") || strings.Contains(data, "credit card") {
		c.Financial += 20
	}
	if strings.Contains(data, "medical") || strings.Contains(data, "phi") {
		c.Compliance += 25
	}

	sec := sub.SecurityMeasures
	if strings.Contains(sec, "mfa") || strings.Contains(sec, "encryption") || strings.Contains(sec, "firewall") {
		c.Technical -= 10
	}

	return c.Clamp()
}

// BaselineLevel grades a baseline overall score.
func BaselineLevel(score float64) model.RiskLevel {
	switch {
	case score <= 30:
		return model.RiskLow
	case score <= 60:
		return model.RiskMedium
	case score <= 85:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

func baselineFactors(sub model.Submission) []model.RiskFactor {
	factors := []model.RiskFactor{}

	if strings.Contains(sub.Industry, "healthcare") {
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "HIPAA Compliance Requirements",
			ImpactLevel: model.ImpactHigh,
			ScoreImpact: 15,
			Description: "Healthcare industry requires strict HIPAA compliance",
			Mitigation:  "Implement HIPAA-compliant security controls",
		})
	}
	if strings.Contains(sub.Industry, "financial") {
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "Financial Regulations",
			ImpactLevel: model.ImpactHigh,
			ScoreImpact: 20,
			Description: "Financial services subject to extensive regulations",
			Mitigation:  "Ensure SOX, PCI-DSS compliance",
		})
	}
	if strings.Contains(sub.DataTypes, "pii") || strings.Contains(sub.DataTypes, "personal") {
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "Personal Information Handling",
			ImpactLevel: model.ImpactMedium,
			ScoreImpact: 10,
			Description: "Handling of personally identifiable information",
			Mitigation:  "Implement data classification and protection",
		})
	}
	if n, ok := sub.Employees(); ok && n > 1000 {
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryOperational,
			Factor:      "Large Organization Complexity",
			ImpactLevel: model.ImpactMedium,
			ScoreImpact: 12,
			Description: "Large organizations have complex attack surfaces",
			Mitigation:  "Implement enterprise security controls",
		})
	}
	if strings.Contains(sub.SecurityMeasures, "mfa") {
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryTechnical,
			Factor:      "Multi-Factor Authentication",
			ImpactLevel: model.ImpactLow,
			ScoreImpact: -10,
			Description: "MFA implementation reduces authentication risks",
			Mitigation:  "Maintain and expand MFA coverage",
		})
	}
	return factors
}
