// Package recommend turns a validation result and a risk assessment into an
// advisory underwriting recommendation.
package recommend

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/rules"
)

const (
	baseRate            = 0.02
	largeCoverage       = 10_000_000
	highScoreReferral   = 75
	technicalThreshold  = 70
	complianceThreshold = 70
)

var referralIndustries = []string{"cryptocurrency", "cannabis", "gaming"}

// band is one row of the score-to-action table.
type band struct {
	upTo       float64
	action     model.Action
	confidence float64
	reasoning  []string
}

var bands = []band{
	{40, model.ActionApprove, 85, []string{"Low risk profile", "Standard underwriting guidelines apply"}},
	{70, model.ActionApprove, 75, []string{"Medium risk profile", "Additional conditions may be required"}},
	{85, model.ActionReferToSenior, 80, []string{"High risk profile", "Requires senior underwriter review"}},
}

var critical = band{action: model.ActionDecline, confidence: 90, reasoning: []string{"Critical risk profile", "Outside normal appetite"}}

// Engine builds recommendations.
type Engine struct {
	tables *rules.Tables
}

// New returns an Engine backed by tables.
func New(tables *rules.Tables) *Engine {
	return &Engine{tables: tables}
}

// Recommend never changes workflow state. A rejected or incomplete
// validation short-circuits the score bands.
func (e *Engine) Recommend(vr model.ValidationResult, ra model.RiskAssessment, fields model.Fields) model.Recommendation {
	switch vr.Status {
	case model.ValidationRejected:
		return model.Recommendation{
			Action:     model.ActionDecline,
			Confidence: 95,
			Reasoning:  []string{vr.Reason},
		}
	case model.ValidationIncomplete:
		return model.Recommendation{
			Action:     model.ActionRequestInfo,
			Confidence: 90,
			Reasoning:  []string{"Missing required information: " + strings.Join(vr.MissingFields, ", ")},
		}
	}

	b := bandFor(ra.OverallScore)
	industry := normalize.ToLowerSafe(fields.Get(model.FieldIndustry))
	coverage, known := normalize.ParseMoneyAmount(fields.Get(model.FieldCoverageAmount))

	rec := model.Recommendation{
		Action:              b.action,
		Confidence:          b.confidence,
		Reasoning:           append([]string(nil), b.reasoning...),
		SuggestedConditions: Conditions(ra.Categories, industry),
		ReferralTriggers:    Triggers(ra.OverallScore, coverage, industry),
	}
	if known {
		rec.EstimatedPremiumRange = e.Premium(coverage, ra.OverallScore, industry)
	}
	return rec
}

func bandFor(score float64) band {
	for _, b := range bands {
		if score <= b.upTo {
			return b
		}
	}
	return critical
}

// Conditions lists binding conditions suggested by category scores and
// industry keywords.
func Conditions(c model.RiskCategories, industry string) []string {
	out := []string{}
	if c.Technical > technicalThreshold {
		out = append(out,
			"Require implementation of multi-factor authentication",
			"Annual security assessment required")
	}
	if c.Compliance > complianceThreshold {
		out = append(out,
			"Provide evidence of regulatory compliance",
			"Quarterly compliance reporting required")
	}
	if strings.Contains(industry, "healthcare") {
		out = append(out, "HIPAA compliance certification required")
	}
	if strings.Contains(industry, "financial") {
		out = append(out, "PCI-DSS compliance required for payment data")
	}
	return out
}

// Triggers lists reasons to refer the submission. It returns nil when
// nothing fires.
func Triggers(score, coverage float64, industry string) []string {
	var out []string
	if score > highScoreReferral {
		out = append(out, fmt.Sprintf("High risk score: %.1f", score))
	}
	if coverage > largeCoverage {
		out = append(out, "Large coverage amount: $"+normalize.Grouped(coverage, 0))
	}
	for _, kw := range referralIndustries {
		if strings.Contains(industry, kw) {
			out = append(out, "High-risk industry: "+industry)
			break
		}
	}
	return out
}

// Premium estimates the annual premium band in dollars, rounded to cents.
// It returns nil for zero, negative or non-finite coverage.
func (e *Engine) Premium(coverage, score float64, industry string) *model.PremiumRange {
	if coverage <= 0 || math.IsInf(coverage, 0) || math.IsNaN(coverage) || math.IsNaN(score) {
		return nil
	}

	factor := 1.5
	switch {
	case score <= 40:
		factor = 0.8
	case score <= 70:
		factor = 1.0
	}

	base := decimal.NewFromFloat(coverage).
		Mul(decimal.NewFromFloat(baseRate)).
		Mul(decimal.NewFromFloat(factor)).
		Mul(decimal.NewFromFloat(e.tables.RiskMultiplier(industry)))

	return &model.PremiumRange{
		Minimum:     base.Mul(decimal.NewFromFloat(0.8)).Round(2).InexactFloat64(),
		Recommended: base.Round(2).InexactFloat64(),
		Maximum:     base.Mul(decimal.NewFromFloat(1.3)).Round(2).InexactFloat64(),
	}
}
