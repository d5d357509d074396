package risk

import (
	"fmt"
	"strings"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
)

// Sub-score weights in the overall roll-up. They are not renormalized when
// history is absent, so scores without history run lower.
const (
	weightIndustry   = 0.2
	weightSize       = 0.15
	weightData       = 0.2
	weightSecurity   = 0.25
	weightFinancial  = 0.1
	weightCompliance = 0.1
	weightHistory    = 0.1
)

// Enhanced is the multi-factor scorer. It computes seven sub-scores, each
// with explanatory factors, and rolls them up into categories.
type Enhanced struct{}

// NewEnhanced returns the enhanced scorer.
func NewEnhanced() *Enhanced { return &Enhanced{} }

// Name implements Scorer.
func (e *Enhanced) Name() string { return KindEnhanced }

// SubScores are the seven enhanced dimensions before roll-up. History is
// zero when no claims history was supplied.
type SubScores struct {
	Industry   float64 `json:"industry"`
	Size       float64 `json:"size"`
	Data       float64 `json:"data"`
	Security   float64 `json:"security"`
	Financial  float64 `json:"financial"`
	Compliance float64 `json:"compliance"`
	History    float64 `json:"history"`
}

// Score implements Scorer.
func (e *Enhanced) Score(fields model.Fields, hist *model.HistoricalData) model.RiskAssessment {
	sub := normalize.Submission(fields)
	s, factors := e.SubScores(sub, hist)

	cats := model.RiskCategories{
		Technical:   0.2*s.Industry + 0.2*s.Size + 0.3*s.Data + 0.3*s.Security,
		Operational: operational(s),
		Financial:   s.Financial,
		Compliance:  s.Compliance,
	}.Clamp()

	overall := weightIndustry*s.Industry +
		weightSize*s.Size +
		weightData*s.Data +
		weightSecurity*s.Security +
		weightFinancial*s.Financial +
		weightCompliance*s.Compliance
	if hist != nil {
		overall += weightHistory * s.History
	}
	overall = model.Clamp(overall)

	return model.RiskAssessment{
		OverallScore:      overall,
		Categories:        cats,
		RiskFactors:       factors,
		RiskLevel:         EnhancedLevel(overall),
		ConfidenceScore:   Confidence(fields, hist),
		IndustryBenchmark: min(IndustryBenchmarks(sub.Industry).IndustryAverage, 100),
		Scorer:            KindEnhanced,
	}
}

// SubScores computes every dimension and the factors that explain it, in
// industry, size, data, security, financial, compliance, history order.
func (e *Enhanced) SubScores(sub model.Submission, hist *model.HistoricalData) (SubScores, []model.RiskFactor) {
	var s SubScores
	factors := []model.RiskFactor{}
	var f []model.RiskFactor

	s.Industry, f = industryRisk(sub)
	factors = append(factors, f...)
	s.Size, f = sizeRisk(sub)
	factors = append(factors, f...)
	s.Data, f = dataRisk(sub)
	factors = append(factors, f...)
	s.Security, f = securityRisk(sub)
	factors = append(factors, f...)
	s.Financial, f = financialRisk(sub)
	factors = append(factors, f...)
	s.Compliance, f = complianceRisk(sub)
	factors = append(factors, f...)
	if hist != nil {
		s.History, f = historyRisk(*hist)
		factors = append(factors, f...)
	}
	return s, factors
}

// EnhancedLevel grades an enhanced overall score.
func EnhancedLevel(score float64) model.RiskLevel {
	switch {
	case score <= 35:
		return model.RiskLow
	case score <= 55:
		return model.RiskMedium
	case score <= 75:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

func operational(s SubScores) float64 {
	if s.History > 0 {
		return 0.3*s.Industry + 0.3*s.Size + 0.2*s.Security + 0.2*s.History
	}
	return 0.4*s.Industry + 0.4*s.Size + 0.2*s.Security
}

func impactForScore(score float64) model.ImpactLevel {
	switch {
	case score <= 40:
		return model.ImpactLow
	case score <= 70:
		return model.ImpactMedium
	default:
		return model.ImpactHigh
	}
}

func industryRisk(sub model.Submission) (float64, []model.RiskFactor) {
	p, ok := LookupProfile(sub.Industry)
	if !ok {
		return 50, nil
	}

	score := p.score()
	factors := []model.RiskFactor{{
		Category:    model.CategoryOperational,
		Factor:      p.Name + " Industry Profile",
		ImpactLevel: impactForScore(score),
		ScoreImpact: score - 50,
		Description: "Industry-specific risk profile for " + p.Name,
		Mitigation:  "Implement " + p.Name + "-specific security controls",
	}}
	for _, threat := range p.CommonThreats {
		w := words(threat)
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryTechnical,
			Factor:      "Common Threat: " + title(w),
			ImpactLevel: model.ImpactMedium,
			ScoreImpact: 5,
			Description: "Industry commonly targeted by " + w + " attacks",
			Mitigation:  "Implement controls to mitigate " + w + " risks",
		})
	}
	return min(score, 100), factors
}

func sizeRisk(sub model.Submission) (float64, []model.RiskFactor) {
	score := 50.0
	var factors []model.RiskFactor

	if n, ok := sub.Employees(); ok && n != 0 {
		switch {
		case n < 50:
			score = 45
			factors = append(factors, model.RiskFactor{
				Category:    model.CategoryOperational,
				Factor:      "Small Organization",
				ImpactLevel: model.ImpactLow,
				ScoreImpact: -5,
				Description: "Limited resources but smaller attack surface",
				Mitigation:  "Focus on basic security hygiene and cloud security",
			})
		case n < 500:
			score = 55
			factors = append(factors, model.RiskFactor{
				Category:    model.CategoryOperational,
				Factor:      "Medium Organization",
				ImpactLevel: model.ImpactMedium,
				ScoreImpact: 5,
				Description: "Growing complexity with moderate resources",
				Mitigation:  "Implement structured security program",
			})
		default:
			score = 65
			factors = append(factors, model.RiskFactor{
				Category:    model.CategoryOperational,
				Factor:      "Large Organization",
				ImpactLevel: model.ImpactMedium,
				ScoreImpact: 15,
				Description: "Complex attack surface with multiple vectors",
				Mitigation:  "Implement enterprise-grade security controls",
			})
		}
	}

	if rev, ok := sub.AnnualRevenue(); ok && rev > 1_000_000_000 {
		score += 10
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryFinancial,
			Factor:      "High-Value Target",
			ImpactLevel: model.ImpactHigh,
			ScoreImpact: 10,
			Description: "High revenue makes organization attractive target",
			Mitigation:  "Implement advanced threat detection and response",
		})
	}
	return min(score, 100), factors
}

func dataRisk(sub model.Submission) (float64, []model.RiskFactor) {
	text := sub.DataTypes
	if text == "" {
		return 50, nil
	}

	var matched []dataTypeWeight
	for _, dt := range dataTypeWeights {
		if keywordMatch(dt.key, text) {
			matched = append(matched, dt)
		}
	}
	if len(matched) == 0 {
		return 50, nil
	}

	total := 0.0
	factors := make([]model.RiskFactor, 0, len(matched))
	for _, dt := range matched {
		total += dt.weight
		impact := model.ImpactLow
		switch {
		case dt.weight > 0.7:
			impact = model.ImpactHigh
		case dt.weight > 0.4:
			impact = model.ImpactMedium
		}
		w := words(dt.key)
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "Data Type: " + title(w),
			ImpactLevel: impact,
			ScoreImpact: dt.weight * 20,
			Description: "Handling of " + w + " increases breach impact",
			Mitigation:  "Implement data classification and protection for " + w,
		})
	}
	score := 50 + total/float64(len(matched))*60
	return min(score, 100), factors
}

func securityRisk(sub model.Submission) (float64, []model.RiskFactor) {
	const base = 70.0
	text := sub.SecurityMeasures
	if text == "" {
		return min(base+20, 100), []model.RiskFactor{{
			Category:    model.CategoryTechnical,
			Factor:      "Unknown Security Posture",
			ImpactLevel: model.ImpactHigh,
			ScoreImpact: 20,
			Description: "No information provided about security controls",
			Mitigation:  "Provide detailed security assessment",
		}}
	}

	var matched []securityControl
	for _, c := range securityControls {
		if keywordMatch(c.key, text) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return min(base+10, 100), []model.RiskFactor{{
			Category:    model.CategoryTechnical,
			Factor:      "Basic Security Measures",
			ImpactLevel: model.ImpactMedium,
			ScoreImpact: 10,
			Description: "Some security measures mentioned but details unclear",
			Mitigation:  "Provide detailed inventory of security controls",
		}}
	}

	total := 0.0
	factors := make([]model.RiskFactor, 0, len(matched))
	for _, c := range matched {
		total += c.effectiveness
		w := words(c.key)
		factors = append(factors, model.RiskFactor{
			Category:    c.category,
			Factor:      "Security Control: " + title(w),
			ImpactLevel: model.ImpactLow,
			ScoreImpact: -(c.effectiveness * 10),
			Description: "Implementation of " + w + " reduces cyber risk",
			Mitigation:  "Maintain and monitor this security control",
		})
	}
	score := max(base-total/float64(len(matched))*40, 20)
	return min(score, 100), factors
}

func financialRisk(sub model.Submission) (float64, []model.RiskFactor) {
	score := 50.0
	var factors []model.RiskFactor

	if sub.YearsInBusiness != nil {
		switch years := *sub.YearsInBusiness; {
		case years < 2:
			score += 15
			factors = append(factors, model.RiskFactor{
				Category:    model.CategoryFinancial,
				Factor:      "New Business",
				ImpactLevel: model.ImpactMedium,
				ScoreImpact: 15,
				Description: "Limited operational history increases uncertainty",
				Mitigation:  "Provide additional financial documentation",
			})
		case years > 10:
			score -= 10
			factors = append(factors, model.RiskFactor{
				Category:    model.CategoryFinancial,
				Factor:      "Established Business",
				ImpactLevel: model.ImpactLow,
				ScoreImpact: -10,
				Description: "Long operational history indicates stability",
				Mitigation:  "Continue monitoring financial health",
			})
		}
	}

	switch rating := strings.ToUpper(sub.CreditRating); rating {
	case "":
	case "AAA", "AA", "A":
		score -= 15
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryFinancial,
			Factor:      "Strong Credit Rating",
			ImpactLevel: model.ImpactLow,
			ScoreImpact: -15,
			Description: "Strong credit rating indicates financial stability",
			Mitigation:  "Monitor for rating changes",
		})
	case "BBB", "BB":
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryFinancial,
			Factor:      "Moderate Credit Rating",
			ImpactLevel: model.ImpactLow,
			ScoreImpact: 0,
			Description: "Moderate credit rating with stable outlook",
			Mitigation:  "Monitor financial performance",
		})
	default:
		score += 20
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryFinancial,
			Factor:      "Weak Credit Rating",
			ImpactLevel: model.ImpactMedium,
			ScoreImpact: 20,
			Description: "Weak credit rating may limit security investment",
			Mitigation:  "Request additional financial information",
		})
	}
	return model.Clamp(score), factors
}

func complianceRisk(sub model.Submission) (float64, []model.RiskFactor) {
	score := 50.0
	var factors []model.RiskFactor

	if strings.Contains(sub.Industry, "healthcare") {
		score += 25
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "HIPAA Compliance Requirements",
			ImpactLevel: model.ImpactHigh,
			ScoreImpact: 25,
			Description: "Healthcare industry subject to HIPAA regulations",
			Mitigation:  "Ensure HIPAA compliance and regular audits",
		})
	}
	if strings.Contains(sub.Industry, "financial") {
		score += 30
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "Financial Services Regulations",
			ImpactLevel: model.ImpactHigh,
			ScoreImpact: 30,
			Description: "Financial services subject to multiple regulations",
			Mitigation:  "Ensure SOX, GLBA, and other financial regulations compliance",
		})
	}
	if strings.Contains(sub.DataTypes, "payment") || strings.Contains(sub.DataTypes, "credit card") {
		score += 20
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "PCI-DSS Requirements",
			ImpactLevel: model.ImpactHigh,
			ScoreImpact: 20,
			Description: "Payment card data handling requires PCI-DSS compliance",
			Mitigation:  "Ensure PCI-DSS compliance and regular validation",
		})
	}
	if strings.Contains(sub.DataTypes, "personal") || strings.Contains(sub.DataTypes, "pii") {
		score += 15
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryCompliance,
			Factor:      "Privacy Regulations",
			ImpactLevel: model.ImpactMedium,
			ScoreImpact: 15,
			Description: "Personal data handling subject to privacy regulations",
			Mitigation:  "Ensure GDPR, CCPA, and other privacy law compliance",
		})
	}
	return min(score, 100), factors
}

func historyRisk(hist model.HistoricalData) (float64, []model.RiskFactor) {
	score := 50.0
	var factors []model.RiskFactor

	if c := hist.ClaimsCount; c > 0 {
		impact := float64(min(c*15, 40))
		level := model.ImpactMedium
		if c > 2 {
			level = model.ImpactHigh
		}
		score += impact
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryOperational,
			Factor:      "Previous Claims History",
			ImpactLevel: level,
			ScoreImpact: impact,
			Description: fmt.Sprintf("%d previous cyber insurance claims", c),
			Mitigation:  "Review claim root causes and implement additional controls",
		})
	}
	if n := hist.IncidentCount; n > 0 {
		impact := float64(min(n*10, 30))
		level := model.ImpactLow
		if n > 3 {
			level = model.ImpactMedium
		}
		score += impact
		factors = append(factors, model.RiskFactor{
			Category:    model.CategoryOperational,
			Factor:      "Previous Security Incidents",
			ImpactLevel: level,
			ScoreImpact: impact,
			Description: fmt.Sprintf("%d reported security incidents", n),
			Mitigation:  "Review incident response and preventive measures",
		})
	}
	return min(score, 100), factors
}
