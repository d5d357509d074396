package model

// ImpactLevel grades a single risk factor.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "Low"
	ImpactMedium   ImpactLevel = "Medium"
	ImpactHigh     ImpactLevel = "High"
	ImpactCritical ImpactLevel = "Critical"
)

// RiskLevel grades an overall score. Scorers use different thresholds.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// Risk categories.
const (
	CategoryTechnical   = "technical"
	CategoryOperational = "operational"
	CategoryFinancial   = "financial"
	CategoryCompliance  = "compliance"
)

// RiskCategories holds the per-category scores, each in [0,100].
type RiskCategories struct {
	Technical   float64 `json:"technical"`
	Operational float64 `json:"operational"`
	Financial   float64 `json:"financial"`
	Compliance  float64 `json:"compliance"`
}

// Mean returns the arithmetic mean of the four categories.
func (c RiskCategories) Mean() float64 {
	return (c.Technical + c.Operational + c.Financial + c.Compliance) / 4
}

// Clamp bounds every category to [0,100].
func (c RiskCategories) Clamp() RiskCategories {
	return RiskCategories{
		Technical:   Clamp(c.Technical),
		Operational: Clamp(c.Operational),
		Financial:   Clamp(c.Financial),
		Compliance:  Clamp(c.Compliance),
	}
}

// RiskFactor explains one contribution to a risk score. ScoreImpact is
// negative for risk-reducing factors such as MFA.
type RiskFactor struct {
	Category    string      `json:"category"`
	Factor      string      `json:"factor"`
	ImpactLevel ImpactLevel `json:"impact_level"`
	ScoreImpact float64     `json:"score_impact"`
	Description string      `json:"description"`
	Mitigation  string      `json:"mitigation_recommendation"`
}

// RiskAssessment is the output of a scorer.
type RiskAssessment struct {
	OverallScore      float64        `json:"overall_score"`
	Categories        RiskCategories `json:"categories"`
	RiskFactors       []RiskFactor   `json:"risk_factors"`
	RiskLevel         RiskLevel      `json:"risk_level"`
	ConfidenceScore   float64        `json:"confidence_score"`
	IndustryBenchmark float64        `json:"industry_benchmark"`
	Scorer            string         `json:"scorer"`
}

// Clamp bounds v to [0,100].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
