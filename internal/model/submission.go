package model

// Submission is the typed view over Fields produced by a single
// normalization pass. Category strings are trimmed and lower-cased; numeric
// fields are nil when absent or unparseable.
type Submission struct {
	InsuredName   string `json:"insured_name"`
	ContactEmail  string `json:"contact_email"`
	EffectiveDate string `json:"effective_date"`

	RawIndustry   string `json:"raw_industry"`
	RawPolicyType string `json:"raw_policy_type"`

	Industry         string `json:"industry"`
	PolicyType       string `json:"policy_type"`
	DataTypes        string `json:"data_types"`
	SecurityMeasures string `json:"security_measures"`
	CompanySize      string `json:"company_size"`
	CreditRating     string `json:"credit_rating"`

	CoverageAmount  *float64 `json:"coverage_amount,omitempty"`
	EmployeeCount   *int     `json:"employee_count,omitempty"`
	Revenue         *float64 `json:"revenue,omitempty"`
	YearsInBusiness *float64 `json:"years_in_business,omitempty"`
}

// Coverage returns the coverage amount and whether it is known.
func (s Submission) Coverage() (float64, bool) {
	if s.CoverageAmount == nil {
		return 0, false
	}
	return *s.CoverageAmount, true
}

// Employees returns the employee count and whether it is known.
func (s Submission) Employees() (int, bool) {
	if s.EmployeeCount == nil {
		return 0, false
	}
	return *s.EmployeeCount, true
}

// AnnualRevenue returns revenue and whether it is known.
func (s Submission) AnnualRevenue() (float64, bool) {
	if s.Revenue == nil {
		return 0, false
	}
	return *s.Revenue, true
}
