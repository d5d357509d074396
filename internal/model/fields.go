package model

// Fields is the loosely typed field map produced by the extraction service.
// No key is guaranteed to be present and values may be any JSON scalar.
type Fields map[string]any

// Get returns the raw value for key, or nil when absent.
func (f Fields) Get(key string) any {
	if f == nil {
		return nil
	}
	return f[key]
}

// Clone returns a shallow copy of the map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Field names read by the decision engine.
const (
	FieldInsuredName           = "insured_name"
	FieldCompanyName           = "company_name"
	FieldPolicyType            = "policy_type"
	FieldEffectiveDate         = "effective_date"
	FieldIndustry              = "industry"
	FieldCoverageAmount        = "coverage_amount"
	FieldEmployeeCount         = "employee_count"
	FieldRevenue               = "revenue"
	FieldDataTypes             = "data_types"
	FieldSecurityMeasures      = "security_measures"
	FieldCompanySize           = "company_size"
	FieldCreditRating          = "credit_rating"
	FieldYearsInBusiness       = "years_in_business"
	FieldContactEmail          = "contact_email"
	FieldExistingCyberCoverage = "existing_cyber_coverage"
)

// HistoricalData is the optional claims history supplied by an external
// claims system.
type HistoricalData struct {
	ClaimsCount   int `json:"claims_count"`
	IncidentCount int `json:"incident_count"`
}
