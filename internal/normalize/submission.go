package normalize

import "github.com/sells-group/uw-workbench/internal/model"

// Submission performs the single normalization pass over an extracted
// field map. The input map is not modified.
func Submission(fields model.Fields) model.Submission {
	s := model.Submission{
		InsuredName:   insuredName(fields),
		ContactEmail:  ToTrimmedSafe(fields.Get(model.FieldContactEmail)),
		EffectiveDate: ToTrimmedSafe(fields.Get(model.FieldEffectiveDate)),

		RawIndustry:   ToTrimmedSafe(fields.Get(model.FieldIndustry)),
		RawPolicyType: ToTrimmedSafe(fields.Get(model.FieldPolicyType)),

		Industry:         ToLowerSafe(fields.Get(model.FieldIndustry)),
		PolicyType:       ToLowerSafe(fields.Get(model.FieldPolicyType)),
		DataTypes:        ToLowerSafe(fields.Get(model.FieldDataTypes)),
		SecurityMeasures: ToLowerSafe(fields.Get(model.FieldSecurityMeasures)),
		CompanySize:      ToLowerSafe(fields.Get(model.FieldCompanySize)),
		CreditRating:     ToLowerSafe(fields.Get(model.FieldCreditRating)),
	}

	if v := fields.Get(model.FieldCoverageAmount); v != nil {
		if f, ok := ParseMoneyAmount(v); ok {
			s.CoverageAmount = &f
		}
	}
	if v := fields.Get(model.FieldRevenue); v != nil {
		if f, ok := ParseMoneyAmount(v); ok {
			s.Revenue = &f
		}
	}
	if n, ok := ParseEmployeeCount(fields.Get(model.FieldEmployeeCount)); ok {
		s.EmployeeCount = &n
	}
	if f, ok := ParseNumber(fields.Get(model.FieldYearsInBusiness)); ok {
		s.YearsInBusiness = &f
	}
	return s
}

// insuredName prefers insured_name and falls back to company_name.
func insuredName(fields model.Fields) string {
	if name := ToTrimmedSafe(fields.Get(model.FieldInsuredName)); name != "" {
		return name
	}
	return ToTrimmedSafe(fields.Get(model.FieldCompanyName))
}
