// Package validate applies the underwriting acceptance checks to an
// extracted submission.
package validate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/rules"
)

// Fields every submission must carry before any other check runs.
var requiredFields = []string{
	model.FieldInsuredName,
	model.FieldPolicyType,
	model.FieldEffectiveDate,
	model.FieldIndustry,
}

var highRiskSupplemental = []string{
	model.FieldRevenue,
	model.FieldEmployeeCount,
	model.FieldDataTypes,
}

const largeAccountRevenue = 1_000_000_000

// Validator checks submissions against the rule tables.
type Validator struct {
	tables *rules.Tables
}

// New returns a Validator backed by tables.
func New(tables *rules.Tables) *Validator {
	return &Validator{tables: tables}
}

// Validate runs the checks in order and returns the first failure, or
// Complete. It never returns an error; missing data yields Incomplete.
func (v *Validator) Validate(fields model.Fields) model.ValidationResult {
	if missing := missingFields(fields, requiredFields); len(missing) > 0 {
		return incomplete(missing, "Missing required fields: "+strings.Join(missing, ", "))
	}

	policyType := normalize.ToTrimmedSafe(fields.Get(model.FieldPolicyType))
	accepted := v.tables.PolicyTypes()
	if !slices.Contains(accepted, policyType) {
		return rejected(fmt.Sprintf(
			"Policy type '%s' is outside our cyber insurance appetite. Accepted types: %s",
			policyType, strings.Join(accepted, ", ")))
	}

	industry := normalize.ToTrimmedSafe(fields.Get(model.FieldIndustry))
	if industry == "" {
		return incomplete([]string{model.FieldIndustry}, "Industry classification is required for cyber insurance")
	}

	if coverage, ok := normalize.ParseMoneyAmount(fields.Get(model.FieldCoverageAmount)); ok && coverage != 0 {
		limit := v.tables.CoverageLimit(industry)
		if coverage > float64(limit) {
			return rejected(fmt.Sprintf("Coverage amount $%s exceeds our maximum of $%s for %s industry",
				normalize.GroupedShortest(coverage), normalize.GroupedInt(limit), industry))
		}
	}

	if slices.Contains(v.tables.HighRiskIndustries(), industry) {
		if missing := missingFields(fields, highRiskSupplemental); len(missing) > 0 {
			return incomplete(missing, fmt.Sprintf("High-risk industry %s requires additional information: %s",
				industry, strings.Join(missing, ", ")))
		}
	}

	if revenue, ok := normalize.ParseMoneyAmount(fields.Get(model.FieldRevenue)); ok && revenue > largeAccountRevenue {
		if !normalize.Present(fields.Get(model.FieldExistingCyberCoverage)) {
			return incomplete([]string{model.FieldExistingCyberCoverage},
				"Large accounts must provide details of existing cyber coverage")
		}
	}

	return model.ValidationResult{Status: model.ValidationComplete, MissingFields: []string{}}
}

func missingFields(fields model.Fields, names []string) []string {
	var missing []string
	for _, name := range names {
		if !normalize.Present(fields.Get(name)) {
			missing = append(missing, name)
		}
	}
	return missing
}

func incomplete(missing []string, reason string) model.ValidationResult {
	return model.ValidationResult{Status: model.ValidationIncomplete, MissingFields: missing, Reason: reason}
}

func rejected(reason string) model.ValidationResult {
	return model.ValidationResult{Status: model.ValidationRejected, MissingFields: []string{}, Reason: reason}
}
