package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
)

// ShouldAutoReject applies the coverage floor, coverage ceiling and
// blacklisted email domain checks, in that order. The coverage checks are
// skipped when the amount is absent or unparseable.
func (t *Tables) ShouldAutoReject(fields model.Fields) (bool, string) {
	if coverage, ok := normalize.ParseMoneyAmount(fields.Get(model.FieldCoverageAmount)); ok {
		if coverage < t.minCoverage {
			return true, fmt.Sprintf("Coverage amount too low (minimum $%s)", normalize.GroupedInt(int64(t.minCoverage)))
		}
		if coverage > t.maxCoverage {
			return true, fmt.Sprintf("Coverage amount too high (maximum $%s without special approval)", normalize.GroupedInt(int64(t.maxCoverage)))
		}
	}

	if email := normalize.ToLowerSafe(fields.Get(model.FieldContactEmail)); email != "" {
		parts := strings.Split(email, "@")
		domain := parts[len(parts)-1]
		if slices.Contains(t.blacklistedDomains, domain) {
			return true, "Email domain not accepted: " + domain
		}
	}
	return false, ""
}
