package workbook

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/uw-workbench/internal/model"
)

func TestWriteReport(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "report.xlsx")

	err := WriteReport(path, Report{
		Fields: model.Fields{"industry": "retail", "insured_name": "Acme"},
		Validation: model.ValidationResult{
			Status:        model.ValidationIncomplete,
			MissingFields: []string{"revenue", "employee_count"},
		},
		Assessment: model.RiskAssessment{
			OverallScore: 42.5,
			RiskLevel:    model.RiskMedium,
			Scorer:       "enhanced",
			RiskFactors: []model.RiskFactor{
				{Category: "technical", Factor: "No MFA", ImpactLevel: model.ImpactHigh, ScoreImpact: 15},
			},
		},
		Priority: model.PriorityMedium,
		Recommendation: model.Recommendation{
			Action:                model.ActionRequestInfo,
			Reasoning:             []string{"Missing revenue"},
			EstimatedPremiumRange: &model.PremiumRange{Minimum: 1000, Recommended: 1500, Maximum: 2000},
		},
		Tier:         "junior",
		Underwriters: []string{"a@uw.com", "b@uw.com"},
	})
	require.NoError(t, err)

	for _, name := range []string{SheetSummary, SheetFactors, SheetSubmission} {
		rows, err := ReadRows(path, Options{SheetName: name})
		require.NoError(t, err, name)
		require.NotEmpty(t, rows, name)
	}

	summary, err := ReadRows(path, Options{SheetName: SheetSummary})
	require.NoError(t, err)
	got := make(map[string]string, len(summary))
	for _, r := range summary {
		if len(r) == 2 {
			got[r[0]] = r[1]
		}
	}
	assert.Equal(t, "Incomplete", got["Validation"])
	assert.Equal(t, "revenue, employee_count", got["Missing Fields"])
	assert.Equal(t, "42.5", got["Overall Score"])
	assert.Equal(t, "request_info", got["Action"])
	assert.Equal(t, "1500", got["Premium Recommended"])
	assert.Equal(t, "a@uw.com, b@uw.com", got["Underwriters"])
	assert.Equal(t, "Missing revenue", got["Reasoning 1"])

	factors, err := ReadRows(path, Options{SheetName: SheetFactors})
	require.NoError(t, err)
	require.Len(t, factors, 2)
	assert.Equal(t, "No MFA", factors[1][1])

	sub, err := ReadRows(path, Options{SheetName: SheetSubmission})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Field", "Value"}, {"industry", "retail"}, {"insured_name", "Acme"}}, sub)
}
