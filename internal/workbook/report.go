package workbook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/uw-workbench/internal/model"
)

// Sheet names written by WriteReport.
const (
	SheetSummary    = "Summary"
	SheetFactors    = "Risk Factors"
	SheetSubmission = "Submission"
)

// Report is one scored submission.
type Report struct {
	Fields         model.Fields
	Validation     model.ValidationResult
	Assessment     model.RiskAssessment
	Priority       model.Priority
	Recommendation model.Recommendation
	Tier           string
	Underwriters   []string
}

// WriteReport saves r as a three-sheet workbook at path.
func WriteReport(path string, r Report) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	addRow(summary, "Item", "Value")
	addRow(summary, "Validation", string(r.Validation.Status))
	if len(r.Validation.MissingFields) > 0 {
		addRow(summary, "Missing Fields", strings.Join(r.Validation.MissingFields, ", "))
	}
	if r.Validation.Reason != "" {
		addRow(summary, "Reason", r.Validation.Reason)
	}
	addNumber(summary, "Overall Score", r.Assessment.OverallScore)
	addRow(summary, "Risk Level", string(r.Assessment.RiskLevel))
	addNumber(summary, "Technical", r.Assessment.Categories.Technical)
	addNumber(summary, "Operational", r.Assessment.Categories.Operational)
	addNumber(summary, "Financial", r.Assessment.Categories.Financial)
	addNumber(summary, "Compliance", r.Assessment.Categories.Compliance)
	addNumber(summary, "Confidence", r.Assessment.ConfidenceScore)
	addNumber(summary, "Industry Benchmark", r.Assessment.IndustryBenchmark)
	addRow(summary, "Scorer", r.Assessment.Scorer)
	addRow(summary, "Priority", string(r.Priority))
	addRow(summary, "Action", string(r.Recommendation.Action))
	addNumber(summary, "Action Confidence", r.Recommendation.Confidence)
	if p := r.Recommendation.EstimatedPremiumRange; p != nil {
		addNumber(summary, "Premium Minimum", p.Minimum)
		addNumber(summary, "Premium Recommended", p.Recommended)
		addNumber(summary, "Premium Maximum", p.Maximum)
	}
	addRow(summary, "Tier", r.Tier)
	addRow(summary, "Underwriters", strings.Join(r.Underwriters, ", "))
	for i, s := range r.Recommendation.Reasoning {
		addRow(summary, fmt.Sprintf("Reasoning %d", i+1), s)
	}
	for i, s := range r.Recommendation.SuggestedConditions {
		addRow(summary, fmt.Sprintf("Condition %d", i+1), s)
	}
	for i, s := range r.Recommendation.ReferralTriggers {
		addRow(summary, fmt.Sprintf("Referral %d", i+1), s)
	}

	factors, err := f.AddSheet(SheetFactors)
	if err != nil {
		return eris.Wrap(err, "xlsx: add factors sheet")
	}
	addRow(factors, "Category", "Factor", "Impact", "Score Impact", "Description", "Mitigation")
	for _, rf := range r.Assessment.RiskFactors {
		row := factors.AddRow()
		row.AddCell().SetString(rf.Category)
		row.AddCell().SetString(rf.Factor)
		row.AddCell().SetString(string(rf.ImpactLevel))
		row.AddCell().SetFloat(rf.ScoreImpact)
		row.AddCell().SetString(rf.Description)
		row.AddCell().SetString(rf.Mitigation)
	}

	sub, err := f.AddSheet(SheetSubmission)
	if err != nil {
		return eris.Wrap(err, "xlsx: add submission sheet")
	}
	addRow(sub, "Field", "Value")
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		addRow(sub, k, fmt.Sprint(r.Fields[k]))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func addNumber(sheet *xlsx.Sheet, label string, v float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetFloat(v)
}
