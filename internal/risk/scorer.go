// Package risk scores cyber submissions. Two scorers share the Scorer
// interface: a baseline categorical scorer and the enhanced multi-factor
// scorer, which is the default.
package risk

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
)

// Scorer names.
const (
	KindBaseline = "baseline"
	KindEnhanced = "enhanced"
)

// Scorer produces a risk assessment from extracted fields and optional
// claims history. Implementations are pure and safe for concurrent use.
type Scorer interface {
	Name() string
	Score(fields model.Fields, hist *model.HistoricalData) model.RiskAssessment
}

// New returns the scorer named by kind. An empty kind selects enhanced.
func New(kind string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindEnhanced:
		return NewEnhanced(), nil
	case KindBaseline:
		return NewBaseline(), nil
	default:
		return nil, eris.Errorf("risk: unknown scorer %q", kind)
	}
}

var confidenceFields = []string{
	model.FieldIndustry,
	model.FieldEmployeeCount,
	model.FieldRevenue,
	model.FieldDataTypes,
	model.FieldSecurityMeasures,
}

// Confidence estimates how much the assessment can be trusted given the
// data supplied. It is shared by both scorers.
func Confidence(fields model.Fields, hist *model.HistoricalData) float64 {
	c := 30.0

	present := 0
	for _, f := range confidenceFields {
		if normalize.Present(fields.Get(f)) {
			present++
		}
	}
	c += float64(present) / float64(len(confidenceFields)) * 40

	if sec := normalize.ToTrimmedSafe(fields.Get(model.FieldSecurityMeasures)); sec != "" {
		c += min(float64(len(sec))/500*20, 20)
	}
	if hist != nil {
		c += 10
	}
	return model.Clamp(c)
}

// title renders "phi theft" as "Phi Theft".
func title(s string) string {
	return cases.Title(language.English).String(s)
}
