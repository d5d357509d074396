// Package assign routes submissions to underwriters by industry and
// coverage tier.
package assign

import (
	"math/rand/v2"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
	"github.com/sells-group/uw-workbench/internal/rules"
)

// Picker chooses one name from a non-empty pool.
type Picker interface {
	Pick(pool []string) string
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(pool []string) string

// Pick implements Picker.
func (f PickerFunc) Pick(pool []string) string { return f(pool) }

// RandomPicker picks uniformly at random.
var RandomPicker = PickerFunc(func(pool []string) string {
	return pool[rand.IntN(len(pool))]
})

// FirstPicker always picks the first name. Useful in tests and for
// deterministic batch runs.
var FirstPicker = PickerFunc(func(pool []string) string {
	return pool[0]
})

// Option configures an Engine.
type Option func(*Engine)

// WithPicker overrides the random picker.
func WithPicker(p Picker) Option {
	return func(e *Engine) {
		if p != nil {
			e.picker = p
		}
	}
}

// Engine assigns underwriters.
type Engine struct {
	tables *rules.Tables
	picker Picker
}

// New returns an Engine backed by tables.
func New(tables *rules.Tables, opts ...Option) *Engine {
	e := &Engine{tables: tables, picker: RandomPicker}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommendation explains a routing decision.
type Recommendation struct {
	Industry string   `json:"industry"`
	Coverage *float64 `json:"coverage_amount"`
	Tier     string   `json:"tier"`
	Matched  bool     `json:"matched"`
	Pool     []string `json:"eligible_underwriters"`
}

// Recommendations returns the tier and pool a submission routes to. When
// no tier matches, the junior pool is returned with Matched false.
func (e *Engine) Recommendations(fields model.Fields) Recommendation {
	industry := normalize.ToLowerSafe(fields.Get(model.FieldIndustry))
	rec := Recommendation{Industry: industry, Tier: rules.TierJunior}

	coverage, known := normalize.ParseMoneyAmount(fields.Get(model.FieldCoverageAmount))
	if known {
		rec.Coverage = &coverage
		for _, tier := range e.tables.Tiers() {
			if !tier.Covers(industry) || coverage < tier.MinCoverage {
				continue
			}
			if pool := e.tables.Underwriters(tier.Name); len(pool) > 0 {
				rec.Tier = tier.Name
				rec.Matched = true
				rec.Pool = pool
				return rec
			}
		}
	}

	rec.Pool = e.tables.Underwriters(rules.TierJunior)
	return rec
}

// Assign picks an underwriter, or rules.SystemAssignment when the fallback
// pool is empty.
func (e *Engine) Assign(fields model.Fields) string {
	rec := e.Recommendations(fields)
	if len(rec.Pool) == 0 {
		return rules.SystemAssignment
	}
	return e.picker.Pick(rec.Pool)
}
