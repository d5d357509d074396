package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/rules"
)

func TestAssign(t *testing.T) {
	t.Parallel()
	e := New(rules.Default(), WithPicker(FirstPicker))

	tests := []struct {
		name     string
		fields   model.Fields
		want     string
		wantTier string
		matched  bool
	}{
		{
			name:     "senior healthcare above floor",
			fields:   model.Fields{"industry": "Healthcare", "coverage_amount": "$25M"},
			want:     "Sarah Mitchell",
			wantTier: rules.TierSenior,
			matched:  true,
		},
		{
			name:     "senior industry below floor falls back",
			fields:   model.Fields{"industry": "healthcare", "coverage_amount": "$5M"},
			want:     "Michael Brown",
			wantTier: rules.TierJunior,
		},
		{
			name:     "standard technology",
			fields:   model.Fields{"industry": "technology", "coverage_amount": 5_000_000},
			want:     "James Wilson",
			wantTier: rules.TierStandard,
			matched:  true,
		},
		{
			name:     "junior retail",
			fields:   model.Fields{"industry": "retail", "coverage_amount": "1"},
			want:     "Michael Brown",
			wantTier: rules.TierJunior,
			matched:  true,
		},
		{
			name:     "unknown industry falls back to junior",
			fields:   model.Fields{"industry": "unknown_industry", "coverage_amount": "$1"},
			want:     "Michael Brown",
			wantTier: rules.TierJunior,
		},
		{
			name:     "unknown coverage never matches a tier",
			fields:   model.Fields{"industry": "retail"},
			want:     "Michael Brown",
			wantTier: rules.TierJunior,
		},
		{
			name:     "integer industry",
			fields:   model.Fields{"industry": 2, "coverage_amount": 5_000_000},
			want:     "Michael Brown",
			wantTier: rules.TierJunior,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.Assign(tt.fields))
			rec := e.Recommendations(tt.fields)
			assert.Equal(t, tt.wantTier, rec.Tier)
			assert.Equal(t, tt.matched, rec.Matched)
		})
	}
}

func TestAssign_RandomPickStaysInPool(t *testing.T) {
	t.Parallel()
	tbl := rules.Default()
	e := New(tbl)

	pool := tbl.Underwriters(rules.TierJunior)
	for range 50 {
		assert.Contains(t, pool, e.Assign(model.Fields{"industry": "unknown_industry", "coverage_amount": "$1"}))
	}
}

func TestAssign_EmptyPools(t *testing.T) {
	t.Parallel()

	e := New(rules.Default(rules.WithUnderwriters(rules.TierJunior)), WithPicker(FirstPicker))
	assert.Equal(t, rules.SystemAssignment, e.Assign(model.Fields{"industry": "retail", "coverage_amount": 1_000_000}))

	// an empty matching tier falls through to the next one
	e = New(rules.Default(rules.WithUnderwriters(rules.TierSenior)), WithPicker(FirstPicker))
	assert.Equal(t, "Michael Brown", e.Assign(model.Fields{"industry": "banking", "coverage_amount": "30M"}))
}

func TestAssign_CustomPicker(t *testing.T) {
	t.Parallel()

	var seen []string
	last := PickerFunc(func(pool []string) string {
		seen = pool
		return pool[len(pool)-1]
	})
	e := New(rules.Default(), WithPicker(last))

	assert.Equal(t, "Maria Rodriguez", e.Assign(model.Fields{"industry": "government", "coverage_amount": "$20,000,000"}))
	assert.Len(t, seen, 3)
}
