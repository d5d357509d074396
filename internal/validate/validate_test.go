package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/rules"
)

func baseFields() model.Fields {
	return model.Fields{
		"insured_name":      "Acme",
		"policy_type":       "Cyber Liability",
		"effective_date":    "2025-01-01",
		"industry":          "retail",
		"coverage_amount":   "$500,000",
		"security_measures": "mfa, encryption, firewall",
	}
}

func with(f model.Fields, kv ...any) model.Fields {
	out := f.Clone()
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		if kv[i+1] == nil {
			delete(out, key)
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}

func TestValidate(t *testing.T) {
	t.Parallel()
	v := New(rules.Default(rules.WithHighRiskIndustries("cannabis")))

	tests := []struct {
		name        string
		fields      model.Fields
		wantStatus  model.ValidationStatus
		wantMissing []string
		wantReason  string
	}{
		{
			name:       "complete low risk",
			fields:     baseFields(),
			wantStatus: model.ValidationComplete,
		},
		{
			name:        "missing required fields",
			fields:      with(baseFields(), "insured_name", nil, "effective_date", ""),
			wantStatus:  model.ValidationIncomplete,
			wantMissing: []string{"insured_name", "effective_date"},
			wantReason:  "Missing required fields: insured_name, effective_date",
		},
		{
			name:        "missing field wins over coverage breach",
			fields:      with(baseFields(), "industry", "education", "coverage_amount", "$50,000,000", "insured_name", nil),
			wantStatus:  model.ValidationIncomplete,
			wantMissing: []string{"insured_name"},
			wantReason:  "Missing required fields: insured_name",
		},
		{
			name:       "outside appetite",
			fields:     with(baseFields(), "policy_type", "General Liability"),
			wantStatus: model.ValidationRejected,
			wantReason: "Policy type 'General Liability' is outside our cyber insurance appetite. Accepted types: " +
				"Cyber Liability, Privacy Liability, Data Breach Response, Technology E&O, Cyber Security, " +
				"First Party Cyber, Third Party Cyber, cyber, Cyber, CYBER",
		},
		{
			name:       "appetite is case sensitive",
			fields:     with(baseFields(), "policy_type", "cyber liability"),
			wantStatus: model.ValidationRejected,
		},
		{
			name:       "policy type is trimmed",
			fields:     with(baseFields(), "policy_type", "  Cyber  "),
			wantStatus: model.ValidationComplete,
		},
		{
			name:        "blank industry",
			fields:      with(baseFields(), "industry", "   "),
			wantStatus:  model.ValidationIncomplete,
			wantMissing: []string{"industry"},
			wantReason:  "Industry classification is required for cyber insurance",
		},
		{
			name:       "education coverage breach",
			fields:     with(baseFields(), "industry", "education", "coverage_amount", "$50,000,000"),
			wantStatus: model.ValidationRejected,
			wantReason: "Coverage amount $50,000,000.0 exceeds our maximum of $10,000,000 for education industry",
		},
		{
			name:       "limit lookup ignores case",
			fields:     with(baseFields(), "industry", "Education", "coverage_amount", 12_000_000),
			wantStatus: model.ValidationRejected,
			wantReason: "Coverage amount $12,000,000.0 exceeds our maximum of $10,000,000 for Education industry",
		},
		{
			name:       "coverage at limit passes",
			fields:     with(baseFields(), "industry", "education", "coverage_amount", "10M"),
			wantStatus: model.ValidationComplete,
		},
		{
			name:       "unparseable coverage skips limit check",
			fields:     with(baseFields(), "coverage_amount", "a lot"),
			wantStatus: model.ValidationComplete,
		},
		{
			name:       "infinite coverage skips limit check",
			fields:     with(baseFields(), "coverage_amount", "Infinity"),
			wantStatus: model.ValidationComplete,
		},
		{
			name:        "high risk industry missing supplemental",
			fields:      with(baseFields(), "industry", "cannabis", "revenue", "5M"),
			wantStatus:  model.ValidationIncomplete,
			wantMissing: []string{"employee_count", "data_types"},
			wantReason:  "High-risk industry cannabis requires additional information: employee_count, data_types",
		},
		{
			name:       "high risk industry with supplemental",
			fields:     with(baseFields(), "industry", "cannabis", "revenue", "5M", "employee_count", 40, "data_types", "pii"),
			wantStatus: model.ValidationComplete,
		},
		{
			name:        "large account without existing coverage",
			fields:      with(baseFields(), "revenue", "2B"),
			wantStatus:  model.ValidationIncomplete,
			wantMissing: []string{"existing_cyber_coverage"},
			wantReason:  "Large accounts must provide details of existing cyber coverage",
		},
		{
			name:       "large account with existing coverage",
			fields:     with(baseFields(), "revenue", "2B", "existing_cyber_coverage", "Chubb $5M"),
			wantStatus: model.ValidationComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := v.Validate(tt.fields)
			assert.Equal(t, tt.wantStatus, got.Status)
			if tt.wantMissing != nil {
				assert.Equal(t, tt.wantMissing, got.MissingFields)
			}
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, got.Reason)
			}
			if got.Status != model.ValidationIncomplete {
				assert.Empty(t, got.MissingFields)
			}
			if got.Status == model.ValidationComplete {
				assert.Empty(t, got.Reason)
			}
		})
	}
}

func TestValidate_IntegerTypedFields(t *testing.T) {
	t.Parallel()
	v := New(rules.Default())

	fields := model.Fields{
		"policy_type":       1,
		"industry":          2,
		"data_types":        3,
		"security_measures": 4,
		"coverage_amount":   5_000_000,
		"employee_count":    150,
		"insured_name":      "X",
		"effective_date":    "2025-01-01",
	}

	var got model.ValidationResult
	assert.NotPanics(t, func() { got = v.Validate(fields) })
	assert.Equal(t, model.ValidationRejected, got.Status)
	assert.Contains(t, got.Reason, "Policy type '1'")

	stringly := with(fields, "policy_type", "1", "industry", "2")
	assert.Equal(t, got, v.Validate(stringly))
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	v := New(rules.Default())

	fields := baseFields()
	before := fields.Clone()
	v.Validate(fields)
	assert.Equal(t, before, fields)
}
