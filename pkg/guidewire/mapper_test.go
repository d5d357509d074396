package guidewire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/uw-workbench/internal/model"
)

func fixedMapper() *Mapper {
	m := NewMapper("")
	m.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestNearestChoice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		kind   string
		amount int64
		want   string
	}{
		{"exact aggregate", TermAggregate, 500_000, "500Kusd"},
		{"tie picks lower", TermAggregate, 37_500, "25Kusd"},
		{"just past midpoint", TermAggregate, 40_000, "50Kusd"},
		{"above top tier", TermAggregate, 10_000_000, "5Musd"},
		{"below bottom tier", TermAggregate, 0, "25Kusd"},
		{"bus inc", TermBusInc, 60_000, "50Kusd"},
		{"extortion", TermExtortion, 20_000, "25Kusd"},
		{"retention code", TermRetention, 2_500, "25Kusd"},
		{"retention seven five", TermRetention, 8_000, "75Kusd"},
		{"unknown kind", "mystery", 1_000_000, "1Musd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NearestChoice(tt.kind, tt.amount).Code)
		})
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	fields := model.Fields{
		"insured_name":   "Acme Retail",
		"effective_date": "2026-04-01",
		"industry":       "Retail",
		"business_state": "ny",
		"business_city":  "Albany",
		"producer_code":  "77",
		"entity_type":    "LLC",
		"contact_email":  "risk@acme.com",
	}

	c := fixedMapper().Build(fields)
	require.Len(t, c.Requests, 5)

	uris := make([]string, 0, len(c.Requests))
	for _, r := range c.Requests {
		uris = append(uris, r.Method+" "+r.URI)
	}
	assert.Equal(t, []string{
		"post /account/v1/accounts",
		"post /job/v1/submissions",
		"post /job/v1/jobs/${jobId}/lines/USCyberLine/coverages",
		"patch /job/v1/jobs/${jobId}/lines/USCyberLine",
		"post /job/v1/jobs/${jobId}/quote",
	}, uris)
	assert.Nil(t, c.Requests[4].Body)

	account := c.Requests[0].Body.Data.Attributes
	assert.Equal(t, "retail", account["industryCode"])
	assert.Equal(t, []map[string]any{{"id": "pc:77"}}, account["producerCodes"])
	assert.Equal(t, map[string]any{"code": "llc"}, account["organizationType"])
	holder := account["initialAccountHolder"].(map[string]any)
	assert.Equal(t, "Acme Retail", holder["companyName"])
	assert.Equal(t, "00-0000000", holder["taxId"])
	addr := holder["primaryAddress"].(map[string]any)
	assert.Equal(t, "Albany", addr["city"])
	assert.Equal(t, "00000", addr["postalCode"])
	assert.Equal(t, map[string]any{"code": "NY"}, addr["state"])
	assert.Equal(t, []Var{
		{Name: "accountId", Path: "$.data.attributes.id"},
		{Name: "driverId", Path: "$.data.attributes.accountHolder.id"},
	}, c.Requests[0].Vars)

	job := c.Requests[1].Body.Data.Attributes
	assert.Equal(t, map[string]any{"id": "${accountId}"}, job["account"])
	assert.Equal(t, "2026-04-01", job["jobEffectiveDate"])
	assert.Equal(t, map[string]any{"id": DefaultJobProducer}, job["producerCode"])
	assert.Equal(t, map[string]any{"code": "NY"}, job["baseState"])
	assert.Equal(t, false, job["renewalIndicator"])
}

func TestBuild_Defaults(t *testing.T) {
	t.Parallel()
	c := fixedMapper().Build(model.Fields{})

	job := c.Requests[1].Body.Data.Attributes
	assert.Equal(t, "2026-03-01", job["jobEffectiveDate"])
	assert.Equal(t, map[string]any{"code": DefaultState}, job["baseState"])

	account := c.Requests[0].Body.Data.Attributes
	assert.Equal(t, []map[string]any{{"id": DefaultAccountProducer}}, account["producerCodes"])
	assert.Equal(t, "other", account["industryCode"])
	holder := account["initialAccountHolder"].(map[string]any)
	assert.Equal(t, "Unknown Company", holder["companyName"])
}

func TestCoverageTerms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		fields    model.Fields
		aggregate string
		pr        string
		retention string
	}{
		{"defaults", model.Fields{}, "50Kusd", "5Kusd", "75Kusd"},
		{"large aggregate", model.Fields{"coverage_amount": "$1,000,000", "deductible": "$1,000"}, "1Musd", "25Kusd", "1Kusd"},
		{"mid aggregate", model.Fields{"coverage_amount": "$300,000"}, "250Kusd", "5Kusd", "75Kusd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			terms := fixedMapper().CoverageTerms(tt.fields)
			code := func(key string) string {
				return terms[key].(map[string]any)["choiceValue"].(Choice).Code
			}
			assert.Equal(t, tt.aggregate, code("ACLCommlCyberLiabilityCyberAggLimit"))
			assert.Equal(t, tt.pr, code("ACLCommlCyberLiabilityPublicRelations"))
			assert.Equal(t, tt.retention, code("ACLCommlCyberLiabilityRetention"))
			assert.Equal(t, "10Kusd", code("ACLCommlCyberLiabilityBusIncLimit"))
			assert.Equal(t, "5Kusd", code("ACLCommlCyberLiabilityExtortion"))
			assert.Equal(t, "12HR", code("ACLCommlCyberLiabilityWaitingPeriod"))
		})
	}
}

func TestBusinessData(t *testing.T) {
	t.Parallel()
	data := fixedMapper().BusinessData(model.Fields{
		"annual_revenue":       "$2,000,000",
		"employee_count":       "10",
		"years_in_business":    "5",
		"remote_workforce_pct": "30",
		"data_types":           "PHI, billing",
		"industry":             "healthcare",
	})

	assert.Equal(t, "2021-01-01T00:00:00.000Z", data["aclDateBusinessStarted"])
	assert.Equal(t, "3000000", data["aclTotalAssets"])
	assert.Equal(t, "600000", data["aclTotalLiabilities"])
	assert.Equal(t, "500000", data["aclTotalPayroll"])
	assert.Equal(t, "2000000", data["aclTotalRevenues"])
	assert.Equal(t, 10, data["aclTotalFTEmployees"])
	assert.Equal(t, 3, data["aclTotalPTEmployees"])
	assert.Equal(t, "protected_health", data["aclDataTypes"])
	assert.Equal(t, "healthcare", data["aclIndustryType"])
}

func TestBusinessData_TruncatesDescription(t *testing.T) {
	t.Parallel()
	long := make([]byte, 800)
	for i := range long {
		long[i] = 'x'
	}
	data := fixedMapper().BusinessData(model.Fields{"business_description": string(long)})
	assert.Len(t, data["aclBusinessDescription"], maxDescription)
	assert.Equal(t, "0", data["aclTotalRevenues"])
	assert.Equal(t, "general", data["aclDataTypes"])
}
