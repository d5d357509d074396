package guidewire

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/uw-workbench/internal/model"
	"github.com/sells-group/uw-workbench/internal/normalize"
)

// Composite is the body posted to the composite endpoint.
type Composite struct {
	Requests []SubRequest `json:"requests"`
}

// SubRequest is one step of a composite call. Later steps reference
// earlier results through ${var} placeholders.
type SubRequest struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	Body   *Body  `json:"body,omitempty"`
	Vars   []Var  `json:"vars,omitempty"`
}

// Body wraps request attributes in the JSON:API envelope.
type Body struct {
	Data Data `json:"data"`
}

// Data holds the attribute map.
type Data struct {
	Attributes map[string]any `json:"attributes"`
}

// Var captures a value from a sub-response for later steps.
type Var struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Choice is a typelist value for a coverage term.
type Choice struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Coverage term kinds.
const (
	TermAggregate = "aggregate"
	TermBusInc    = "bus_inc"
	TermExtortion = "extortion"
	TermRetention = "retention"
)

type tier struct {
	amount int64
	choice Choice
}

// Tiers are ascending so NearestChoice resolves ties to the lower amount.
var coverageTiers = map[string][]tier{
	TermAggregate: {
		{25_000, Choice{"25Kusd", "25,000"}},
		{50_000, Choice{"50Kusd", "50,000"}},
		{100_000, Choice{"100Kusd", "100,000"}},
		{250_000, Choice{"250Kusd", "250,000"}},
		{500_000, Choice{"500Kusd", "500,000"}},
		{1_000_000, Choice{"1Musd", "1,000,000"}},
		{2_000_000, Choice{"2Musd", "2,000,000"}},
		{5_000_000, Choice{"5Musd", "5,000,000"}},
	},
	TermBusInc: {
		{10_000, Choice{"10Kusd", "10,000"}},
		{25_000, Choice{"25Kusd", "25,000"}},
		{50_000, Choice{"50Kusd", "50,000"}},
		{100_000, Choice{"100Kusd", "100,000"}},
		{250_000, Choice{"250Kusd", "250,000"}},
	},
	TermExtortion: {
		{5_000, Choice{"5Kusd", "5,000"}},
		{10_000, Choice{"10Kusd", "10,000"}},
		{25_000, Choice{"25Kusd", "25,000"}},
		{50_000, Choice{"50Kusd", "50,000"}},
	},
	TermRetention: {
		{1_000, Choice{"1Kusd", "1,000"}},
		{2_500, Choice{"25Kusd", "2,500"}},
		{5_000, Choice{"5Kusd", "5,000"}},
		{7_500, Choice{"75Kusd", "7,500"}},
		{10_000, Choice{"10Kusd", "10,000"}},
	},
}

// NearestChoice returns the coverage code closest to amount for a term
// kind. Equal distances pick the lower tier. Unknown kinds use the
// aggregate table.
func NearestChoice(kind string, amount int64) Choice {
	tiers, ok := coverageTiers[kind]
	if !ok {
		tiers = coverageTiers[TermAggregate]
	}
	best := tiers[0]
	bestDiff := absDiff(best.amount, amount)
	for _, t := range tiers[1:] {
		if d := absDiff(t.amount, amount); d < bestDiff {
			best, bestDiff = t, d
		}
	}
	return best.choice
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Mapper defaults.
const (
	DefaultAccountProducer = "pc:2"
	DefaultJobProducer     = "pc:16"
	DefaultState           = "CA"
	ProductCode            = "USCyber"
	LineCode               = "USCyberLine"
	CoveragePattern        = "ACLCommlCyberLiability"

	defaultCoverage  = 50_000
	defaultBusInc    = 10_000
	defaultExtortion = 5_000
	defaultRetention = 7_500
	payrollPerHead   = 50_000
	maxDescription   = 500
)

var (
	entityTypes = map[string]string{
		"corporation":               "corporation",
		"corp":                      "corporation",
		"llc":                       "llc",
		"limited liability company": "llc",
		"partnership":               "partnership",
		"sole proprietorship":       "sole_proprietorship",
		"nonprofit":                 "nonprofit",
	}
	industryCodes = map[string]string{
		"technology":         "tech",
		"healthcare":         "healthcare",
		"financial_services": "financial",
		"financial services": "financial",
		"manufacturing":      "manufacturing",
		"retail":             "retail",
		"education":          "education",
		"government":         "government",
	}
	dataTypeCodes = []struct{ key, code string }{
		{"pii", "personally_identifiable"},
		{"phi", "protected_health"},
		{"payment", "payment_card"},
		{"financial", "financial_data"},
		{"medical", "protected_health"},
		{"credit card", "payment_card"},
		{"personal", "personally_identifiable"},
	}
)

// Mapper builds composite payloads from submission fields.
type Mapper struct {
	// JobProducer is the producer code on the submission job.
	JobProducer string
	Now         func() time.Time
}

// NewMapper returns a Mapper. An empty producerCode uses DefaultJobProducer.
func NewMapper(producerCode string) *Mapper {
	if producerCode == "" {
		producerCode = DefaultJobProducer
	}
	return &Mapper{JobProducer: producerCode, Now: time.Now}
}

// Build returns the five-step composite: create account, create submission
// job, add the cyber coverage, patch line business data, and quote.
func (m *Mapper) Build(fields model.Fields) Composite {
	sub := normalize.Submission(fields)
	state := stateOf(fields)
	address := addressOf(fields, state)

	effective := sub.EffectiveDate
	if effective == "" {
		effective = m.Now().Format("2006-01-02")
	}

	account := SubRequest{
		Method: "post",
		URI:    "/account/v1/accounts",
		Body: &Body{Data: Data{Attributes: map[string]any{
			"initialAccountHolder": map[string]any{
				"contactSubtype": "Company",
				"companyName":    orDefault(sub.InsuredName, "Unknown Company"),
				"taxId":          orDefault(str(fields, "company_ein"), "00-0000000"),
				"primaryAddress": address,
				"primaryContact": map[string]any{
					"name":         orDefault(str(fields, "contact_name"), orDefault(sub.InsuredName, "Unknown Contact")),
					"emailAddress": sub.ContactEmail,
					"phoneNumber":  str(fields, "contact_phone"),
					"jobTitle":     str(fields, "contact_title"),
				},
			},
			"initialPrimaryLocation": address,
			"producerCodes":          []map[string]any{{"id": accountProducer(fields)}},
			"organizationType":       map[string]any{"code": lookup(entityTypes, str(fields, "entity_type"))},
			"industryCode":           lookup(industryCodes, sub.Industry),
		}}},
		Vars: []Var{
			{Name: "accountId", Path: "$.data.attributes.id"},
			{Name: "driverId", Path: "$.data.attributes.accountHolder.id"},
		},
	}

	job := SubRequest{
		Method: "post",
		URI:    "/job/v1/submissions",
		Body: &Body{Data: Data{Attributes: map[string]any{
			"account":          map[string]any{"id": "${accountId}"},
			"baseState":        map[string]any{"code": state},
			"jobEffectiveDate": effective,
			"producerCode":     map[string]any{"id": m.JobProducer},
			"product":          map[string]any{"id": ProductCode},
			"policyType":       "cyber",
			"renewalIndicator": strings.EqualFold(str(fields, "renewal_indicator"), "yes"),
		}}},
		Vars: []Var{{Name: "jobId", Path: "$.data.attributes.id"}},
	}

	coverage := SubRequest{
		Method: "post",
		URI:    "/job/v1/jobs/${jobId}/lines/" + LineCode + "/coverages",
		Body: &Body{Data: Data{Attributes: map[string]any{
			"pattern": map[string]any{"id": CoveragePattern},
			"terms":   m.CoverageTerms(fields),
		}}},
	}

	business := SubRequest{
		Method: "patch",
		URI:    "/job/v1/jobs/${jobId}/lines/" + LineCode,
		Body:   &Body{Data: Data{Attributes: m.BusinessData(fields)}},
	}

	quote := SubRequest{Method: "post", URI: "/job/v1/jobs/${jobId}/quote"}

	return Composite{Requests: []SubRequest{account, job, coverage, business, quote}}
}

// CoverageTerms maps the requested limits onto coverage codes. Aggregate
// limits of $1M or more get the larger public relations sublimit.
func (m *Mapper) CoverageTerms(fields model.Fields) map[string]any {
	aggregate := limit(fields.Get(model.FieldCoverageAmount), defaultCoverage)
	pr := Choice{"5Kusd", "5,000"}
	if aggregate >= 1_000_000 {
		pr = Choice{"25Kusd", "25,000"}
	}
	return map[string]any{
		"ACLCommlCyberLiabilityBusIncLimit":     term(NearestChoice(TermBusInc, limit(fields.Get("business_interruption_limit"), defaultBusInc))),
		"ACLCommlCyberLiabilityCyberAggLimit":   term(NearestChoice(TermAggregate, aggregate)),
		"ACLCommlCyberLiabilityExtortion":       term(NearestChoice(TermExtortion, limit(fields.Get("cyber_extortion_limit"), defaultExtortion))),
		"ACLCommlCyberLiabilityPublicRelations": term(pr),
		"ACLCommlCyberLiabilityRetention":       term(NearestChoice(TermRetention, limit(fields.Get("deductible"), defaultRetention))),
		"ACLCommlCyberLiabilityWaitingPeriod":   term(Choice{"12HR", "12 hrs"}),
	}
}

// BusinessData maps financial and operational facts onto the cyber line.
// Assets, liabilities and payroll are estimated from revenue and head count.
func (m *Mapper) BusinessData(fields model.Fields) map[string]any {
	sub := normalize.Submission(fields)
	employees, _ := sub.Employees()
	revenue := decimal.Zero
	if r, ok := normalize.ParseMoneyAmount(fields.Get("annual_revenue")); ok {
		revenue = decimal.NewFromFloat(r)
	} else if r, ok := sub.AnnualRevenue(); ok {
		revenue = decimal.NewFromFloat(r)
	}

	started := sub.EffectiveDate
	if years, ok := normalize.ParseNumber(fields.Get(model.FieldYearsInBusiness)); ok && years >= 0 {
		started = fmt.Sprintf("%d-01-01T00:00:00.000Z", m.Now().Year()-int(years))
	}
	if started == "" {
		started = m.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}

	partTime := 0
	if pct, ok := normalize.ParseNumber(fields.Get("remote_workforce_pct")); ok {
		partTime = int(pct) * employees / 100
	}
	records := 0
	if n, ok := normalize.ParseNumber(fields.Get("records_count")); ok {
		records = int(n)
	}
	webRevenue := 0.0
	if w, ok := normalize.ParseMoneyAmount(fields.Get("annual_website_revenue")); ok {
		webRevenue = w
	}

	description := str(fields, "business_description")
	if len(description) > maxDescription {
		description = description[:maxDescription]
	}

	return map[string]any{
		"aclDateBusinessStarted": started,
		"aclPolicyType":          map[string]any{"code": "commercialcyber", "name": "Commercial Cyber"},
		"aclTotalAssets":         revenue.Mul(decimal.NewFromFloat(1.5)).String(),
		"aclTotalFTEmployees":    employees,
		"aclTotalLiabilities":    revenue.Mul(decimal.NewFromFloat(0.3)).String(),
		"aclTotalPTEmployees":    partTime,
		"aclTotalPayroll":        decimal.NewFromInt(int64(employees) * payrollPerHead).String(),
		"aclTotalRevenues":       revenue.String(),
		"aclIndustryType":        lookup(industryCodes, sub.Industry),
		"aclBusinessDescription": description,
		"aclDataTypes":           dataTypeCode(sub.DataTypes),
		"aclRecordsCount":        records,
		"aclWebsiteRevenue":      webRevenue,
	}
}

func term(c Choice) map[string]any {
	return map[string]any{"choiceValue": c}
}

// limit parses a money amount, falling back to def when unparseable.
func limit(v any, def int64) int64 {
	if f, ok := normalize.ParseMoneyAmount(v); ok && f > 0 {
		return int64(f)
	}
	return def
}

// pick returns the business value, then the mailing value, then def.
func pick(fields model.Fields, business, mailing, def string) string {
	return orDefault(str(fields, business), orDefault(str(fields, mailing), def))
}

func stateOf(fields model.Fields) string {
	return strings.ToUpper(pick(fields, "business_state", "mailing_state", DefaultState))
}

func addressOf(fields model.Fields, state string) map[string]any {
	return map[string]any{
		"addressLine1": pick(fields, "business_address", "mailing_address", "Address Not Provided"),
		"city":         pick(fields, "business_city", "mailing_city", "Unknown"),
		"postalCode":   pick(fields, "business_zip", "mailing_zip", "00000"),
		"state":        map[string]any{"code": state},
	}
}

func accountProducer(fields model.Fields) string {
	code := str(fields, "producer_code")
	if code == "" {
		return DefaultAccountProducer
	}
	if strings.HasPrefix(code, "pc:") {
		return code
	}
	return "pc:" + code
}

func dataTypeCode(dataTypes string) string {
	for _, d := range dataTypeCodes {
		if strings.Contains(dataTypes, d.key) {
			return d.code
		}
	}
	return "general"
}

func lookup(table map[string]string, key string) string {
	if code, ok := table[strings.ToLower(strings.TrimSpace(key))]; ok {
		return code
	}
	return "other"
}

func str(fields model.Fields, key string) string {
	return normalize.ToTrimmedSafe(fields.Get(key))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
