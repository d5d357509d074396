package risk

import (
	"strings"

	"github.com/sells-group/uw-workbench/internal/model"
)

// IndustryProfile describes the cyber exposure of an industry. Every weight
// is in [0,1] except BaseMultiplier.
type IndustryProfile struct {
	Name             string   `json:"name"`
	BaseMultiplier   float64  `json:"base_multiplier"`
	DataSensitivity  float64  `json:"data_sensitivity"`
	RegulatoryBurden float64  `json:"regulatory_burden"`
	AttackFrequency  float64  `json:"attack_frequency"`
	CommonThreats    []string `json:"common_threats"`
}

// score is the industry sub-score before capping.
func (p IndustryProfile) score() float64 {
	return p.BaseMultiplier*20 + p.DataSensitivity*15 + p.RegulatoryBurden*10 + p.AttackFrequency*15
}

// average is the industry benchmark before capping.
func (p IndustryProfile) average() float64 {
	return p.BaseMultiplier*15 + p.DataSensitivity*10 + p.RegulatoryBurden*10 + p.AttackFrequency*15 + 50
}

var industryProfiles = map[string]IndustryProfile{
	"healthcare": {
		Name: "Healthcare", BaseMultiplier: 1.4, DataSensitivity: 0.8, RegulatoryBurden: 0.9, AttackFrequency: 0.7,
		CommonThreats: []string{"ransomware", "phi_theft", "insider_threats"},
	},
	"financial services": {
		Name: "Financial Services", BaseMultiplier: 1.5, DataSensitivity: 0.9, RegulatoryBurden: 0.8, AttackFrequency: 0.8,
		CommonThreats: []string{"account_takeover", "wire_fraud", "data_breach"},
	},
	"technology": {
		Name: "Technology", BaseMultiplier: 1.2, DataSensitivity: 0.6, RegulatoryBurden: 0.3, AttackFrequency: 0.9,
		CommonThreats: []string{"ip_theft", "ddos", "supply_chain"},
	},
	"manufacturing": {
		Name: "Manufacturing", BaseMultiplier: 1.1, DataSensitivity: 0.4, RegulatoryBurden: 0.4, AttackFrequency: 0.5,
		CommonThreats: []string{"operational_disruption", "ip_theft", "supply_chain"},
	},
	"retail": {
		Name: "Retail", BaseMultiplier: 1.3, DataSensitivity: 0.7, RegulatoryBurden: 0.5, AttackFrequency: 0.6,
		CommonThreats: []string{"payment_card_fraud", "customer_data_breach", "pos_malware"},
	},
	"education": {
		Name: "Education", BaseMultiplier: 1.0, DataSensitivity: 0.6, RegulatoryBurden: 0.6, AttackFrequency: 0.4,
		CommonThreats: []string{"student_data_breach", "research_theft", "ransomware"},
	},
	"government": {
		Name: "Government", BaseMultiplier: 1.6, DataSensitivity: 0.9, RegulatoryBurden: 0.9, AttackFrequency: 0.8,
		CommonThreats: []string{"nation_state", "sensitive_data_breach", "infrastructure_attack"},
	},
}

// profileKey folds "Financial_Services" and "financial services" together.
func profileKey(industry string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(industry)), "_", " ")
}

// LookupProfile returns the profile for an industry, if one exists.
func LookupProfile(industry string) (IndustryProfile, bool) {
	p, ok := industryProfiles[profileKey(industry)]
	return p, ok
}

type securityControl struct {
	key           string
	effectiveness float64
	category      string
}

// Evaluation order matters for factor ordering.
var securityControls = []securityControl{
	{"multi_factor_authentication", 0.85, model.CategoryTechnical},
	{"encryption_at_rest", 0.7, model.CategoryTechnical},
	{"encryption_in_transit", 0.6, model.CategoryTechnical},
	{"endpoint_detection", 0.8, model.CategoryTechnical},
	{"network_segmentation", 0.75, model.CategoryTechnical},
	{"security_awareness_training", 0.6, model.CategoryOperational},
	{"incident_response_plan", 0.65, model.CategoryOperational},
	{"vulnerability_management", 0.7, model.CategoryOperational},
	{"backup_and_recovery", 0.8, model.CategoryOperational},
	{"privileged_access_management", 0.85, model.CategoryTechnical},
	{"security_information_event_management", 0.75, model.CategoryTechnical},
	{"data_loss_prevention", 0.65, model.CategoryTechnical},
	{"web_application_firewall", 0.6, model.CategoryTechnical},
	{"penetration_testing", 0.7, model.CategoryOperational},
	{"security_governance", 0.6, model.CategoryOperational},
}

type dataTypeWeight struct {
	key    string
	weight float64
}

var dataTypeWeights = []dataTypeWeight{
	{"personal_identifiable_information", 0.8},
	{"protected_health_information", 0.9},
	{"payment_card_information", 0.85},
	{"financial_records", 0.8},
	{"intellectual_property", 0.75},
	{"customer_data", 0.7},
	{"employee_data", 0.65},
	{"operational_data", 0.4},
	{"marketing_data", 0.3},
	{"public_data", 0.1},
}

// keywordMatch reports whether any word of an underscore-joined key occurs
// as a substring of text. "security_governance" therefore matches any text
// containing "security".
func keywordMatch(key, text string) bool {
	for _, word := range strings.Split(key, "_") {
		if word != "" && strings.Contains(text, word) {
			return true
		}
	}
	return false
}

// words turns an underscore key into space-separated words.
func words(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
