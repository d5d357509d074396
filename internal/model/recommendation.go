package model

// Action is the automated underwriting action.
type Action string

const (
	ActionApprove       Action = "approve"
	ActionDecline       Action = "decline"
	ActionRequestInfo   Action = "request_info"
	ActionReferToSenior Action = "refer_to_senior"
)

// PremiumRange is an indicative annual premium band in dollars.
type PremiumRange struct {
	Minimum     float64 `json:"minimum"`
	Recommended float64 `json:"recommended"`
	Maximum     float64 `json:"maximum"`
}

// Recommendation is advisory; it never changes workflow state on its own.
type Recommendation struct {
	Action                Action        `json:"action"`
	Confidence            float64       `json:"confidence"`
	Reasoning             []string      `json:"reasoning"`
	SuggestedConditions   []string      `json:"suggested_conditions"`
	ReferralTriggers      []string      `json:"referral_triggers"`
	EstimatedPremiumRange *PremiumRange `json:"estimated_premium_range"`
}
