package model

import "time"

// Status is the workflow state of a work item.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAssigned     Status = "assigned"
	StatusUnderReview  Status = "under_review"
	StatusPendingInfo  Status = "pending_info"
	StatusQuoteReady   Status = "quote_ready"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusPolicyIssued Status = "policy_issued"
)

// Statuses lists every workflow state in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusAssigned,
	StatusUnderReview,
	StatusPendingInfo,
	StatusQuoteReady,
	StatusApproved,
	StatusRejected,
	StatusPolicyIssued,
}

// Priority is the triage priority of a work item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// HistoryAction classifies a history entry.
type HistoryAction string

const (
	HistoryCreated      HistoryAction = "created"
	HistoryUpdated      HistoryAction = "updated"
	HistoryAssigned     HistoryAction = "assigned"
	HistoryCommented    HistoryAction = "commented"
	HistoryRiskAssessed HistoryAction = "risk_assessed"
)

// WorkItem is the persisted unit of underwriting work.
type WorkItem struct {
	ID             string           `json:"id"`
	SubmissionRef  string           `json:"submission_ref"`
	Title          string           `json:"title"`
	BrokerEmail    string           `json:"broker_email,omitempty"`
	Status         Status           `json:"status"`
	Priority       Priority         `json:"priority"`
	AssignedTo     string           `json:"assigned_to,omitempty"`
	RiskScore      *float64         `json:"risk_score,omitempty"`
	RiskCategories *RiskCategories  `json:"risk_categories,omitempty"`
	Industry       string           `json:"industry,omitempty"`
	CompanySize    string           `json:"company_size,omitempty"`
	PolicyType     string           `json:"policy_type,omitempty"`
	CoverageAmount *float64         `json:"coverage_amount,omitempty"`
	Validation     ValidationResult `json:"validation"`
	Fields         Fields           `json:"fields"`
	Policy         *PolicyRef       `json:"policy,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// PolicyRef records identifiers returned by the policy administration system.
type PolicyRef struct {
	AccountID     string    `json:"account_id"`
	AccountNumber string    `json:"account_number"`
	JobID         string    `json:"job_id"`
	JobNumber     string    `json:"job_number"`
	TotalPremium  float64   `json:"total_premium,omitempty"`
	SyncedAt      time.Time `json:"synced_at"`
}

// HistoryEntry is an append-only audit record for a work item.
type HistoryEntry struct {
	ID          string         `json:"id"`
	WorkItemID  string         `json:"work_item_id"`
	Action      HistoryAction  `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Underwriter is a member of the underwriting team.
type Underwriter struct {
	Name   string `json:"name"`
	Tier   string `json:"tier"`
	Active bool   `json:"active"`
}

// RiskDistribution buckets work items by risk score.
type RiskDistribution struct {
	LowRisk    int `json:"low_risk"`
	MediumRisk int `json:"medium_risk"`
	HighRisk   int `json:"high_risk"`
	Total      int `json:"total"`
}
