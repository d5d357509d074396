package model

// ValidationStatus is the tri-state outcome of submission validation.
type ValidationStatus string

const (
	ValidationComplete   ValidationStatus = "Complete"
	ValidationIncomplete ValidationStatus = "Incomplete"
	ValidationRejected   ValidationStatus = "Rejected"
)

// ValidationResult is produced once per validation call. MissingFields is
// only populated for Incomplete; Reason is empty for Complete.
type ValidationResult struct {
	Status        ValidationStatus `json:"status"`
	MissingFields []string         `json:"missing_fields"`
	Reason        string           `json:"reason,omitempty"`
}

// Complete reports whether the submission passed every check.
func (r ValidationResult) Complete() bool { return r.Status == ValidationComplete }
