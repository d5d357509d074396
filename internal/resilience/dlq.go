package resilience

import (
	"time"

	"github.com/google/uuid"
)

// Error classes stored on dead letters.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// DLQEntry records an outbound operation that failed and is waiting for a
// scheduled retry.
type DLQEntry struct {
	ID           string    `json:"id"`
	WorkItemID   string    `json:"work_item_id"`
	Operation    string    `json:"operation"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// NewDLQEntry builds the first dead letter for a failed operation. The
// first retry is scheduled one backoff step after now.
func NewDLQEntry(workItemID, operation string, err error, maxRetries int, backoff RetryConfig, now time.Time) DLQEntry {
	return DLQEntry{
		ID:           uuid.NewString(),
		WorkItemID:   workItemID,
		Operation:    operation,
		Error:        err.Error(),
		ErrorType:    ClassifyError(err),
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(backoff.Backoff(0)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// CanRetry reports whether retries remain.
func (e DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NextRetry returns when the following attempt is due.
func (e DLQEntry) NextRetry(backoff RetryConfig, now time.Time) time.Time {
	return now.Add(backoff.Backoff(e.RetryCount + 1))
}

// ClassifyError returns ErrorTransient or ErrorPermanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
