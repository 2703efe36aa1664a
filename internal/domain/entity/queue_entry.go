package entity

import (
	"encoding/json"
	"time"
)

// Fiscal queue statuses. An invoice has at most one entry in Queued or
// Processing at any time (enforced by a partial unique index in Postgres).
const (
	QueueStatusQueued     = "Queued"     // waiting for a worker
	QueueStatusProcessing = "Processing" // attempt in flight
	QueueStatusCompleted  = "Completed"  // device accepted, invoice updated
	QueueStatusFailed     = "Failed"     // last attempt failed; retried while RetryCount < max
)

// QueueEntry is one durable record of a fiscalization attempt for one invoice.
type QueueEntry struct {
	ID          string
	InvoiceID   string
	Status      string
	RetryCount  int
	Error       string          // last failure message, empty on success
	Response    json.RawMessage // raw device response, set only when Completed
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Active reports whether the entry still holds the per-invoice slot.
func (e *QueueEntry) Active() bool {
	return e.Status == QueueStatusQueued || e.Status == QueueStatusProcessing
}
