package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aqiq/tims-fiscal/internal/domain/entity"
)

// QueueRepository persists fiscal queue entries.
type QueueRepository interface {
	// InsertIfAbsent creates a Queued entry for the invoice unless one is
	// already active (Queued/Processing). Returns domain.ErrDuplicate when the
	// per-invoice slot is taken. The insert itself is the dedupe check: a
	// partial unique index makes check and create one atomic operation.
	InsertIfAbsent(ctx context.Context, entry *entity.QueueEntry) error

	GetByID(ctx context.Context, id string) (*entity.QueueEntry, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*entity.QueueEntry, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.QueueEntry, error)

	// MarkProcessing transitions Queued -> Processing. Returns
	// domain.ErrConflict if the entry is no longer Queued.
	MarkProcessing(ctx context.Context, id string) error
	// MarkCompleted stores the raw device response and the completion time.
	MarkCompleted(ctx context.Context, id string, response json.RawMessage) error
	// MarkFailed records the failure message and the new retry count.
	MarkFailed(ctx context.Context, id string, errMsg string, retryCount int) error

	// Requeue transitions Failed -> Queued for a retry. Returns
	// domain.ErrConflict when the entry is not Failed anymore and
	// domain.ErrDuplicate when another active entry took the invoice slot.
	Requeue(ctx context.Context, id string) error

	// ListStuckFailed returns Failed entries under the retry budget whose last
	// update is older than the cutoff. Used by the sweeper to recover attempts
	// whose in-process backoff timer was lost.
	ListStuckFailed(ctx context.Context, maxRetries int, updatedBefore time.Time, limit int) ([]*entity.QueueEntry, error)
}
