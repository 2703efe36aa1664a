package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aqiq/tims-fiscal/internal/domain"
	"github.com/aqiq/tims-fiscal/internal/domain/entity"
	"github.com/aqiq/tims-fiscal/internal/domain/repository"
)

var _ repository.QueueRepository = (*QueueRepo)(nil)

// QueueRepo implements QueueRepository (usable with pool or tx).
//
// The schema carries a partial unique index
//
//	CREATE UNIQUE INDEX fiscal_queue_active_invoice
//	ON fiscal_queue (invoice_id) WHERE status IN ('Queued', 'Processing');
//
// which turns the dedupe check-then-create into one atomic insert.
type QueueRepo struct {
	q Querier
}

// NewQueueRepository builds the adapter. Pass pool or tx (Querier).
func NewQueueRepository(q Querier) *QueueRepo {
	return &QueueRepo{q: q}
}

const queueColumns = `id, invoice_id, status, retry_count,
	COALESCE(error, ''), response, created_at, updated_at, completed_at`

// InsertIfAbsent creates the entry; domain.ErrDuplicate when the invoice
// already has an active one.
func (r *QueueRepo) InsertIfAbsent(ctx context.Context, entry *entity.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = entity.QueueStatusQueued
	}
	query := `
		INSERT INTO fiscal_queue (id, invoice_id, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (invoice_id) WHERE status IN ('Queued', 'Processing') DO NOTHING`
	tag, err := r.q.Exec(ctx, query, entry.ID, entry.InvoiceID, entry.Status, entry.RetryCount)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicate
	}
	return nil
}

// GetByID loads one entry; nil when it does not exist.
func (r *QueueRepo) GetByID(ctx context.Context, id string) (*entity.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM fiscal_queue WHERE id = $1`
	entry, err := scanQueueEntry(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// ListByStatus lists newest-first entries in one status, for the operator
// inspection surface.
func (r *QueueRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.QueueEntry, error) {
	query := `SELECT ` + queueColumns + `
		FROM fiscal_queue WHERE status = $1
		ORDER BY created_at DESC LIMIT $2`
	rows, err := r.q.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list queue by status: %w", err)
	}
	return collectQueueEntries(rows)
}

// ListByInvoice lists the full attempt lineage of one invoice, oldest first.
func (r *QueueRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.QueueEntry, error) {
	query := `SELECT ` + queueColumns + `
		FROM fiscal_queue WHERE invoice_id = $1
		ORDER BY created_at ASC`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list queue by invoice: %w", err)
	}
	return collectQueueEntries(rows)
}

// MarkProcessing claims a Queued entry for execution.
func (r *QueueRepo) MarkProcessing(ctx context.Context, id string) error {
	query := `
		UPDATE fiscal_queue SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`
	tag, err := r.q.Exec(ctx, query, id, entity.QueueStatusProcessing, entity.QueueStatusQueued)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// MarkCompleted finishes the entry with the verbatim device response.
func (r *QueueRepo) MarkCompleted(ctx context.Context, id string, response json.RawMessage) error {
	query := `
		UPDATE fiscal_queue
		SET status = $2, response = $3, error = NULL, completed_at = now(), updated_at = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, id, entity.QueueStatusCompleted, response); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure and the retry count reached so far.
func (r *QueueRepo) MarkFailed(ctx context.Context, id string, errMsg string, retryCount int) error {
	query := `
		UPDATE fiscal_queue
		SET status = $2, error = $3, retry_count = $4, updated_at = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, id, entity.QueueStatusFailed, errMsg, retryCount); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Requeue puts a Failed entry back in line. The partial unique index rejects
// the transition when a newer entry already owns the invoice slot.
func (r *QueueRepo) Requeue(ctx context.Context, id string) error {
	query := `
		UPDATE fiscal_queue SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`
	tag, err := r.q.Exec(ctx, query, id, entity.QueueStatusQueued, entity.QueueStatusFailed)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("requeue entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ListStuckFailed feeds the sweeper: Failed, under budget, untouched since the
// cutoff.
func (r *QueueRepo) ListStuckFailed(ctx context.Context, maxRetries int, updatedBefore time.Time, limit int) ([]*entity.QueueEntry, error) {
	query := `SELECT ` + queueColumns + `
		FROM fiscal_queue
		WHERE status = $1 AND retry_count < $2 AND updated_at < $3
		ORDER BY updated_at ASC LIMIT $4`
	rows, err := r.q.Query(ctx, query, entity.QueueStatusFailed, maxRetries, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck failed: %w", err)
	}
	return collectQueueEntries(rows)
}

func scanQueueEntry(row pgx.Row) (*entity.QueueEntry, error) {
	var e entity.QueueEntry
	err := row.Scan(&e.ID, &e.InvoiceID, &e.Status, &e.RetryCount,
		&e.Error, &e.Response, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectQueueEntries(rows pgx.Rows) ([]*entity.QueueEntry, error) {
	defer rows.Close()
	var list []*entity.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		list = append(list, entry)
	}
	return list, rows.Err()
}
