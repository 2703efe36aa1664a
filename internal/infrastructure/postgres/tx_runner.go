package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqiq/tims-fiscal/internal/domain/repository"
)

// TxRunner executes callbacks inside a PostgreSQL transaction. The success
// path of an attempt commits the invoice fiscal fields and the queue entry
// status together, so a crash between the two cannot leave a fiscalized
// invoice with a dangling Processing entry.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner builds the runner with the pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunFiscal begins a transaction, runs fn with repos bound to the tx, and
// commits or rolls back.
func (r *TxRunner) RunFiscal(ctx context.Context, fn func(
	queueRepo repository.QueueRepository,
	invoiceRepo repository.InvoiceRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewQueueRepository(tx), NewInvoiceRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
