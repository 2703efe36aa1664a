package fiscal

import (
	"context"

	"github.com/aqiq/tims-fiscal/internal/domain/repository"
)

// TxRunner commits the success path of an attempt atomically: invoice fiscal
// fields and queue entry status land together or not at all.
type TxRunner interface {
	RunFiscal(ctx context.Context, fn func(
		queueRepo repository.QueueRepository,
		invoiceRepo repository.InvoiceRepository,
	) error) error
}
